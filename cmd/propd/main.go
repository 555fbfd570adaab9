package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l1jgo/propsrv/internal/config"
	"github.com/l1jgo/propsrv/internal/core/event"
	coresys "github.com/l1jgo/propsrv/internal/core/system"
	gonet "github.com/l1jgo/propsrv/internal/net"
	"github.com/l1jgo/propsrv/internal/persist"
	"github.com/l1jgo/propsrv/internal/property"
	"github.com/l1jgo/propsrv/internal/replication"
	"github.com/l1jgo/propsrv/internal/schema"
	"github.com/l1jgo/propsrv/internal/scripting"
	"github.com/l1jgo/propsrv/internal/system"
	"github.com/l1jgo/propsrv/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName, side string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m             propsrv  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        實體屬性伺服器 · 反射與存檔        \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(%s)\033[0m\n\n", serverName, side)
}

// displayWidth counts CJK characters as two columns.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		if r > 0x7F {
			n += 2
		} else {
			n++
		}
	}
	return n
}

func printSection(title string) {
	lineLen := max(46-displayWidth(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-displayWidth(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if p := startProfile(cfg.Profile); p != nil {
		defer p.Stop()
	}

	printBanner(cfg.Server.Name, cfg.Server.Side)

	side, err := property.ParseSide(cfg.Server.Side)
	if err != nil {
		return err
	}

	// 3. Schema, scripts and layouts
	printSection("屬性結構")

	sch, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	engine, err := scripting.NewEngine(cfg.Schema.ScriptsDir, log.Named("lua"))
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer engine.Close()

	regs, err := schema.Build(sch, side, engine, log.Named("property"))
	if err != nil {
		return fmt.Errorf("build layouts: %w", err)
	}
	props := 0
	for _, reg := range regs {
		props += reg.Count()
	}
	printStat("類別", len(regs))
	printStat("屬性", props)
	fmt.Println()

	bus := event.NewBus()
	state := world.NewState(regs, bus, log.Named("world"))
	engine.SetResolver(state.Resolve)

	// 4. Connect to PostgreSQL and run migrations
	printSection("資料庫")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL 連線成功")

	if err := persist.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("資料庫遷移完成")

	entityRepo := persist.NewEntityRepo(db, cfg.Persist.Compress)
	var changeLog *persist.ChangeLogRepo
	if cfg.Persist.ChangeLog {
		changeLog = persist.NewChangeLogRepo(db)
	}

	// 5. Load saved entities
	loaded, err := loadEntities(ctx, state, sch.ClassNames(), entityRepo, log)
	if err != nil {
		return err
	}
	printStat("已載入實體", loaded)
	if changeLog != nil {
		replayed, err := replayChanges(ctx, state, changeLog)
		if err != nil {
			return fmt.Errorf("replay change log: %w", err)
		}
		printStat("重播變更", replayed)
	}
	if err := ensureSingleton(state, cfg.Schema.GlobalClass, log); err != nil {
		return err
	}
	fmt.Println()

	// 6. Replication listener
	store := gonet.NewSessionStore()
	receiver := replication.NewReceiver(side, state, log.Named("replication"))
	var netServer *gonet.Server
	if cfg.Network.BindAddress != "" {
		netServer, err = gonet.NewServer(cfg.Network.BindAddress, gonet.SessionOptions{
			InSize:       cfg.Network.InQueueSize,
			OutSize:      cfg.Network.OutQueueSize,
			PktPerSec:    cfg.Network.MaxPacketsPerSec,
			MaxFrameSize: cfg.Network.MaxFrameSize,
		}, cfg.Network.MaxPeers, log)
		if err != nil {
			return fmt.Errorf("net server: %w", err)
		}
		go netServer.AcceptLoop()
	}

	// 7. Systems
	var journal system.Journal
	if changeLog != nil {
		journal = changeLog
	}
	runner := coresys.NewRunner(log.Named("tick"))
	persistSys := system.NewPersistenceSystem(state, entityRepo, journal, log, cfg.Persist.AutosaveTicks)
	runner.Register(system.NewInputSystem(netServer, store, receiver, state, cfg.Network.MaxPacketsPerTick, true, log))
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewOutputSystem(state, store, true))
	runner.Register(persistSys)
	runner.Register(system.NewCleanupSystem(state))

	// 8. Tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	// Between ticks only the input phase runs, so peer deltas land sooner.
	var pollC <-chan time.Time
	if rate := cfg.Network.InputPollRate; rate > 0 && rate < cfg.Network.TickRate {
		poll := time.NewTicker(rate)
		defer poll.Stop()
		pollC = poll.C
	}

	printSection("伺服器就緒")
	if netServer != nil {
		printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	}
	printReady(fmt.Sprintf("主迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case <-pollC:
			runner.TickPhase(coresys.PhaseInput, cfg.Network.InputPollRate)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			saved := persistSys.SaveAll()
			log.Info("關閉前存檔完成", zap.Int("entities", saved))
			if netServer != nil {
				netServer.Shutdown()
			}
			log.Info("伺服器已停止")
			return nil
		}
	}
}

// loadEntities restores every saved entity of the known classes.
func loadEntities(ctx context.Context, state *world.State, classes []string, repo *persist.EntityRepo, log *zap.Logger) (int, error) {
	n := 0
	for _, class := range classes {
		rows, err := repo.LoadClass(ctx, class)
		if err != nil {
			return n, fmt.Errorf("load %s: %w", class, err)
		}
		for _, row := range rows {
			if _, err := state.Restore(row.Key, row.Class, row.Stream); err != nil {
				log.Error("實體載入失敗", zap.Stringer("key", row.Key), zap.Error(err))
				continue
			}
			n++
		}
	}
	return n, nil
}

// replayChanges applies journaled writes newer than the last save. Entries
// that no longer fit the layout are skipped.
func replayChanges(ctx context.Context, state *world.State, changeLog *persist.ChangeLogRepo) (int, error) {
	n := 0
	var replayErr error
	state.Each(func(e *world.Entity) {
		if replayErr != nil {
			return
		}
		changes, err := changeLog.Pending(ctx, e.Key)
		if err != nil {
			replayErr = err
			return
		}
		reg := e.Props.Registrator()
		for _, c := range changes {
			prop := reg.Find(c.Property)
			if prop == nil || prop.TypeName() != c.TypeName || !prop.HasStorage() || !prop.ValidRawSize(len(c.Data)) {
				continue
			}
			if err := e.Props.SetRawData(prop, c.Data, false); err != nil {
				continue
			}
			state.MarkDirty(e.ID)
			n++
		}
	})
	return n, replayErr
}

// ensureSingleton creates the one-per-world entity when no save exists.
func ensureSingleton(state *world.State, class string, log *zap.Logger) error {
	if class == "" || state.Registrator(class) == nil {
		return nil
	}
	key := persist.SingletonKey(class)
	if state.ByKey(key) != nil {
		return nil
	}
	e, err := state.CreateWithKey(key, class)
	if err != nil {
		return fmt.Errorf("create %s: %w", class, err)
	}
	state.MarkDirty(e.ID)
	log.Info("已建立全域實體", zap.String("class", class), zap.Stringer("key", key))
	return nil
}

func startProfile(cfg config.ProfileConfig) interface{ Stop() } {
	var mode func(*profile.Profile)
	switch cfg.Mode {
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	case "block":
		mode = profile.BlockProfile
	case "mutex":
		mode = profile.MutexProfile
	case "trace":
		mode = profile.TraceProfile
	default:
		return nil
	}
	opts := []func(*profile.Profile){mode, profile.NoShutdownHook}
	if cfg.Dir != "" {
		opts = append(opts, profile.ProfilePath(cfg.Dir))
	}
	return profile.Start(opts...)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
