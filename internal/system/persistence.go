package system

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/l1jgo/propsrv/internal/core/event"
	coresys "github.com/l1jgo/propsrv/internal/core/system"
	"github.com/l1jgo/propsrv/internal/persist"
	"github.com/l1jgo/propsrv/internal/world"
)

// Saver stores entity streams.
type Saver interface {
	SaveBatch(ctx context.Context, rows []persist.EntityRow) error
}

// Journal records replicated changes between saves.
type Journal interface {
	Write(ctx context.Context, changes []persist.Change) error
	MarkProcessed(ctx context.Context, keys []uuid.UUID) error
}

// PersistenceSystem journals replicated changes every tick and saves dirty
// entities every interval ticks. Phase 5 (Persist).
type PersistenceSystem struct {
	state     *world.State
	saver     Saver
	journal   Journal // nil disables the change log
	log       *zap.Logger
	pending   []persist.Change
	tickCount int
	interval  int // 0 disables autosave
}

func NewPersistenceSystem(state *world.State, saver Saver, journal Journal, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	s := &PersistenceSystem{
		state:    state,
		saver:    saver,
		journal:  journal,
		log:      log,
		interval: intervalTicks,
	}
	if journal != nil {
		event.Subscribe(state.Bus(), s.onChanged)
	}
	return s
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) onChanged(ev event.PropertyChanged) {
	s.pending = append(s.pending, persist.Change{
		EntityKey: ev.Key,
		Class:     ev.Class,
		Property:  ev.Property,
		TypeName:  ev.TypeName,
		Data:      ev.Data,
		At:        time.Now(),
	})
}

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.flushJournal()

	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.save(true)
}

// SaveAll persists every live entity regardless of dirty flags. Called for
// graceful shutdown.
func (s *PersistenceSystem) SaveAll() int {
	s.flushJournal()
	return s.save(false)
}

func (s *PersistenceSystem) flushJournal() {
	if s.journal == nil || len(s.pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.Write(ctx, s.pending); err != nil {
		// kept for the next tick
		s.log.Error("變更日誌寫入失敗", zap.Int("changes", len(s.pending)), zap.Error(err))
		return
	}
	s.pending = s.pending[:0]
}

// save writes entity streams in one batch. With dirtyOnly it skips clean
// entities and clears the dirty flag of saved ones.
func (s *PersistenceSystem) save(dirtyOnly bool) int {
	var (
		rows []persist.EntityRow
		ents []*world.Entity
	)
	collect := func(e *world.Entity) {
		rows = append(rows, persist.EntityRow{Key: e.Key, Class: e.Class, Stream: e.Props.Save()})
		ents = append(ents, e)
	}
	if dirtyOnly {
		s.state.EachDirty(func(e *world.Entity, _ *world.Dirty) { collect(e) })
	} else {
		s.state.Each(collect)
	}
	if len(rows) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.saver.SaveBatch(ctx, rows); err != nil {
		s.log.Error("自動存檔失敗", zap.Int("entities", len(rows)), zap.Error(err))
		return 0
	}

	keys := make([]uuid.UUID, len(ents))
	for i, e := range ents {
		s.state.ClearDirty(e.ID)
		keys[i] = e.Key
	}
	if s.journal != nil {
		if err := s.journal.MarkProcessed(ctx, keys); err != nil {
			s.log.Error("變更日誌 MarkProcessed 失敗", zap.Error(err))
		}
	}
	s.log.Info("自動存檔完成", zap.Int("entities", len(rows)))
	return len(rows)
}
