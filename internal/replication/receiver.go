package replication

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/propsrv/internal/net/packet"
	"github.com/l1jgo/propsrv/internal/property"
)

var (
	ErrUnknownEntity  = errors.New("replication: unknown entity")
	ErrLayoutMismatch = errors.New("replication: layout fingerprint mismatch")
)

// Directory resolves replicated entities on the receiving side.
type Directory interface {
	Lookup(id uint64) *property.Properties
	// Spawn creates the local copy of an entity first seen in a snapshot.
	Spawn(id uint64, class string) (*property.Properties, error)
	Remove(id uint64)
}

// Receiver applies replication packets to local entities.
type Receiver struct {
	side     property.Side
	dir      Directory
	log      *zap.Logger
	handlers *packet.Registry
}

func NewReceiver(side property.Side, dir Directory, log *zap.Logger) *Receiver {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Receiver{
		side:     side,
		dir:      dir,
		log:      log,
		handlers: packet.NewRegistry(log),
	}
	r.handlers.Register(OpSnapshot, r.handleSnapshot)
	r.handlers.Register(OpDelta, r.handleDelta)
	r.handlers.Register(OpDestroy, r.handleDestroy)
	return r
}

// Apply dispatches one packet. peer identifies the sender in logs.
func (r *Receiver) Apply(peer any, data []byte) error {
	return r.handlers.Dispatch(peer, data)
}

func (r *Receiver) handleSnapshot(peer any, rd *packet.Reader) error {
	s, err := decodeSnapshot(rd)
	if err != nil {
		return err
	}
	props := r.dir.Lookup(s.id)
	if props == nil {
		props, err = r.dir.Spawn(s.id, s.class)
		if err != nil {
			return fmt.Errorf("spawn %s %d: %w", s.class, s.id, err)
		}
	}
	reg := props.Registrator()
	if reg.Class() != s.class {
		return fmt.Errorf("%w: entity %d is %s, snapshot is %s", ErrLayoutMismatch, s.id, reg.Class(), s.class)
	}
	if reg.SharedFingerprint() != s.fingerprint {
		return fmt.Errorf("%w: class %s", ErrLayoutMismatch, s.class)
	}
	if err := props.Restore(s.withProtected, s.bufs); err != nil {
		return err
	}
	r.log.Debug("快照已套用",
		zap.Any("peer", peer),
		zap.Uint64("entity", s.id),
		zap.String("class", s.class),
	)
	return nil
}

func (r *Receiver) handleDelta(peer any, rd *packet.Reader) error {
	d, err := decodeDelta(rd)
	if err != nil {
		return err
	}
	props := r.dir.Lookup(d.id)
	if props == nil {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, d.id)
	}
	prop := props.Registrator().FindByEnum(d.enum)
	if prop == nil {
		return fmt.Errorf("%w: enum %d on %s", property.ErrUnknownProperty, d.enum, props.Registrator().Class())
	}
	if r.side == property.SideServer && (!prop.Access().IsModifiable() || !prop.IsWritable()) {
		r.log.Warn("拒絕客戶端修改",
			zap.Any("peer", peer),
			zap.Stringer("property", prop),
		)
		return fmt.Errorf("%w: %s", property.ErrNotWritable, prop)
	}
	if !prop.ValidRawSize(len(d.data)) {
		return fmt.Errorf("%w: %s delta is %d bytes", property.ErrMalformedStream, prop, len(d.data))
	}
	if r.side == property.SideServer {
		// Accepted peer writes go out to every peer and the journal.
		return props.SetRawData(prop, d.data, true)
	}
	return props.WithSendIgnore(prop, func() error {
		return props.SetRawData(prop, d.data, true)
	})
}

func (r *Receiver) handleDestroy(_ any, rd *packet.Reader) error {
	id := rd.ReadQ()
	if err := rd.Err(); err != nil {
		return fmt.Errorf("%w: %w", property.ErrMalformedStream, err)
	}
	r.dir.Remove(id)
	return nil
}
