package world

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/l1jgo/propsrv/internal/core/ecs"
	"github.com/l1jgo/propsrv/internal/core/event"
	"github.com/l1jgo/propsrv/internal/property"
)

var (
	ErrUnknownClass     = errors.New("world: unknown class")
	ErrDuplicateKey     = errors.New("world: entity key already loaded")
	ErrNotAuthoritative = errors.New("world: peers cannot spawn entities here")
)

// Entity is one live property-bearing object.
type Entity struct {
	ID    ecs.EntityID
	Key   uuid.UUID // persistent identity
	Class string
	Props *property.Properties
}

// Handle is the id scripts and peers use for the entity.
func (e *Entity) Handle() uint64 { return uint64(e.ID) }

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%s)", e.Class, e.ID)
}

// Dirty marks an entity changed since its last save.
type Dirty struct {
	Changes int
}

// Change is one pending replicated write, drained by the output system.
type Change struct {
	ID       ecs.EntityID
	Property *property.Property
}

// State owns every live entity and the registrators they are built from.
// Tick loop only.
type State struct {
	ecs      *ecs.World
	bus      *event.Bus
	regs     map[string]*property.Registrator
	entities *ecs.PtrComponentStore[Entity]
	dirty    *ecs.PtrComponentStore[Dirty]
	byKey    map[uuid.UUID]ecs.EntityID
	changes  []Change
	log      *zap.Logger
}

// NewState installs the change callbacks on every registrator. The
// registrators must be finished.
func NewState(regs map[string]*property.Registrator, bus *event.Bus, log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	s := &State{
		ecs:      ecs.NewWorld(),
		bus:      bus,
		regs:     regs,
		entities: ecs.NewPtrComponentStore[Entity](),
		dirty:    ecs.NewPtrComponentStore[Dirty](),
		byKey:    make(map[uuid.UUID]ecs.EntityID),
		log:      log,
	}
	s.ecs.RegisterStore(s.entities)
	s.ecs.RegisterStore(s.dirty)
	s.ecs.OnDestroy(s.release)

	for _, reg := range regs {
		reg.SetNativeSendCallback(s.onSend)
		for _, prop := range reg.Properties() {
			if !prop.HasStorage() || prop.IsTemporary() {
				continue
			}
			if err := reg.SetNativeSetCallback(prop.Name(), s.onSet); err != nil {
				log.Warn("無法安裝變更回呼", zap.Stringer("property", prop), zap.Error(err))
			}
		}
	}
	return s
}

func (s *State) Bus() *event.Bus { return s.bus }

// Registrator returns the layout of a class, or nil.
func (s *State) Registrator(class string) *property.Registrator { return s.regs[class] }

// Create spawns a new entity with a fresh key and default values.
func (s *State) Create(class string) (*Entity, error) {
	return s.create(uuid.New(), class)
}

// CreateWithKey spawns a new entity under a known key, for singletons
// whose key is derived from their class.
func (s *State) CreateWithKey(key uuid.UUID, class string) (*Entity, error) {
	return s.create(key, class)
}

// Restore spawns a saved entity and loads its stream. Entries the current
// layout cannot place stay in the unresolved store.
func (s *State) Restore(key uuid.UUID, class string, stream []byte) (*Entity, error) {
	e, err := s.create(key, class)
	if err != nil {
		return nil, err
	}
	if err := e.Props.Load(stream); err != nil {
		s.discard(e)
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if n := len(e.Props.Unresolved()); n > 0 {
		s.log.Warn("存檔含無法解析的屬性",
			zap.Stringer("entity", e),
			zap.Int("unresolved", n),
		)
	}
	return e, nil
}

func (s *State) create(key uuid.UUID, class string) (*Entity, error) {
	reg := s.regs[class]
	if reg == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	if _, ok := s.byKey[key]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	e := &Entity{
		ID:    s.ecs.CreateEntity(),
		Key:   key,
		Class: class,
	}
	e.Props = property.New(reg, e)
	s.entities.Set(e.ID, e)
	s.byKey[key] = e.ID
	event.Emit(s.bus, event.EntityCreated{ID: e.ID, Class: class})
	return e, nil
}

// discard drops an entity that never became visible.
func (s *State) discard(e *Entity) {
	s.entities.Remove(e.ID)
	delete(s.byKey, e.Key)
	e.Props.Release()
	s.ecs.Pool().Destroy(e.ID)
}

// Destroy queues an entity for removal at the end of the tick.
func (s *State) Destroy(id ecs.EntityID) {
	s.ecs.MarkForDestruction(id)
}

// Flush removes the entities queued by Destroy.
func (s *State) Flush() int {
	return s.ecs.FlushDestroyQueue()
}

func (s *State) release(id ecs.EntityID) {
	e, ok := s.entities.Get(id)
	if !ok {
		return
	}
	delete(s.byKey, e.Key)
	e.Props.Release()
	event.Emit(s.bus, event.EntityDestroyed{ID: id, Class: e.Class})
}

// Get returns a live entity, or nil.
func (s *State) Get(id ecs.EntityID) *Entity {
	if !s.ecs.Alive(id) {
		return nil
	}
	e, _ := s.entities.Get(id)
	return e
}

func (s *State) ByKey(key uuid.UUID) *Entity {
	id, ok := s.byKey[key]
	if !ok {
		return nil
	}
	return s.Get(id)
}

func (s *State) Len() int { return s.entities.Len() }

// Each visits live entities in id order.
func (s *State) Each(fn func(*Entity)) {
	for _, id := range sortedIDs(s.entities.IDs()) {
		e, _ := s.entities.Get(id)
		fn(e)
	}
}

func sortedIDs(ids []ecs.EntityID) []ecs.EntityID {
	slices.Sort(ids)
	return ids
}

// Resolve finds entity properties by handle, for scripts.
func (s *State) Resolve(handle uint64) (*property.Properties, bool) {
	e := s.Get(ecs.EntityID(handle))
	if e == nil {
		return nil, false
	}
	return e.Props, true
}

// Lookup, Spawn and Remove let replication deltas from peers reach
// entities owned here.
func (s *State) Lookup(id uint64) *property.Properties {
	props, _ := s.Resolve(id)
	return props
}

func (s *State) Spawn(id uint64, class string) (*property.Properties, error) {
	return nil, fmt.Errorf("%w: %s %d", ErrNotAuthoritative, class, id)
}

func (s *State) Remove(id uint64) {
	s.log.Warn("忽略同步端刪除要求", zap.Uint64("entity", id))
}

func (s *State) MarkDirty(id ecs.EntityID) {
	if d, ok := s.dirty.Get(id); ok {
		d.Changes++
		return
	}
	if s.entities.Has(id) {
		s.dirty.Set(id, &Dirty{Changes: 1})
	}
}

func (s *State) IsDirty(id ecs.EntityID) bool { return s.dirty.Has(id) }

func (s *State) ClearDirty(id ecs.EntityID) { s.dirty.Remove(id) }

// EachDirty visits entities changed since their last save, in id order.
func (s *State) EachDirty(fn func(*Entity, *Dirty)) {
	ecs.Each2(s.entities, s.dirty, func(_ ecs.EntityID, e *Entity, d *Dirty) {
		fn(e, d)
	})
}

// DrainChanges returns the pending replicated writes, one per entity and
// property in first-change order, and resets the list.
func (s *State) DrainChanges() []Change {
	if len(s.changes) == 0 {
		return nil
	}
	type key struct {
		id   ecs.EntityID
		prop *property.Property
	}
	seen := make(map[key]struct{}, len(s.changes))
	out := make([]Change, 0, len(s.changes))
	for _, c := range s.changes {
		k := key{c.ID, c.Property}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	s.changes = s.changes[:0]
	return out
}

// onSet is installed on every stored, non-temporary property, private ones
// included.
func (s *State) onSet(props *property.Properties, prop *property.Property, newValue, _ []byte) {
	e, ok := props.Owner().(*Entity)
	if !ok {
		return
	}
	s.MarkDirty(e.ID)
	event.Emit(s.bus, event.PropertyChanged{
		ID:       e.ID,
		Key:      e.Key,
		Class:    e.Class,
		Property: prop.Name(),
		TypeName: prop.TypeName(),
		Data:     append(make([]byte, 0, len(newValue)), newValue...),
	})
}

func (s *State) onSend(props *property.Properties, prop *property.Property) {
	if e, ok := props.Owner().(*Entity); ok {
		s.changes = append(s.changes, Change{ID: e.ID, Property: prop})
	}
}
