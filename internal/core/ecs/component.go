package ecs

// Removable is a store the World clears when an entity is destroyed.
type Removable interface {
	Remove(id EntityID)
}

// PtrComponentStore maps entities to one component type held by pointer,
// so callers mutate components in place.
type PtrComponentStore[T any] struct {
	data map[EntityID]*T
}

func NewPtrComponentStore[T any]() *PtrComponentStore[T] {
	return &PtrComponentStore[T]{data: make(map[EntityID]*T, 64)}
}

// Set attaches c to id, replacing any previous component.
func (s *PtrComponentStore[T]) Set(id EntityID, c *T) { s.data[id] = c }

func (s *PtrComponentStore[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *PtrComponentStore[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *PtrComponentStore[T]) Remove(id EntityID) { delete(s.data, id) }

func (s *PtrComponentStore[T]) Len() int { return len(s.data) }

// IDs returns the ids holding a component, unordered.
func (s *PtrComponentStore[T]) IDs() []EntityID {
	ids := make([]EntityID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids
}
