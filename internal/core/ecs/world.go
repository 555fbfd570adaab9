package ecs

// World owns the entity pool, the component stores and a deferred
// destruction queue flushed by the cleanup system each tick.
type World struct {
	pool         *EntityPool
	stores       []Removable
	onDestroy    []func(EntityID)
	destroyQueue []EntityID
	queued       map[EntityID]struct{}
}

func NewWorld() *World {
	return &World{
		pool:         NewEntityPool(),
		stores:       make([]Removable, 0, 8),
		destroyQueue: make([]EntityID, 0, 64),
		queued:       make(map[EntityID]struct{}),
	}
}

func (w *World) Pool() *EntityPool { return w.pool }

// RegisterStore adds a component store cleared on destroy.
func (w *World) RegisterStore(store Removable) {
	w.stores = append(w.stores, store)
}

// OnDestroy adds a hook run for each entity at flush, before its
// components are removed.
func (w *World) OnDestroy(fn func(EntityID)) {
	w.onDestroy = append(w.onDestroy, fn)
}

func (w *World) CreateEntity() EntityID {
	return w.pool.Create()
}

func (w *World) Alive(id EntityID) bool {
	return w.pool.Alive(id)
}

// MarkForDestruction queues an entity for end-of-tick cleanup. Marking
// twice is harmless.
func (w *World) MarkForDestruction(id EntityID) {
	if !w.pool.Alive(id) {
		return
	}
	if _, ok := w.queued[id]; ok {
		return
	}
	w.queued[id] = struct{}{}
	w.destroyQueue = append(w.destroyQueue, id)
}

// Doomed reports whether id is queued for destruction.
func (w *World) Doomed(id EntityID) bool {
	_, ok := w.queued[id]
	return ok
}

// FlushDestroyQueue destroys all queued entities and clears their
// components. Returns the number destroyed.
func (w *World) FlushDestroyQueue() int {
	n := len(w.destroyQueue)
	for _, id := range w.destroyQueue {
		for _, fn := range w.onDestroy {
			fn(id)
		}
		for _, s := range w.stores {
			s.Remove(id)
		}
		w.pool.Destroy(id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	clear(w.queued)
	return n
}
