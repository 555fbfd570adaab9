package ecs

import "slices"

// Each2 visits entities holding both components, in ascending id order.
// Candidates come from the smaller store.
func Each2[A, B any](sa *PtrComponentStore[A], sb *PtrComponentStore[B], fn func(EntityID, *A, *B)) {
	var ids []EntityID
	if sa.Len() <= sb.Len() {
		ids = sa.IDs()
	} else {
		ids = sb.IDs()
	}
	slices.Sort(ids)
	for _, id := range ids {
		a, okA := sa.data[id]
		b, okB := sb.data[id]
		if okA && okB {
			fn(id, a, b)
		}
	}
}
