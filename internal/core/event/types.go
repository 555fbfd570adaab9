package event

import (
	"github.com/google/uuid"

	"github.com/l1jgo/propsrv/internal/core/ecs"
)

type EntityCreated struct {
	ID    ecs.EntityID
	Class string
}

type EntityDestroyed struct {
	ID    ecs.EntityID
	Class string
}

// PropertyChanged is emitted for every change to a stored, saved property,
// private ones included. Data is the value at the time of the change.
type PropertyChanged struct {
	ID       ecs.EntityID
	Key      uuid.UUID
	Class    string
	Property string
	TypeName string
	Data     []byte
}
