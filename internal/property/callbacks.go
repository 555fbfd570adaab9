package property

import "fmt"

// HandlerToken identifies a foreign handler (a script function) bound to a
// property. Zero means "no handler".
type HandlerToken uint32

// CallKind tells an Invoker which side of the accessor is calling.
type CallKind uint8

const (
	CallGet CallKind = iota + 1
	CallSet
)

func (k CallKind) String() string {
	switch k {
	case CallGet:
		return "get"
	case CallSet:
		return "set"
	default:
		return fmt.Sprintf("CallKind(%d)", int(k))
	}
}

// Call is one handler invocation. Values are raw property encodings: fixed
// values are little-endian, text is UTF-8, lists are packed elements.
type Call struct {
	Kind     CallKind
	Token    HandlerToken
	Props    *Properties
	Property *Property
	OldValue []byte // set calls: value before the change
	NewValue []byte // set calls: value after the change
}

// Owner returns the entity that owns the Properties block.
func (c Call) Owner() any {
	if c.Props == nil {
		return nil
	}
	return c.Props.owner
}

// Invoker executes handlers by token. A get call returns the raw value; set
// calls ignore the returned bytes.
type Invoker interface {
	Invoke(call Call) ([]byte, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(call Call) ([]byte, error)

func (f InvokerFunc) Invoke(call Call) ([]byte, error) { return f(call) }

// NativeSetFunc is the engine-internal reaction to a genuine change.
type NativeSetFunc func(props *Properties, prop *Property, newValue, oldValue []byte)

// NativeSendFunc queues a change for replication to the peer.
type NativeSendFunc func(props *Properties, prop *Property)
