package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// HandlerFunc handles one packet. The peer is passed as an opaque value to
// avoid import cycles.
type HandlerFunc func(peer any, r *Reader) error

// Registry maps opcodes to handlers.
type Registry struct {
	handlers map[byte]HandlerFunc
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[byte]HandlerFunc),
		log:      log,
	}
}

// Register maps an opcode to a handler, replacing any previous one.
func (reg *Registry) Register(opcode byte, fn HandlerFunc) {
	reg.handlers[opcode] = fn
}

// Dispatch finds the handler for the opcode in data[0] and calls it.
// Unknown opcodes are ignored.
func (reg *Registry) Dispatch(peer any, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty packet")
	}
	opcode := data[0]
	reg.log.Debug("收到封包",
		zap.Uint8("opcode", opcode),
		zap.Int("size", len(data)),
	)

	fn, ok := reg.handlers[opcode]
	if !ok {
		reg.log.Debug("未知操作碼", zap.Uint8("opcode", opcode))
		return nil
	}
	return reg.safeCall(fn, peer, NewReader(data), opcode)
}

// safeCall executes a handler with panic recovery so one bad packet cannot
// crash the tick loop.
func (reg *Registry) safeCall(fn HandlerFunc, peer any, r *Reader, opcode byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.Uint8("opcode", opcode),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for opcode %d: %v", opcode, rec)
		}
	}()
	return fn(peer, r)
}
