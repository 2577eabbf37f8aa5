package packet

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// SessionState is the protocol phase of a session.
type SessionState int

const (
	StateHandshake SessionState = iota // awaiting C_HELLO
	StateReady                         // welcomed, replication active
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateReady:
		return "Ready"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

var (
	ErrEmptyPacket     = errors.New("empty packet")
	ErrStateNotAllowed = errors.New("opcode not allowed in session state")
	ErrHandlerPanic    = errors.New("handler panic")
)

// HandlerFunc is the callback signature for packet handlers.
// The session is passed as an opaque value so this package stays free of
// handler imports.
type HandlerFunc func(sess any, r *Reader)

type route struct {
	fn      HandlerFunc
	allowed uint32 // bit per SessionState
	calls   uint64
}

// Registry routes client opcodes to handlers, gated by session state.
// Only the game loop dispatches.
type Registry struct {
	routes map[byte]*route
	log    *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		routes: make(map[byte]*route),
		log:    log,
	}
}

// Register binds opcode to fn for the listed states. Registering an opcode
// twice replaces the earlier route.
func (reg *Registry) Register(opcode byte, states []SessionState, fn HandlerFunc) {
	rt := &route{fn: fn}
	for _, s := range states {
		rt.allowed |= 1 << uint(s)
	}
	reg.routes[opcode] = rt
}

// Opcodes returns the registered opcodes in ascending order.
func (reg *Registry) Opcodes() []byte {
	out := make([]byte, 0, len(reg.routes))
	for op := range reg.routes {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Calls reports how many packets were handed to the opcode's handler.
func (reg *Registry) Calls(opcode byte) uint64 {
	if rt, ok := reg.routes[opcode]; ok {
		return rt.calls
	}
	return 0
}

// Dispatch routes data (opcode in data[0]) to its handler. Unknown opcodes
// are dropped. A state mismatch returns ErrStateNotAllowed and a recovered
// handler panic ErrHandlerPanic; callers treat both as protocol violations.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyPacket
	}
	opcode := data[0]
	name := OpcodeName(opcode)

	rt, ok := reg.routes[opcode]
	if !ok {
		reg.log.Debug("未知操作碼", zap.Uint8("opcode", opcode), zap.String("state", state.String()))
		return nil
	}
	if rt.allowed&(1<<uint(state)) == 0 {
		reg.log.Warn("操作碼在此狀態下不允許",
			zap.String("opcode", name),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("%s in %s: %w", name, state, ErrStateNotAllowed)
	}

	reg.log.Debug("收到封包", zap.String("opcode", name), zap.Int("size", len(data)))
	rt.calls++
	return reg.call(rt.fn, sess, NewReader(data), name)
}

func (reg *Registry) call(fn HandlerFunc, sess any, r *Reader, name string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.String("opcode", name),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("%s: %v: %w", name, rec, ErrHandlerPanic)
		}
	}()
	fn(sess, r)
	return nil
}
