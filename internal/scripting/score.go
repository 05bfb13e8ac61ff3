package scripting

import (
	"fmt"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/roomlink/internal/room"
)

// ScoreHook is the Lua global a score script must define. It receives one
// table describing the room and returns a number added to the room's score.
const ScoreHook = "score_bonus"

// ScoreScript owns a sandboxed VM loaded from one score script.
//
// ScoreScript is safe for concurrent use; calls into the VM are serialized.
type ScoreScript struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	path   string
	logger *zap.Logger
	closed bool
}

// LoadScoreScript creates a sandboxed VM, runs the file at path under the
// instruction budget, and checks that it defines ScoreHook.
//
// Precondition: logger must be non-nil; instLimit >= 0 (0 uses DefaultInstructionLimit).
// Postcondition: Returns a ready ScoreScript or a non-nil error; on error no VM is leaked.
func LoadScoreScript(path string, instLimit int, logger *zap.Logger) (*ScoreScript, error) {
	L := NewSandboxedState()
	if err := RunLimited(L, instLimit, func() error { return L.DoFile(path) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: loading %q: %w", path, err)
	}
	if _, ok := L.GetGlobal(ScoreHook).(*lua.LFunction); !ok {
		L.Close()
		return nil, fmt.Errorf("scripting: %q does not define function %s", path, ScoreHook)
	}
	return &ScoreScript{L: L, limit: instLimit, path: path, logger: logger}, nil
}

// Bonus calls ScoreHook for r. Lua runtime errors, budget exhaustion and
// non-numeric returns are logged at Warn level and contribute 0.
//
// Postcondition: never panics; returns 0 after Close.
func (s *ScoreScript) Bonus(r room.Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}

	arg := roomTable(s.L, r)
	err := RunLimited(s.L, s.limit, func() error {
		return s.L.CallByParam(lua.P{
			Fn:      s.L.GetGlobal(ScoreHook),
			NRet:    1,
			Protect: true,
		}, arg)
	})
	if err != nil {
		s.logger.Warn("scripting: score hook failed",
			zap.String("script", s.path),
			zap.String("room", r.ID),
			zap.Error(err),
		)
		return 0
	}

	ret := s.L.Get(-1)
	s.L.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		s.logger.Warn("scripting: score hook returned non-number",
			zap.String("script", s.path),
			zap.String("room", r.ID),
			zap.String("type", ret.Type().String()),
		)
		return 0
	}
	return int(n)
}

// Close releases the VM. It is idempotent.
func (s *ScoreScript) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.L.Close()
}

func roomTable(L *lua.LState, r room.Record) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LString(r.ID))
	t.RawSetString("name", lua.LString(r.Name))
	t.RawSetString("current_players", lua.LNumber(r.CurrentPlayers))
	t.RawSetString("max_players", lua.LNumber(r.MaxPlayers))
	t.RawSetString("owned", lua.LBool(r.Owned))

	data := L.NewTable()
	keys := make([]string, 0, len(r.Data))
	for k := range r.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data.RawSetString(k, lua.LString(r.Data[k]))
	}
	t.RawSetString("data", data)
	return t
}
