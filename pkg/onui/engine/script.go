package engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// ExecutionResult is the structured outcome of one script execution.
// Error is non-empty exactly when the script failed or timed out; a
// script runtime never panics across this boundary.
type ExecutionResult struct {
	Stdout  string
	Returns []string
	Error   string
}

// ScriptRuntime is a synchronous, single-owner-at-a-time script executor.
type ScriptRuntime interface {
	Execute(ctx context.Context, source string, timeout time.Duration) ExecutionResult
	Reset()
	Close()
}

// LuaVM is the gopher-lua-backed sandboxed implementation.
// stdin/stdout/stderr and os.exit/os.execute are never exposed; all
// script output is captured through a trapped print/io.write into an
// in-memory buffer; long-running scripts are aborted via a context
// deadline (gopher-lua checks ctx.Err() at VM step boundaries).
type LuaVM struct {
	mu     sync.Mutex
	state  *lua.LState
	output *bytes.Buffer
}

// NewLuaVM constructs a fresh sandboxed VM.
func NewLuaVM() *LuaVM {
	buf := &bytes.Buffer{}
	return &LuaVM{state: newSandboxedState(buf), output: buf}
}

// newSandboxedState opens only the libraries safe for an untrusted script
// (base, table, string, math) and installs a captured print/io.write. It
// deliberately never opens the os or io standard libraries, so
// os.exit/os.execute and direct stdin/stdout/stderr access do not exist as
// globals at all.
func newSandboxedState(buf *bytes.Buffer) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true, CallStackSize: 256})

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	capture := func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = lua.LVAsString(L.Get(i))
		}
		buf.WriteString(strings.Join(parts, "\t"))
		buf.WriteString("\n")
		return 0
	}
	L.SetGlobal("print", L.NewFunction(capture))

	// Trapped io.write: the only facility the sandbox exposes for raw
	// output, captured into the same buffer as print. No other io.*
	// function exists (no io.open, io.stdin, io.stdout, io.stderr).
	ioTable := L.NewTable()
	L.SetField(ioTable, "write", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		for i := 1; i <= n; i++ {
			buf.WriteString(lua.LVAsString(L.Get(i)))
		}
		return 0
	}))
	L.SetGlobal("io", ioTable)

	// No os table at all: os.exit/os.execute cannot be reached.
	L.SetGlobal("os", lua.LNil)

	return L
}

// Execute runs source to completion or until timeout/cancellation,
// returning a structured result. Never panics: a gopher-lua internal
// panic (e.g. stack overflow) is recovered and reported through Error.
func (vm *LuaVM) Execute(ctx context.Context, source string, timeout time.Duration) (result ExecutionResult) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vm.output.Reset()
	vm.state.SetContext(runCtx)

	defer func() {
		if r := recover(); r != nil {
			result = ExecutionResult{
				Stdout: vm.output.String(),
				Error:  fmt.Sprintf("Lua execution failed: %v", r),
			}
		}
	}()

	fn, err := vm.state.LoadString(source)
	if err != nil {
		return ExecutionResult{
			Stdout: vm.output.String(),
			Error:  fmt.Sprintf("Lua execution failed: %s", err.Error()),
		}
	}

	base := vm.state.GetTop()
	vm.state.Push(fn)
	if callErr := vm.state.PCall(0, lua.MultRet, nil); callErr != nil {
		msg := fmt.Sprintf("Lua execution failed: %s", callErr.Error())
		if runCtx.Err() == context.DeadlineExceeded {
			msg = "Lua execution timed out"
		}
		return ExecutionResult{Stdout: vm.output.String(), Error: msg}
	}

	var returns []string
	for i := base + 1; i <= vm.state.GetTop(); i++ {
		returns = append(returns, lua.LVAsString(vm.state.Get(i)))
	}
	vm.state.SetTop(base)

	return ExecutionResult{Stdout: vm.output.String(), Returns: returns}
}

// Reset discards all VM state, leaving a fresh VM with only the sandboxed
// built-ins.
func (vm *LuaVM) Reset() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.state.Close()
	vm.output.Reset()
	vm.state = newSandboxedState(vm.output)
}

// Close releases the underlying Lua state at process shutdown.
func (vm *LuaVM) Close() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.state.Close()
}
