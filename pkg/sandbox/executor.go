package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/dop251/goja"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
)

// ErrNoCode is reported for empty or whitespace-only scripts.
var ErrNoCode = errors.New("No code provided")

var errInterrupted = errors.New("interrupted")

// maxCallStackSize bounds recursion inside scripts.
const maxCallStackSize = 1024

// regexpMatchTimeout bounds a single backtracking match. goja compiles the
// patterns Go's regexp cannot handle with regexp2, which ignores vm.Interrupt,
// so without it an abandoned script could keep a CPU busy indefinitely.
const regexpMatchTimeout = 5 * time.Second

// interruptGrace is how long an interrupted runtime gets to report before it is abandoned.
const interruptGrace = 20 * time.Millisecond

func init() {
	regexp2.DefaultMatchTimeout = regexpMatchTimeout
}

// Result is the outcome of one script execution.
type Result struct {
	Success bool
	Result  any
	Error   string

	// Variables is the script's copy of the session variables. It is only set
	// on success; failed scripts never leak partial writes.
	Variables map[string]any

	Duration time.Duration
}

// Executor runs code node scripts. It holds configuration only and is safe for
// concurrent use.
type Executor struct {
	logger     *slog.Logger
	http       *HTTPClient
	maxTimeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger routes script console output and diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithHTTPClient replaces the client exposed to scripts as http.
func WithHTTPClient(c *HTTPClient) Option {
	return func(e *Executor) {
		e.http = c
	}
}

// WithMaxTimeout caps the timeout a node may request. Zero means no cap.
func WithMaxTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.maxTimeout = d
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.http == nil {
		e.http = NewHTTPClient(HTTPConfig{})
	}
	return e
}

// Timeout returns the effective deadline for a code node.
func (e *Executor) Timeout(data domain.CodeData) time.Duration {
	timeout := data.TimeoutDuration()
	if e.maxTimeout > 0 && timeout > e.maxTimeout {
		return e.maxTimeout
	}
	return timeout
}

// Execute runs the script of a code node against a copy of variables.
// It never returns an error: every failure is reported through Result.
func (e *Executor) Execute(ctx context.Context, nodeID string, data domain.CodeData, variables map[string]any) Result {
	started := time.Now()
	res := e.execute(ctx, nodeID, data, variables)
	res.Duration = time.Since(started)
	if !res.Success {
		e.logger.Debug("code node failed", "node_id", nodeID, "err", res.Error, "duration", res.Duration)
	}
	return res
}

func (e *Executor) execute(ctx context.Context, nodeID string, data domain.CodeData, variables map[string]any) Result {
	if strings.TrimSpace(data.Code) == "" {
		return failure(ErrNoCode.Error())
	}

	prog, err := goja.Compile(nodeID, wrapScript(data.Code), false)
	if err != nil {
		return failure(err.Error())
	}

	timeout := e.Timeout(data)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The runtime is driven from its own goroutine so the deadline holds even
	// when the script is stuck somewhere vm.Interrupt cannot reach, such as a
	// backtracking regexp. An abandoned runtime is interrupted and only touches
	// its own copy of the variables.
	vars := copyVariables(variables)
	done := make(chan Result, 1)
	go func() {
		done <- e.run(ctx, runCtx, timeout, nodeID, prog, vars)
	}()

	select {
	case res := <-done:
		return res
	case <-runCtx.Done():
	}
	select {
	case res := <-done:
		return res
	case <-time.After(interruptGrace):
		e.logger.Warn("abandoning unresponsive script", "node_id", nodeID, "timeout", timeout)
		return failure(describe(ctx, runCtx, timeout, runCtx.Err()))
	}
}

func (e *Executor) run(parent, ctx context.Context, timeout time.Duration, nodeID string, prog *goja.Program, vars map[string]any) (res Result) {
	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	loop := newEventLoop(vm)
	defer loop.close()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("sandbox panic", "node_id", nodeID, "panic", r)
			res = failure(fmt.Sprintf("script crashed: %v", r))
		}
	}()

	if err := e.install(ctx, vm, loop, nodeID, vars); err != nil {
		return failure(err.Error())
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(errInterrupted)
	})
	defer stop()

	value, err := vm.RunProgram(prog)
	if err != nil {
		return failure(describe(parent, ctx, timeout, err))
	}

	promise, ok := value.Export().(*goja.Promise)
	if !ok {
		return failure("script did not evaluate to a promise")
	}
	settled := func() bool { return promise.State() != goja.PromiseStatePending }
	if err := loop.run(ctx, settled); err != nil {
		return failure(describe(parent, ctx, timeout, err))
	}

	if promise.State() == goja.PromiseStateRejected {
		return failure(errorMessage(promise.Result()))
	}

	out := vm.Get("result")
	if isNullish(out) {
		out = promise.Result()
	}
	return Result{
		Success:   true,
		Result:    export(out),
		Variables: exportVariables(vm),
	}
}

func (e *Executor) install(ctx context.Context, vm *goja.Runtime, loop *eventLoop, nodeID string, vars map[string]any) error {
	if err := vm.Set("variables", vars); err != nil {
		return err
	}
	if err := vm.Set("result", goja.Null()); err != nil {
		return err
	}

	get := func(name string) goja.Value {
		obj := variablesObject(vm)
		if obj == nil {
			return goja.Undefined()
		}
		return obj.Get(name)
	}
	set := func(name string, value goja.Value) {
		obj := variablesObject(vm)
		if obj == nil {
			panic(vm.NewTypeError("variables is not an object"))
		}
		if err := obj.Set(name, value); err != nil {
			panic(vm.NewGoError(err))
		}
	}
	for name, fn := range map[string]any{
		"get":         get,
		"getVariable": get,
		"set":         set,
		"setVariable": set,
	} {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}

	if err := loop.install(); err != nil {
		return err
	}

	console := newConsole(ctx, vm, e.logger, nodeID)
	if err := vm.Set("console", console); err != nil {
		return err
	}

	client := newHTTPBinding(ctx, vm, loop, e.http)
	if err := vm.Set("http", client); err != nil {
		return err
	}
	return vm.Set("axios", client)
}

func wrapScript(code string) string {
	return "(async function() {\n" + code + "\n})()"
}

func failure(msg string) Result {
	return Result{Success: false, Error: msg}
}

// describe turns a runtime error into the message reported to the flow.
func describe(parent, run context.Context, timeout time.Duration, err error) string {
	if parent.Err() != nil {
		return fmt.Sprintf("execution cancelled: %v", parent.Err())
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("execution timed out after %dms", timeout.Milliseconds())
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return errorMessage(exc.Value())
	}
	return err.Error()
}

// errorMessage extracts the message of a thrown value.
func errorMessage(v goja.Value) string {
	if isNullish(v) {
		return "Code execution failed"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get("message"); !isNullish(msg) && msg.String() != "" {
			return msg.String()
		}
	}
	return v.String()
}

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func export(v goja.Value) any {
	if isNullish(v) {
		return nil
	}
	out, _ := jsonValue(v.Export())
	return out
}

func variablesObject(vm *goja.Runtime) *goja.Object {
	v := vm.Get("variables")
	if isNullish(v) {
		return nil
	}
	return v.ToObject(vm)
}

func exportVariables(vm *goja.Runtime) map[string]any {
	v := vm.Get("variables")
	if isNullish(v) {
		return map[string]any{}
	}
	if m, ok := v.Export().(map[string]any); ok {
		out, _ := jsonValue(m)
		return out.(map[string]any)
	}
	return map[string]any{}
}

// jsonValue converts an exported script value the way JSON.stringify does, so
// every session store can persist it. Non-finite numbers become null.
// Functions and other unencodable values are dropped from objects and become
// null inside arrays; ok is false when v itself is unencodable.
func jsonValue(v any) (out any, ok bool) {
	switch val := v.(type) {
	case nil, bool, string, int, int64, time.Time:
		return val, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, true
		}
		return val, true
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			if safe, ok := jsonValue(item); ok {
				m[k] = safe
			}
		}
		return m, true
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i], _ = jsonValue(item)
		}
		return list, true
	}
	if _, err := json.Marshal(v); err != nil {
		return nil, false
	}
	return v, true
}

// copyVariables deep-copies maps and slices so that nested writes made by a
// script never reach the caller's values.
func copyVariables(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyVariables(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
