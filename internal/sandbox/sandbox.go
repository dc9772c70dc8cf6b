package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/vivekhaldar/mcpboot/internal/whitelist"
	"github.com/vivekhaldar/mcpboot/pkg/mcp"
)

// Timeout bounds one handler invocation, wall clock, covering both JS
// execution and blocking I/O inside fetch.
const Timeout = 30 * time.Second

// ErrBadShape is returned when a handler's return value is not an
// object with an array content member.
var ErrBadShape = errors.New("Handler must return {content: [...]}")

// Sandbox executes handler source text with a curated global set and a
// single side-effecting capability: the gated fetch.
type Sandbox struct {
	fetch    whitelist.GatedFetch
	logger   *zap.Logger
	timeout  time.Duration
	programs sync.Map // source hash -> *goja.Program
}

// New creates a Sandbox around the gated fetch capability.
func New(fetch whitelist.GatedFetch, logger *zap.Logger) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sandbox{fetch: fetch, logger: logger, timeout: Timeout}
}

// RunHandler executes one handler body with the given arguments. Each
// invocation gets a fresh runtime and a deep copy of args; nothing
// leaks between calls. allowFetch selects whether the fetch capability
// is bound (pure-computation tools run without it).
func (s *Sandbox) RunHandler(ctx context.Context, source string, args map[string]any, allowFetch bool) (*mcp.CallToolResult, error) {
	prog, err := s.program(source)
	if err != nil {
		return nil, fmt.Errorf("handler compile: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	vm := goja.New()
	if err := s.setup(vm, ctx, args, allowFetch); err != nil {
		return nil, fmt.Errorf("sandbox setup: %w", err)
	}

	type outcome struct {
		val goja.Value
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, runErr := vm.RunProgram(prog)
		done <- outcome{val: v, err: runErr}
	}()

	select {
	case <-ctx.Done():
		vm.Interrupt("timeout")
		<-done
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("handler timed out after %s", s.timeout)
		}
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			var interrupted *goja.InterruptedError
			if errors.As(o.err, &interrupted) {
				return nil, fmt.Errorf("handler timed out after %s", s.timeout)
			}
			return nil, fmt.Errorf("handler threw: %s", jsErrorMessage(o.err))
		}
		return settle(o.val)
	}
}

// program compiles (and caches) the wrapped handler body. Programs are
// immutable and safe to share across runtimes.
func (s *Sandbox) program(source string) (*goja.Program, error) {
	sum := sha256.Sum256([]byte(source))
	key := hex.EncodeToString(sum[:])
	if v, ok := s.programs.Load(key); ok {
		return v.(*goja.Program), nil
	}
	wrapped := "(async function(args, fetch) {\n" + source + "\n})(args, fetch);"
	prog, err := goja.Compile("handler.js", wrapped, false)
	if err != nil {
		return nil, err
	}
	s.programs.Store(key, prog)
	return prog, nil
}

// setup builds the execution environment: Go helpers, the JS prelude,
// console, args, fetch, then the scrub pass that removes everything
// else.
func (s *Sandbox) setup(vm *goja.Runtime, ctx context.Context, args map[string]any, allowFetch bool) error {
	if err := vm.Set("__parseURL", makeParseURL(vm)); err != nil {
		return err
	}
	if err := vm.Set("__encodeUTF8", makeEncodeUTF8(vm)); err != nil {
		return err
	}
	if err := vm.Set("__decodeUTF8", decodeUTF8); err != nil {
		return err
	}
	if _, err := vm.RunString(preludeJS); err != nil {
		return fmt.Errorf("prelude: %w", err)
	}

	console := vm.NewObject()
	if err := console.Set("log", s.makeConsoleLog()); err != nil {
		return err
	}
	if err := vm.Set("console", console); err != nil {
		return err
	}

	// Deep clone through JSON: the handler gets a native JS object and
	// its mutations never reach the executor's copy.
	argsJSON, err := encodeArgs(args)
	if err != nil {
		return fmt.Errorf("encoding args: %w", err)
	}
	if err := vm.Set("__argsJSON", argsJSON); err != nil {
		return err
	}
	if _, err := vm.RunString("var args = JSON.parse(__argsJSON);"); err != nil {
		return fmt.Errorf("injecting args: %w", err)
	}

	if allowFetch && s.fetch != nil {
		if err := vm.Set("fetch", s.makeFetch(vm, ctx)); err != nil {
			return err
		}
	} else {
		if err := vm.Set("fetch", goja.Undefined()); err != nil {
			return err
		}
	}

	allowed, err := json.Marshal(allowedGlobals)
	if err != nil {
		return err
	}
	if _, err := vm.RunString(fmt.Sprintf(scrubJS, allowed)); err != nil {
		return fmt.Errorf("scrub: %w", err)
	}
	return nil
}

// encodeArgs serializes arguments for injection. nil becomes an empty
// object so handler code can always index args.
func encodeArgs(args map[string]any) (string, error) {
	if args == nil {
		return "{}", nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// settle inspects the promise an async handler body evaluates to. With
// no event loop and a synchronous fetch underneath, the promise is
// settled by the time evaluation returns.
func settle(val goja.Value) (*mcp.CallToolResult, error) {
	promise, ok := val.Export().(*goja.Promise)
	if !ok {
		return validateResult(val.Export())
	}
	switch promise.State() {
	case goja.PromiseStateFulfilled:
		return validateResult(promise.Result().Export())
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("handler threw: %s", jsValueMessage(promise.Result()))
	default:
		return nil, errors.New("handler promise never settled")
	}
}

// validateResult checks the shallow result contract and converts to the
// MCP shape. Deeper content structure is deliberately not inspected.
func validateResult(exported any) (*mcp.CallToolResult, error) {
	m, ok := exported.(map[string]any)
	if !ok {
		return nil, ErrBadShape
	}
	if _, ok := m["content"].([]any); !ok {
		return nil, ErrBadShape
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("serializing handler result: %w", err)
	}
	var res mcp.CallToolResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding handler result: %w", err)
	}
	return &res, nil
}

// makeFetch binds the gated fetch capability as the sandbox's fetch
// global, re-exposing the response through a six-point shim: status,
// ok, statusText, headers.get, text(), json().
func (s *Sandbox) makeFetch(vm *goja.Runtime, ctx context.Context) func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(vm.NewTypeError("fetch requires a URL"))
		}
		rawURL := call.Arguments[0].String()

		freq := &whitelist.FetchRequest{}
		if len(call.Arguments) > 1 && !goja.IsUndefined(call.Arguments[1]) && !goja.IsNull(call.Arguments[1]) {
			opts := call.Arguments[1].ToObject(vm)
			if v := opts.Get("method"); v != nil && !goja.IsUndefined(v) {
				freq.Method = v.String()
			}
			if v := opts.Get("body"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
				freq.Body = v.String()
			}
			if v := opts.Get("headers"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
				freq.Headers = map[string]string{}
				headerObj := v.ToObject(vm)
				for _, k := range headerObj.Keys() {
					freq.Headers[k] = headerObj.Get(k).String()
				}
			}
		}

		resp, err := s.fetch(ctx, rawURL, freq)
		if err != nil {
			panic(vm.NewGoError(err))
		}

		shim := vm.NewObject()
		_ = shim.Set("status", resp.Status)
		_ = shim.Set("ok", resp.Ok())
		_ = shim.Set("statusText", resp.StatusText)

		headers := vm.NewObject()
		_ = headers.Set("get", func(name string) goja.Value {
			v := resp.Headers.Get(name)
			if v == "" {
				return goja.Null()
			}
			return vm.ToValue(v)
		})
		_ = shim.Set("headers", headers)

		body := resp.Body
		_ = shim.Set("text", func() string { return body })
		_ = shim.Set("json", func() (goja.Value, error) {
			var v any
			if err := json.Unmarshal([]byte(body), &v); err != nil {
				return nil, fmt.Errorf("invalid JSON in response body: %w", err)
			}
			return vm.ToValue(v), nil
		})
		return shim
	}
}

// makeConsoleLog redirects handler console.log to the diagnostic log.
// Stdout stays untouched: it belongs to the pipe protocol.
func (s *Sandbox) makeConsoleLog() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		s.logger.Debug("handler console.log", zap.String("message", strings.Join(parts, " ")))
		return goja.Undefined()
	}
}

// makeParseURL backs the prelude's URL class with net/url.
func makeParseURL(vm *goja.Runtime) func(href, base string) goja.Value {
	return func(href, base string) goja.Value {
		var u *url.URL
		var err error
		if base != "" {
			var b *url.URL
			b, err = url.Parse(base)
			if err == nil {
				u, err = b.Parse(href)
			}
		} else {
			u, err = url.Parse(href)
		}
		if err != nil || u.Scheme == "" || u.Host == "" {
			return goja.Null()
		}

		pathname := u.EscapedPath()
		if pathname == "" {
			pathname = "/"
		}
		search := ""
		if u.RawQuery != "" {
			search = "?" + u.RawQuery
		}
		hash := ""
		if u.Fragment != "" {
			hash = "#" + u.Fragment
		}
		return vm.ToValue(map[string]any{
			"href":     u.String(),
			"protocol": u.Scheme + ":",
			"host":     u.Host,
			"hostname": u.Hostname(),
			"port":     u.Port(),
			"pathname": pathname,
			"search":   search,
			"hash":     hash,
			"origin":   u.Scheme + "://" + u.Host,
		})
	}
}

// makeEncodeUTF8 returns UTF-8 bytes as a plain number array; the
// sandbox exposes no binary buffer types.
func makeEncodeUTF8(vm *goja.Runtime) func(s string) goja.Value {
	return func(s string) goja.Value {
		b := []byte(s)
		out := make([]any, len(b))
		for i, v := range b {
			out[i] = int(v)
		}
		return vm.ToValue(out)
	}
}

// decodeUTF8 accepts a number array (or string) and returns the decoded
// string.
func decodeUTF8(v goja.Value) string {
	exported := v.Export()
	switch vv := exported.(type) {
	case string:
		return vv
	case []any:
		b := make([]byte, 0, len(vv))
		for _, e := range vv {
			switch n := e.(type) {
			case int:
				b = append(b, byte(n))
			case int64:
				b = append(b, byte(n))
			case float64:
				b = append(b, byte(int(n)))
			}
		}
		return string(b)
	default:
		return ""
	}
}

// jsErrorMessage extracts a useful message from a goja error.
func jsErrorMessage(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return jsValueMessage(exc.Value())
	}
	return err.Error()
}

// jsValueMessage renders a thrown JS value, preferring .message when
// the value is an Error-like object.
func jsValueMessage(v goja.Value) string {
	if v == nil {
		return "unknown error"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) && !goja.IsNull(m) {
			return m.String()
		}
	}
	return v.String()
}
