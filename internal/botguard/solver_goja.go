package botguard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/dop251/goja"
)

// GojaSolver executes a user-provided JS file to produce Botguard tokens.
// The script must define a global function `bgAttest(input)` returning a
// string token or an object { token: string, ttlSeconds?: number }.
type GojaSolver struct {
	name    string
	program *goja.Program
}

// NewGojaSolver reads and compiles the script at scriptPath.
func NewGojaSolver(scriptPath string) (*GojaSolver, error) {
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return NewGojaSolverFromSource(scriptPath, string(src))
}

// NewGojaSolverFromSource compiles src; name is used in error positions.
func NewGojaSolverFromSource(name, src string) (*GojaSolver, error) {
	program, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, fmt.Errorf("compile script: %w", err)
	}
	return &GojaSolver{name: name, program: program}, nil
}

// Attest runs bgAttest in a fresh runtime. The script is interrupted when
// ctx is done.
func (s *GojaSolver) Attest(ctx context.Context, input Input) (Output, error) {
	if s == nil || s.program == nil {
		return Output{}, errors.New("goja solver: no script loaded")
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	_ = vm.Set("console", map[string]any{"log": func(...any) {}})

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	if _, err := vm.RunProgram(s.program); err != nil {
		return Output{}, fmt.Errorf("run script: %w", err)
	}

	fn, ok := goja.AssertFunction(vm.Get("bgAttest"))
	if !ok {
		return Output{}, errors.New("bgAttest function not found in script")
	}
	res, err := fn(goja.Undefined(), vm.ToValue(input))
	if err != nil {
		return Output{}, fmt.Errorf("bgAttest: %w", err)
	}
	return exportOutput(vm, res)
}

func exportOutput(vm *goja.Runtime, res goja.Value) (Output, error) {
	if res == nil || goja.IsUndefined(res) || goja.IsNull(res) {
		return Output{}, errors.New("bgAttest returned undefined/null")
	}
	if str, ok := res.Export().(string); ok {
		return Output{Token: str}, nil
	}

	obj := res.ToObject(vm)
	var out Output
	if v := obj.Get("token"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		out.Token = v.String()
	}
	if v := obj.Get("ttlSeconds"); v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
		if secs := v.ToFloat(); secs > 0 && !math.IsInf(secs, 0) {
			out.ExpiresAt = time.Now().Add(time.Duration(secs * float64(time.Second)))
		}
	}
	if out.Token == "" {
		return Output{}, errors.New("bgAttest returned no token")
	}
	return out, nil
}
