package cipher

import (
	"context"
	"errors"
	"fmt"

	"github.com/robertkrimen/otto"
)

// jsEntry is the global the extracted function is assigned to.
const jsEntry = "__yt2ogg_fn"

var errHalt = errors.New("javascript interrupted")

// runJS evaluates src in a fresh otto runtime and calls jsEntry(arg).
// The runtime is interrupted when ctx is done.
func runJS(ctx context.Context, src, arg string) (result string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt <- func() { panic(errHalt) }
	})
	defer stop()
	defer func() {
		if r := recover(); r != nil {
			if r == errHalt {
				result, err = "", ctx.Err()
				return
			}
			panic(r)
		}
	}()

	if _, err := vm.Run(src); err != nil {
		return "", wrapError(ErrCodeJSParsingFailed, "load function", err)
	}
	value, err := vm.Call(jsEntry, nil, arg)
	if err != nil {
		return "", wrapError(ErrCodeJSExecutionFailed, "call function", err)
	}
	if !value.IsString() {
		return "", NewError(ErrCodeJSExecutionFailed, fmt.Sprintf("function returned %s, want string", value.Class()))
	}
	return value.ToString()
}
