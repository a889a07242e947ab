// Package engine loads source databases. A .g.lisp file is evaluated in a
// sandboxed zygomys interpreter whose builtins populate a db.Database.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/gstep/pkg/db"
	"github.com/chazu/gstep/pkg/kernel"
	zygo "github.com/glycerine/zygomys/zygo"
	"go.uber.org/multierr"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in the database source.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use;
// each call to Evaluate creates a fresh sandboxed environment.
type Engine struct {
	kernel kernel.Kernel // converts primitives for the brep builtin

	mu         sync.Mutex
	generation uint64
	timeout    time.Duration
}

// NewEngine creates a new Engine. k backs the (brep ...) builtin.
func NewEngine(k kernel.Kernel) *Engine {
	return &Engine{kernel: k, timeout: DefaultEvalTimeout}
}

// Evaluate takes database source and produces a new Database.
//
// Return semantics:
//   - On success: returns database + nil errors + nil error
//   - On parse/eval failure: returns nil database + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) (*db.Database, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		d, evalErrs, err := e.evaluate(source)
		ch <- evalResult{database: d, errors: evalErrs, err: err}
	}()

	return e.wait(ch, gen)
}

// LoadFile reads and evaluates a database file. Evaluation errors are
// folded into the returned error.
func (e *Engine) LoadFile(path string) (*db.Database, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read database: %w", err)
	}
	d, evalErrs, err := e.Evaluate(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(evalErrs) > 0 {
		var combined error
		for _, ee := range evalErrs {
			combined = multierr.Append(combined, ee)
		}
		return nil, fmt.Errorf("%s: %w", path, combined)
	}
	if d.Title == "" {
		d.Title = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".lisp"), ".g")
	}
	return d, nil
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) (*db.Database, []EvalError, error) {
	d := db.New("")

	// Empty source is a valid, empty database.
	if strings.TrimSpace(source) == "" {
		return d, nil, nil
	}

	// Sandbox mode keeps database files away from the filesystem and syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()

	registerBuiltins(env, d, e.kernel)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return d, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?is)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?is)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError
// values, extracting a line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
