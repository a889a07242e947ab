package engine

import (
	"fmt"
	"time"

	"github.com/chazu/gstep/pkg/db"
)

// DefaultEvalTimeout bounds a single evaluation unless SetTimeout changes it.
const DefaultEvalTimeout = 5 * time.Second

type evalResult struct {
	database *db.Database
	errors   []EvalError
	err      error
}

// SetTimeout changes the evaluation limit. Non-positive values restore the
// default.
func (e *Engine) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultEvalTimeout
	}
	e.mu.Lock()
	e.timeout = d
	e.mu.Unlock()
}

// wait returns the result of evaluation gen, or an error once the limit
// passes. A result that arrives after a newer Evaluate call started is
// discarded: the database it built belongs to a superseded source.
func (e *Engine) wait(ch <-chan evalResult, gen uint64) (*db.Database, []EvalError, error) {
	e.mu.Lock()
	limit := e.timeout
	e.mu.Unlock()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-ch:
		e.mu.Lock()
		stale := gen != e.generation
		e.mu.Unlock()
		if stale {
			return nil, nil, fmt.Errorf("evaluation %d superseded by %d", gen, e.current())
		}
		return res.database, res.errors, res.err
	case <-timer.C:
		return nil, nil, fmt.Errorf("evaluation timed out after %s", limit)
	}
}

func (e *Engine) current() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}
