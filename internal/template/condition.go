package template

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// conditions caches compiled showIf programs.
var conditions = &conditionCache{programs: make(map[string]*vm.Program)}

type conditionCache struct {
	programs map[string]*vm.Program
	mu       sync.RWMutex
}

func conditionEnv() map[string]any {
	return map[string]any{
		"session": map[string]any{"isLoggedIn": false, "isLoggedOut": true},
		"form":    map[string]any{},
		"item":    map[string]any{},
	}
}

func (c *conditionCache) get(code string) (*vm.Program, error) {
	c.mu.RLock()
	if prog, ok := c.programs[code]; ok {
		c.mu.RUnlock()
		return prog, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double check
	if prog, ok := c.programs[code]; ok {
		return prog, nil
	}
	prog, err := expr.Compile(code,
		expr.Env(conditionEnv()),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}
	c.programs[code] = prog
	return prog, nil
}

// CompileCondition checks that a showIf expression compiles.
func CompileCondition(code string) error {
	_, err := conditions.get(strings.TrimSpace(code))
	return err
}

// Visible evaluates showIf against the binding. An empty condition is visible.
// On error the component stays visible and the error is returned for logging.
func Visible(showIf string, b Binding) (bool, error) {
	code := strings.TrimSpace(showIf)
	if code == "" {
		return true, nil
	}
	prog, err := conditions.get(code)
	if err != nil {
		return true, err
	}
	out, err := expr.Run(prog, b.Root())
	if err != nil {
		return true, err
	}
	v, ok := out.(bool)
	if !ok {
		return true, fmt.Errorf("showIf %q: expected bool, got %T", code, out)
	}
	return v, nil
}
