// Package template expands ${var}, ${q:var}, ${env:VAR} and ${func(args)}
// placeholders.
// Sessions use it to build attributed entry URLs and generated signup
// credentials from persona traits.
package template

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"hogsim/internal/core"
)

// varPattern matches every placeholder form.
var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Engine expands templates. Function placeholders draw from Rand and Clock so
// a seeded run generates the same URLs and credentials every time.
type Engine struct {
	Rand  *core.Rand
	Clock core.Clock
}

// New returns an Engine. A nil clock means wall time.
func New(rng *core.Rand, clock core.Clock) *Engine {
	if rng == nil {
		rng = core.NewRand(0)
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	return &Engine{Rand: rng, Clock: clock}
}

// Substitute replaces every placeholder in text.
// Returns all errors joined if several placeholders cannot be resolved.
// Text without placeholders is returned unchanged.
func (e *Engine) Substitute(text string, vars core.Variables) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var errs []error
	result := varPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[2 : len(match)-1]

		if strings.HasPrefix(name, "env:") {
			envName := name[4:]
			if val, ok := os.LookupEnv(envName); ok {
				return val
			}
			errs = append(errs, fmt.Errorf("env var %q not set", envName))
			return match
		}

		if key, ok := strings.CutPrefix(name, "q:"); ok {
			if vars != nil {
				if val, ok := vars.Get(key); ok {
					return url.QueryEscape(fmt.Sprintf("%v", val))
				}
			}
			errs = append(errs, fmt.Errorf("variable %q not found", key))
			return match
		}

		if val, ok, err := e.evalFunction(name); ok {
			if err != nil {
				errs = append(errs, err)
				return match
			}
			return val
		}

		if vars != nil {
			if val, ok := vars.Get(name); ok {
				return fmt.Sprintf("%v", val)
			}
		}
		errs = append(errs, fmt.Errorf("variable %q not found", name))
		return match
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return result, nil
}

// SubstituteMap applies Substitute to every value of m.
func (e *Engine) SubstituteMap(m map[string]string, vars core.Variables) (map[string]string, error) {
	if m == nil {
		return nil, nil
	}

	result := make(map[string]string, len(m))
	var errs []error
	for k, v := range m {
		substituted, err := e.Substitute(v, vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %q: %w", k, err))
			continue
		}
		result[k] = substituted
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}
