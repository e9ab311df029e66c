package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type function func(e *Engine, args string) (string, error)

var funcRegistry = map[string]function{
	"uuid":          fnUUID,
	"timestamp":     fnTimestamp,
	"timestamp_ms":  fnTimestampMs,
	"random":        fnRandom,
	"random_string": fnRandomString,
	"date":          fnDate,
	"pick":          fnPick,
}

// evalFunction evaluates a built-in function call.
// ok is false when expr is not a known function call.
func (e *Engine) evalFunction(expr string) (string, bool, error) {
	parenIdx := strings.Index(expr, "(")
	if parenIdx == -1 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}

	funcName := expr[:parenIdx]
	args := expr[parenIdx+1 : len(expr)-1]

	fn, ok := funcRegistry[funcName]
	if !ok {
		return "", false, nil
	}

	result, err := fn(e, args)
	if err != nil {
		return "", true, fmt.Errorf("function %s: %w", funcName, err)
	}
	return result, true, nil
}

// fnUUID generates a version 4 UUID from the engine's random source.
func fnUUID(e *Engine, args string) (string, error) {
	if args != "" {
		return "", fmt.Errorf("uuid() takes no arguments")
	}
	id, err := uuid.NewRandomFromReader(e.Rand)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func fnTimestamp(e *Engine, args string) (string, error) {
	if args != "" {
		return "", fmt.Errorf("timestamp() takes no arguments")
	}
	return strconv.FormatInt(e.Clock.Now().Unix(), 10), nil
}

func fnTimestampMs(e *Engine, args string) (string, error) {
	if args != "" {
		return "", fmt.Errorf("timestamp_ms() takes no arguments")
	}
	return strconv.FormatInt(e.Clock.Now().UnixMilli(), 10), nil
}

// fnRandom returns an integer between min and max inclusive.
// Usage: random(min,max)
func fnRandom(e *Engine, args string) (string, error) {
	parts := strings.Split(args, ",")
	if len(parts) != 2 {
		return "", fmt.Errorf("random(min,max) requires exactly 2 arguments")
	}

	lo, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}
	hi, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}
	if lo > hi {
		return "", fmt.Errorf("min (%d) must be <= max (%d)", lo, hi)
	}

	return strconv.FormatInt(lo+e.Rand.Int63n(hi-lo+1), 10), nil
}

// fnRandomString returns a lowercase alphanumeric string.
// Usage: random_string(length)
func fnRandomString(e *Engine, args string) (string, error) {
	length, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "", fmt.Errorf("invalid length: %w", err)
	}
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}
	if length > 1000 {
		return "", fmt.Errorf("length must be <= 1000")
	}

	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[e.Rand.Intn(len(charset))]
	}
	return string(result), nil
}

// fnDate formats the engine clock's now with a Go layout, RFC 3339 by default.
// Usage: date(2006-01-02)
func fnDate(e *Engine, args string) (string, error) {
	format := strings.TrimSpace(args)
	if format == "" {
		format = time.RFC3339
	}
	return e.Clock.Now().UTC().Format(format), nil
}

// fnPick returns one of its |-separated options, e.g. pick(comedy|drama).
func fnPick(e *Engine, args string) (string, error) {
	var options []string
	for _, o := range strings.Split(args, "|") {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}
	if len(options) == 0 {
		return "", fmt.Errorf("pick() needs at least one option")
	}
	return options[e.Rand.Intn(len(options))], nil
}
