// Package logging constructs the structured logger shared by the runtime's
// components.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logger type accepted by every package in this module.
type Logger = *logiface.Logger[logiface.Event]

// categoryRateLimits bounds repetitive log lines, e.g. stale completions.
var categoryRateLimits = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// New returns a JSON line logger writing to w, filtered at the given level.
// An empty level selects "info".
func New(w io.Writer, level string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(lvl),
		stumpy.L.WithCategoryRateLimits(categoryRateLimits),
	).Logger(), nil
}

// ParseLevel maps a level name, as used in configuration, to a logiface level.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ``, `info`, `informational`:
		return logiface.LevelInformational, nil
	case `disabled`, `off`, `none`:
		return logiface.LevelDisabled, nil
	case `trace`:
		return logiface.LevelTrace, nil
	case `debug`:
		return logiface.LevelDebug, nil
	case `notice`:
		return logiface.LevelNotice, nil
	case `warn`, `warning`:
		return logiface.LevelWarning, nil
	case `err`, `error`:
		return logiface.LevelError, nil
	case `crit`, `critical`:
		return logiface.LevelCritical, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("logging: unknown level %q", s)
	}
}
