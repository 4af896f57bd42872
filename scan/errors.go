package scan

import (
	"errors"
	"fmt"
)

// ErrUnresolvable marks a filter or strategy expression naming a type the
// catalog cannot resolve. Unresolvable filters are recoverable: the scanner
// logs a warning and skips that single filter. Unresolvable strategies are
// not: a misconfigured name generator or scope resolver fails configuration.
var ErrUnresolvable = errors.New("unresolvable type name")

// ConfigError is a fatal misconfiguration of the scanning subsystem, raised
// synchronously at configuration time so bad setups never reach scanning or
// orchestration.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string {
	return e.msg
}

func newConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
