package config

import "fmt"

// ConfigError describes malformed or missing configuration. In strict mode it
// aborts the run; in lenient mode offending entries are counted and skipped.
type ConfigError struct {
	Source string
	Line   int
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("config error: %s:%d: %s", e.Source, e.Line, e.Reason)
	}
	return fmt.Sprintf("config error: %s: %s", e.Source, e.Reason)
}
