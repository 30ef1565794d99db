package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Penalties applied when computing the configuration score.
const (
	penaltyMissingCritical    = 25
	penaltyMissingRecommended = 5
	penaltySanityWarning      = 10
)

// CriticalReport is the outcome of validating required and recommended
// variables against a loaded environment.
type CriticalReport struct {
	Score              int
	MissingCritical    []string
	MissingRecommended []string
	Warnings           []string
}

// ValidateCritical checks presence of required keys and presence/sanity of
// recommended keys, and derives a 0-100 score. In strict mode a missing
// required key aborts with a ConfigError.
func ValidateCritical(env *Environment, required, recommended []string, strict bool) (*CriticalReport, error) {
	rep := &CriticalReport{}
	for _, key := range required {
		if v, ok := env.Lookup(key); !ok || v == "" {
			if strict {
				return nil, &ConfigError{Source: "environment", Reason: fmt.Sprintf("required variable %s is not set", key)}
			}
			rep.MissingCritical = append(rep.MissingCritical, key)
		}
	}
	for _, key := range recommended {
		v, ok := env.Lookup(key)
		if !ok || v == "" {
			rep.MissingRecommended = append(rep.MissingRecommended, key)
			continue
		}
		if warn := sanityCheck(key, v); warn != "" {
			rep.Warnings = append(rep.Warnings, warn)
		}
	}

	score := 100
	score -= penaltyMissingCritical * len(rep.MissingCritical)
	score -= penaltyMissingRecommended * len(rep.MissingRecommended)
	score -= penaltySanityWarning * len(rep.Warnings)
	if score < 0 {
		score = 0
	}
	rep.Score = score
	return rep, nil
}

// sanityCheck applies format rules keyed on the variable's role. A non-empty
// return is a warning, never a hard failure.
func sanityCheck(key, value string) string {
	switch {
	case strings.HasSuffix(key, "_PROTOCOL"):
		if value != "http" && value != "https" {
			return fmt.Sprintf("%s must be http or https, got %q", key, value)
		}
	case strings.HasSuffix(key, "_PORT"):
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Sprintf("%s must be a port number, got %q", key, value)
		}
	case key == "TZ" || strings.HasSuffix(key, "_TZ"):
		if !timezoneCharset(value) {
			return fmt.Sprintf("%s does not look like a timezone, got %q", key, value)
		}
	}
	return ""
}

func timezoneCharset(v string) bool {
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '/' || r == '_' || r == '+' || r == '-':
		default:
			return false
		}
	}
	return v != ""
}
