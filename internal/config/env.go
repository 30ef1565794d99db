package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/stackward/stackward/internal/secrets"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Environment holds resolved key/value pairs from an env definition file,
// plus counts of loaded and errored lines for reporting.
type Environment struct {
	vars    map[string]string
	Loaded  int
	Errored int
}

func (e *Environment) Get(key string) string { return e.vars[key] }

func (e *Environment) Lookup(key string) (string, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// Keys returns the variable names in sorted order.
func (e *Environment) Keys() []string {
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Loader parses a key/value environment definition, resolving file://
// indirection through the secret store and rejecting values that carry
// command-substitution syntax.
type Loader struct {
	Secrets *secrets.Store
	Strict  bool
}

// Load reads the env definition at path line by line. In strict mode any
// defect aborts with a ConfigError; otherwise bad lines are counted as
// errors and skipped so one bad line degrades rather than aborts.
func (l *Loader) Load(path string) (*Environment, error) {
	env := &Environment{vars: map[string]string{}}
	f, err := os.Open(path)
	if err != nil {
		if l.Strict {
			return nil, &ConfigError{Source: path, Reason: "environment file missing"}
		}
		log.Warn().Str("path", path).Msg("environment file missing, continuing with empty environment")
		return env, nil
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := l.parseLine(line)
		if err != nil {
			if l.Strict {
				return nil, &ConfigError{Source: path, Line: lineNo, Reason: err.Error()}
			}
			env.Errored++
			log.Warn().Str("path", path).Int("line", lineNo).Msg(err.Error())
			continue
		}
		env.vars[key] = value
		env.Loaded++
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return env, nil
}

func (l *Loader) parseLine(line string) (string, string, error) {
	line = strings.TrimPrefix(line, "export ")
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", fmt.Errorf("no '=' separator")
	}
	key := strings.TrimSpace(line[:i])
	if !keyPattern.MatchString(key) {
		return "", "", fmt.Errorf("invalid variable name %q", key)
	}
	value := strings.TrimSpace(line[i+1:])

	switch {
	case len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`):
		value = unescape(value[1 : len(value)-1])
	case len(value) >= 2 && strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`):
		value = value[1 : len(value)-1]
	}

	if rest, ok := strings.CutPrefix(value, "file://"); ok {
		resolved, err := l.resolveSecret(rest)
		if err != nil {
			return "", "", fmt.Errorf("resolve %s: %v", key, err)
		}
		value = resolved
	}

	if marker, found := substitutionMarker(value); found {
		return "", "", fmt.Errorf("value of %s contains command substitution (%s)", key, marker)
	}
	return key, value, nil
}

// resolveSecret reads the referenced secret file. Relative references are
// resolved against the secrets directory.
func (l *Loader) resolveSecret(ref string) (string, error) {
	if filepath.IsAbs(ref) {
		data, err := os.ReadFile(ref)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	if l.Secrets == nil {
		return "", fmt.Errorf("no secret store configured for reference %q", ref)
	}
	return l.Secrets.Read(ref)
}

func substitutionMarker(value string) (string, bool) {
	for _, marker := range []string{"$(", "`", "${"} {
		if strings.Contains(value, marker) {
			return marker, true
		}
	}
	return "", false
}

func unescape(s string) string {
	r := strings.NewReplacer(
		`\n`, "\n",
		`\t`, "\t",
		`\r`, "\r",
		`\\`, `\`,
		`\"`, `"`,
	)
	return r.Replace(s)
}
