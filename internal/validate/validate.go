package validate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/stackward/stackward/internal/check"
	"github.com/stackward/stackward/internal/config"
	"github.com/stackward/stackward/internal/secrets"
	"github.com/stackward/stackward/pkg/api"
)

// Minimum container runtime versions the stack is supported on.
const (
	MinDockerVersion  = "20.10.0"
	MinComposeVersion = "2.17.0"
)

// RequiredTools are the external binaries validation demands.
var RequiredTools = []string{"docker", "curl", "openssl", "tar", "gzip"}

// timeNow is swappable in tests.
var timeNow = time.Now

// DependencyError reports a required external tool or service being absent.
type DependencyError struct {
	Tool string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("required dependency not found: %s", e.Tool)
}

// Level selects how deep secret validation goes.
type Level int

const (
	LevelBasic Level = iota
	LevelComprehensive
)

// Engine composes the validation check categories over the generic harness.
type Engine struct {
	Settings config.Settings
	Secrets  *secrets.Store
	Level    Level

	// lookPath and run are injectable for tests; nil means the real thing.
	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) (string, error)
}

func NewEngine(settings config.Settings, store *secrets.Store, level Level) *Engine {
	return &Engine{Settings: settings, Secrets: store, Level: level}
}

func (e *Engine) look(name string) (string, error) {
	if e.lookPath != nil {
		return e.lookPath(name)
	}
	return exec.LookPath(name)
}

func (e *Engine) exec(ctx context.Context, name string, args ...string) (string, error) {
	if e.run != nil {
		return e.run(ctx, name, args...)
	}
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Registry builds the component registry: dependencies, docker, compose,
// environment, secrets, network, ssl, resources.
func (e *Engine) Registry() *check.Registry {
	reg := check.NewRegistry()
	reg.Register(e.dependencyChecks())
	reg.Register(e.dockerChecks())
	reg.Register(e.composeChecks())
	reg.Register(e.environmentChecks())
	reg.Register(e.secretChecks())
	reg.Register(e.networkChecks())
	reg.Register(e.sslChecks())
	reg.Register(e.resourceChecks())
	return reg
}

// Run executes either every category or the single named component.
func (e *Engine) Run(ctx context.Context, runner *check.Runner, component string) (*check.Report, error) {
	reg := e.Registry()
	groups := reg.All()
	if component != "" {
		group, err := reg.Get(component)
		if err != nil {
			return nil, err
		}
		groups = []check.Category{group}
	}
	return runner.RunAll(ctx, "validation", true, groups), nil
}

func (e *Engine) dependencyChecks() check.Category {
	cat := check.Category{Name: "dependencies"}
	for _, tool := range RequiredTools {
		tool := tool
		cat.Checks = append(cat.Checks, check.Check{
			Name:     tool + " installed",
			Critical: true,
			Probe: func(context.Context) error {
				if _, err := e.look(tool); err != nil {
					return &DependencyError{Tool: tool}
				}
				return nil
			},
		})
	}
	return cat
}

func (e *Engine) dockerChecks() check.Category {
	return check.Category{Name: "docker", Checks: []check.Check{
		{
			Name:     "docker daemon reachable",
			Critical: true,
			Probe: func(ctx context.Context) error {
				_, err := e.exec(ctx, "docker", "info", "--format", "{{.ServerVersion}}")
				return err
			},
		},
		{
			Name:     "docker engine version",
			Critical: true,
			Probe: func(ctx context.Context) error {
				v, err := e.exec(ctx, "docker", "version", "--format", "{{.Server.Version}}")
				if err != nil {
					return err
				}
				if !AtLeast(v, MinDockerVersion) {
					return fmt.Errorf("docker %s is older than required %s", v, MinDockerVersion)
				}
				return nil
			},
		},
		{
			Name:     "compose plugin version",
			Critical: true,
			Probe: func(ctx context.Context) error {
				v, err := e.exec(ctx, "docker", "compose", "version", "--short")
				if err != nil {
					return err
				}
				if !AtLeast(v, MinComposeVersion) {
					return fmt.Errorf("compose %s is older than required %s", v, MinComposeVersion)
				}
				return nil
			},
		},
	}}
}

func (e *Engine) composeChecks() check.Category {
	return check.Category{Name: "compose", Checks: []check.Check{
		{
			Name:     "compose file present",
			Critical: true,
			Probe: func(context.Context) error {
				if _, err := os.Stat(e.Settings.ComposeFile); err != nil {
					return fmt.Errorf("compose file %s: %w", e.Settings.ComposeFile, err)
				}
				return nil
			},
		},
		{
			Name:     "compose file parses",
			Critical: true,
			Probe: func(context.Context) error {
				_, err := ParseCompose(e.Settings.ComposeFile)
				return err
			},
		},
		{
			Name:     "required services declared",
			Critical: true,
			Probe: func(context.Context) error {
				cf, err := ParseCompose(e.Settings.ComposeFile)
				if err != nil {
					return err
				}
				if missing := cf.MissingServices(e.Settings.Services.Required); len(missing) > 0 {
					return fmt.Errorf("services missing from compose definition: %s", strings.Join(missing, ", "))
				}
				return nil
			},
		},
	}}
}

func (e *Engine) environmentChecks() check.Category {
	return check.Category{Name: "environment", Checks: []check.Check{
		{
			Name:     "critical variables",
			Critical: true,
			Probe: func(context.Context) error {
				loader := &config.Loader{Secrets: e.Secrets}
				env, err := loader.Load(e.Settings.EnvFile)
				if err != nil {
					return err
				}
				rep, err := config.ValidateCritical(env, e.Settings.Env.Required, nil, false)
				if err != nil {
					return err
				}
				if len(rep.MissingCritical) > 0 {
					return fmt.Errorf("missing critical variables: %s", strings.Join(rep.MissingCritical, ", "))
				}
				return nil
			},
		},
		{
			Name:     "recommended variables",
			Critical: false,
			Probe: func(context.Context) error {
				loader := &config.Loader{Secrets: e.Secrets}
				env, err := loader.Load(e.Settings.EnvFile)
				if err != nil {
					return err
				}
				rep, err := config.ValidateCritical(env, nil, e.Settings.Env.Recommended, false)
				if err != nil {
					return err
				}
				var issues []string
				issues = append(issues, rep.MissingRecommended...)
				issues = append(issues, rep.Warnings...)
				if len(issues) > 0 {
					return fmt.Errorf("configuration score %d: %s", rep.Score, strings.Join(issues, "; "))
				}
				return nil
			},
		},
	}}
}

func (e *Engine) secretChecks() check.Category {
	cat := check.Category{Name: "secrets"}
	cat.Checks = append(cat.Checks, check.Check{
		Name:     "secret files present",
		Critical: true,
		Probe: func(context.Context) error {
			var missing []string
			for _, name := range e.requiredSecrets() {
				if !e.Secrets.Exists(name) {
					missing = append(missing, name)
				}
			}
			if len(missing) > 0 {
				return fmt.Errorf("missing secrets: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	})
	if e.Level == LevelComprehensive {
		cat.Checks = append(cat.Checks,
			check.Check{
				Name:     "secret file permissions",
				Critical: false,
				Probe: func(context.Context) error {
					for _, name := range e.requiredSecrets() {
						if err := e.Secrets.CheckFileMode(name); err != nil {
							return err
						}
					}
					return e.Secrets.CheckDirMode()
				},
			},
			check.Check{
				Name:     "secret strength",
				Critical: false,
				Probe: func(context.Context) error {
					for _, name := range e.requiredSecrets() {
						if err := e.Secrets.CheckStrength(name); err != nil {
							return err
						}
					}
					return nil
				},
			},
		)
	}
	return cat
}

// requiredSecrets derives the expected secret names from the env validation
// list: every required *_PASSWORD style variable has a matching secret file.
func (e *Engine) requiredSecrets() []string {
	names, err := e.Secrets.List()
	if err == nil && len(names) > 0 {
		return names
	}
	return []string{"db_password", "cache_password"}
}

func (e *Engine) networkChecks() check.Category {
	return check.Category{Name: "network", Checks: []check.Check{
		{
			Name:     "isolated networks declared",
			Critical: true,
			Probe: func(context.Context) error {
				cf, err := ParseCompose(e.Settings.ComposeFile)
				if err != nil {
					return err
				}
				if missing := cf.MissingNetworks(e.Settings.Services.Networks); len(missing) > 0 {
					return fmt.Errorf("networks missing from compose definition: %s", strings.Join(missing, ", "))
				}
				return nil
			},
		},
	}}
}

func (e *Engine) sslChecks() check.Category {
	cfg := e.Settings.SSL
	return check.Category{Name: "ssl", Checks: []check.Check{
		{
			Name:     "certificate and key present",
			Critical: true,
			Probe: func(context.Context) error {
				if cfg.CertFile == "" || cfg.KeyFile == "" {
					return fmt.Errorf("ssl not configured")
				}
				if _, err := os.Stat(cfg.CertFile); err != nil {
					return fmt.Errorf("certificate: %w", err)
				}
				if _, err := os.Stat(cfg.KeyFile); err != nil {
					return fmt.Errorf("private key: %w", err)
				}
				return nil
			},
		},
		{
			Name:     "certificate not expiring",
			Critical: false,
			Probe:    e.expiryProbe(),
		},
		{
			// Mismatch indicates a definitely-broken state, so this stays a
			// hard failure at every validation level.
			Name:     "certificate matches key",
			Critical: true,
			Probe: func(context.Context) error {
				if cfg.CertFile == "" || cfg.KeyFile == "" {
					return fmt.Errorf("ssl not configured")
				}
				return PairMatches(cfg.CertFile, cfg.KeyFile)
			},
		},
	}}
}

func (e *Engine) expiryProbe() check.Probe {
	cfg := e.Settings.SSL
	return func(context.Context) error {
		if cfg.CertFile == "" {
			return fmt.Errorf("ssl not configured")
		}
		cert, err := LoadCertificate(cfg.CertFile)
		if err != nil {
			return err
		}
		days := DaysUntilExpiry(cert, timeNow())
		if days < cfg.WarnDays {
			return fmt.Errorf("certificate expires in %d days", days)
		}
		return nil
	}
}

func (e *Engine) resourceChecks() check.Category {
	limits := e.Settings.Limits
	// Resource shortfalls are advisory for operability, not safety; they
	// never produce hard failures.
	return check.Category{Name: "resources", Checks: []check.Check{
		{
			Name:     "memory",
			Critical: false,
			Probe: func(context.Context) error {
				if mb := TotalMemoryMB(); mb > 0 && mb < limits.MinMemoryMB {
					return fmt.Errorf("%d MB memory, recommended at least %d MB", mb, limits.MinMemoryMB)
				}
				return nil
			},
		},
		{
			Name:     "disk space",
			Critical: false,
			Probe: func(context.Context) error {
				if gb := DiskFreeGB(e.Settings.StackDir); gb < limits.MinDiskGB {
					return fmt.Errorf("%d GB free, recommended at least %d GB", gb, limits.MinDiskGB)
				}
				return nil
			},
		},
		{
			Name:     "cpu cores",
			Critical: false,
			Probe: func(context.Context) error {
				if n := CPUCores(); n < limits.MinCPUCores {
					return fmt.Errorf("%d cores, recommended at least %d", n, limits.MinCPUCores)
				}
				return nil
			},
		},
	}}
}

// SystemInfo gathers runtime facts for the validation status document.
// Failures leave fields empty rather than erroring.
func (e *Engine) SystemInfo(ctx context.Context) *api.SystemInfo {
	info := &api.SystemInfo{
		MemoryMB:   TotalMemoryMB(),
		CPUCores:   CPUCores(),
		DiskFreeGB: DiskFreeGB(e.Settings.StackDir),
	}
	if v, err := e.exec(ctx, "docker", "version", "--format", "{{.Server.Version}}"); err == nil {
		info.DockerVersion = v
	}
	if v, err := e.exec(ctx, "docker", "compose", "version", "--short"); err == nil {
		info.ComposeVersion = v
	}
	return info
}

// ConfigInfo summarizes the configuration surface for the status document.
func (e *Engine) ConfigInfo() *api.ConfigInfo {
	names, _ := e.Secrets.List()
	sslConfigured := e.Settings.SSL.CertFile != "" && e.Settings.SSL.KeyFile != ""
	profile := false
	if p := e.Settings.Security.ProfileFile; p != "" {
		_, err := os.Stat(p)
		profile = err == nil
	}
	return &api.ConfigInfo{
		SecretCount:     len(names),
		SSLConfigured:   sslConfigured,
		SecurityProfile: profile,
	}
}
