package health

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/stackward/stackward/internal/backup"
	"github.com/stackward/stackward/internal/check"
	"github.com/stackward/stackward/internal/config"
	"github.com/stackward/stackward/internal/secrets"
	"github.com/stackward/stackward/internal/validate"
)

// Unknown is the sentinel returned by informational accessors when the
// underlying value cannot be read. Accessors never raise.
const Unknown = "unknown"

// Runner instantiates the generic check harness against the live stack. All
// probes are read-only with respect to the monitored services, and every
// check executes regardless of earlier failures; the process exit status
// reflects the worst outcome observed.
type Runner struct {
	Settings config.Settings
	Secrets  *secrets.Store
	Env      *config.Environment

	// run is injectable for tests; nil means exec.CommandContext.
	run func(ctx context.Context, name string, args ...string) (string, error)
	now func() time.Time
}

func NewRunner(settings config.Settings, store *secrets.Store, env *config.Environment) *Runner {
	return &Runner{Settings: settings, Secrets: store, Env: env, now: time.Now}
}

func (r *Runner) exec(ctx context.Context, name string, args ...string) (string, error) {
	if r.run != nil {
		return r.run(ctx, name, args...)
	}
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// compose invokes the compose plugin against the configured stack file.
func (r *Runner) compose(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"compose", "-f", r.Settings.ComposeFile}, args...)
	return r.exec(ctx, "docker", full...)
}

// Registry builds the health check categories.
func (r *Runner) Registry() *check.Registry {
	reg := check.NewRegistry()
	reg.Register(r.coreChecks())
	reg.Register(r.serviceChecks())
	reg.Register(r.endpointChecks())
	reg.Register(r.datastoreChecks())
	reg.Register(r.proxyChecks())
	reg.Register(r.storageChecks())
	reg.Register(r.tlsChecks())
	reg.Register(r.backupChecks())
	return reg
}

// Run executes every category, or the single named component.
func (r *Runner) Run(ctx context.Context, runner *check.Runner, component string) (*check.Report, error) {
	reg := r.Registry()
	groups := reg.All()
	if component != "" {
		group, err := reg.Get(component)
		if err != nil {
			return nil, err
		}
		groups = []check.Category{group}
	}
	return runner.RunAll(ctx, "health", false, groups), nil
}

func (r *Runner) coreChecks() check.Category {
	return check.Category{Name: "core", Checks: []check.Check{
		{
			Name:     "docker daemon reachable",
			Critical: true,
			Probe: func(ctx context.Context) error {
				_, err := r.exec(ctx, "docker", "info", "--format", "{{.ServerVersion}}")
				return err
			},
		},
		{
			Name:     "compose plugin available",
			Critical: true,
			Probe: func(ctx context.Context) error {
				_, err := r.exec(ctx, "docker", "compose", "version", "--short")
				return err
			},
		},
	}}
}

func (r *Runner) serviceChecks() check.Category {
	cat := check.Category{Name: "services"}
	for _, service := range r.Settings.Services.Required {
		service := service
		cat.Checks = append(cat.Checks, check.Check{
			Name:     service + " running",
			Critical: true,
			Probe: func(ctx context.Context) error {
				return r.serviceUp(ctx, service)
			},
		})
	}
	return cat
}

func (r *Runner) serviceUp(ctx context.Context, service string) error {
	out, err := r.compose(ctx, "ps", "--services", "--status", "running")
	if err != nil {
		return err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == service {
			return nil
		}
	}
	return fmt.Errorf("service %s is not running", service)
}

func (r *Runner) endpointChecks() check.Category {
	cat := check.Category{Name: "endpoints"}
	for _, ep := range r.Settings.HTTP {
		probe := HTTPProbe{URL: ep.URL, Accept: ep.Accept, Attempts: 3, Delay: time.Second}
		cat.Checks = append(cat.Checks, check.Check{
			Name:     ep.Name,
			Critical: true,
			Probe:    probe.Probe,
		})
	}
	if url := r.Settings.SSL.HTTPSURL; url != "" {
		probe := HTTPProbe{URL: url, Accept: []int{200, 301, 302, 401}, Attempts: 3, Delay: time.Second}
		cat.Checks = append(cat.Checks, check.Check{
			Name:     "https reachable",
			Critical: false,
			Probe:    probe.Probe,
		})
	}
	return cat
}

func (r *Runner) datastoreChecks() check.Category {
	svc := r.Settings.Services
	return check.Category{Name: "datastores", Checks: []check.Check{
		{
			Name:     "database ready",
			Critical: true,
			Probe: func(ctx context.Context) error {
				args := []string{"exec", "-T", svc.Database, "pg_isready"}
				if user := r.envOr("POSTGRES_USER", ""); user != "" {
					args = append(args, "-U", user)
				}
				if db := r.envOr("POSTGRES_DB", ""); db != "" {
					args = append(args, "-d", db)
				}
				_, err := r.compose(ctx, args...)
				return err
			},
		},
		{
			Name:     "cache ready",
			Critical: true,
			Probe: func(ctx context.Context) error {
				args := []string{"exec", "-T", svc.Cache, "redis-cli"}
				if pass, err := r.Secrets.Read("cache_password"); err == nil && pass != "" {
					args = append(args, "--no-auth-warning", "-a", pass)
				}
				args = append(args, "ping")
				out, err := r.compose(ctx, args...)
				if err != nil {
					return err
				}
				if out != "PONG" {
					return fmt.Errorf("cache answered %q, want PONG", out)
				}
				return nil
			},
		},
	}}
}

func (r *Runner) proxyChecks() check.Category {
	svc := r.Settings.Services
	return check.Category{Name: "proxy", Checks: []check.Check{
		{
			Name:     "reverse proxy config",
			Critical: true,
			Probe: func(ctx context.Context) error {
				_, err := r.compose(ctx, "exec", "-T", svc.Proxy, "nginx", "-t")
				return err
			},
		},
	}}
}

func (r *Runner) storageChecks() check.Category {
	limits := r.Settings.Limits
	return check.Category{Name: "storage", Checks: []check.Check{
		{
			Name:     "disk usage below critical",
			Critical: true,
			Probe: func(context.Context) error {
				pct, err := validate.DiskUsedPercent(r.Settings.StackDir)
				if err != nil {
					return err
				}
				if pct >= limits.DiskCritPct {
					return fmt.Errorf("disk %d%% used, critical threshold %d%%", pct, limits.DiskCritPct)
				}
				return nil
			},
		},
		{
			Name:     "disk usage below warning",
			Critical: false,
			Probe: func(context.Context) error {
				pct, err := validate.DiskUsedPercent(r.Settings.StackDir)
				if err != nil {
					return err
				}
				if pct >= limits.DiskWarnPct {
					return fmt.Errorf("disk %d%% used, warning threshold %d%%", pct, limits.DiskWarnPct)
				}
				return nil
			},
		},
	}}
}

func (r *Runner) tlsChecks() check.Category {
	ssl := r.Settings.SSL
	cat := check.Category{Name: "tls"}
	if ssl.CertFile == "" {
		return cat
	}
	cat.Checks = append(cat.Checks,
		check.Check{
			Name:     "certificate beyond critical horizon",
			Critical: true,
			Probe: func(context.Context) error {
				return r.expiryWithin(ssl.CritDays)
			},
		},
		check.Check{
			Name:     "certificate beyond warning horizon",
			Critical: false,
			Probe: func(context.Context) error {
				return r.expiryWithin(ssl.WarnDays)
			},
		},
	)
	return cat
}

func (r *Runner) expiryWithin(thresholdDays int) error {
	cert, err := validate.LoadCertificate(r.Settings.SSL.CertFile)
	if err != nil {
		return err
	}
	days := validate.DaysUntilExpiry(cert, r.now())
	if days < thresholdDays {
		return fmt.Errorf("certificate expires in %d days (threshold %d)", days, thresholdDays)
	}
	return nil
}

func (r *Runner) backupChecks() check.Category {
	cfg := r.Settings.Backup
	return check.Category{Name: "backups", Checks: []check.Check{
		{
			Name:     "backup newer than critical age",
			Critical: true,
			Probe: func(context.Context) error {
				return r.backupYoungerThan(time.Duration(cfg.CritAgeHours) * time.Hour)
			},
		},
		{
			Name:     "backup newer than warning age",
			Critical: false,
			Probe: func(context.Context) error {
				return r.backupYoungerThan(time.Duration(cfg.WarnAgeHours) * time.Hour)
			},
		},
	}}
}

func (r *Runner) backupYoungerThan(maxAge time.Duration) error {
	latest, err := backup.LatestBundleTime(r.Settings.Backup.Dir)
	if err != nil {
		return err
	}
	if age := r.now().Sub(latest); age > maxAge {
		return fmt.Errorf("newest backup is %s old, threshold %s", age.Round(time.Hour), maxAge)
	}
	return nil
}

// ServiceStates reports per-service up/down booleans for the status
// document. Read failures report the service as down.
func (r *Runner) ServiceStates(ctx context.Context) map[string]bool {
	states := make(map[string]bool, len(r.Settings.Services.Required))
	for _, service := range r.Settings.Services.Required {
		states[service] = r.serviceUp(ctx, service) == nil
	}
	return states
}

// AppVersion returns the running application's version tag, or Unknown.
// Informational only, never used for pass/fail classification.
func (r *Runner) AppVersion(ctx context.Context) string {
	out, err := r.compose(ctx, "exec", "-T", "app", "cat", "/app/VERSION")
	if err != nil || out == "" {
		return Unknown
	}
	return out
}

// DatabaseSize returns the primary datastore's size as reported by the
// server, or a not-running sentinel.
func (r *Runner) DatabaseSize(ctx context.Context) string {
	db := r.envOr("POSTGRES_DB", "app")
	args := []string{"exec", "-T", r.Settings.Services.Database, "psql"}
	if user := r.envOr("POSTGRES_USER", ""); user != "" {
		args = append(args, "-U", user)
	}
	// current_database() sizes whichever db we connected to, so the name
	// never has to be spliced into the SQL text.
	args = append(args, "-tAc", "SELECT pg_size_pretty(pg_database_size(current_database()))", db)
	out, err := r.compose(ctx, args...)
	if err != nil || out == "" {
		return "service not running"
	}
	return out
}

// CacheMemory returns the cache's memory footprint, or a not-running
// sentinel.
func (r *Runner) CacheMemory(ctx context.Context) string {
	out, err := r.compose(ctx, "exec", "-T", r.Settings.Services.Cache, "redis-cli", "info", "memory")
	if err != nil {
		return "service not running"
	}
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory_human:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return Unknown
}

func (r *Runner) envOr(key, fallback string) string {
	if r.Env != nil {
		if v, ok := r.Env.Lookup(key); ok {
			return v
		}
	}
	return fallback
}
