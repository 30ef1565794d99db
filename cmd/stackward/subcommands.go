package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stackward/stackward/internal/backup"
	"github.com/stackward/stackward/internal/check"
	"github.com/stackward/stackward/internal/config"
	"github.com/stackward/stackward/internal/health"
	"github.com/stackward/stackward/internal/remote"
	"github.com/stackward/stackward/internal/secrets"
	"github.com/stackward/stackward/internal/store"
	"github.com/stackward/stackward/internal/telemetry"
	"github.com/stackward/stackward/internal/validate"
	"github.com/stackward/stackward/pkg/api"
)

// Resolve settings and the secret store
func loadStack(cmd *cobra.Command) (config.Settings, *secrets.Store, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	settings, err := config.LoadSettings(cfgPath)
	if err != nil {
		return config.Settings{}, nil, err
	}
	return settings, secrets.NewStore(settings.SecretsDir), nil
}

// Persist the run outcome; history is best-effort and never changes the
// exit status.
func recordRun(ctx context.Context, settings config.Settings, rep *check.Report) {
	s, err := store.NewStore(settings.HistoryDB)
	if err != nil {
		log.Warn().Err(err).Msg("run history unavailable")
		return
	}
	defer s.Close()
	if err := s.Record(ctx, rep); err != nil {
		log.Warn().Err(err).Msg("failed to record run")
	}
}

// Flush per-check timers and run counters through the log.
func flushMetrics(rep *check.Report) {
	col := telemetry.NewCollector(true)
	for _, cat := range rep.Categories {
		for _, res := range cat.Results {
			col.Timer("check_duration", res.Duration, map[string]string{
				"category": cat.Name, "check": res.Name, "outcome": string(res.Outcome),
			})
		}
	}
	col.Counter("checks_passed", float64(rep.Passed), map[string]string{"kind": rep.Kind})
	col.Counter("checks_failed", float64(rep.Failed), map[string]string{"kind": rep.Kind})
	col.Counter("checks_warned", float64(rep.Warned), map[string]string{"kind": rep.Kind})
	col.Flush()
}

// Run validation checks
func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [component]",
		Short: "Validate the deployment before or after changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, secretStore, err := loadStack(cmd)
			if err != nil {
				return err
			}
			level := validate.LevelBasic
			if deep, _ := cmd.Flags().GetBool("comprehensive"); deep {
				level = validate.LevelComprehensive
			}
			engine := validate.NewEngine(settings, secretStore, level)
			runner := &check.Runner{Out: cmd.OutOrStdout()}

			component := ""
			if len(args) == 1 {
				component = args[0]
			}
			rep, err := engine.Run(cmd.Context(), runner, component)
			if err != nil {
				return err
			}
			runner.Summary(rep)
			flushMetrics(rep)
			recordRun(cmd.Context(), settings, rep)

			doc := rep.Document(version, nil)
			doc.System = engine.SystemInfo(cmd.Context())
			doc.Config = engine.ConfigInfo()
			if err := check.WriteStatus(doc, filepath.Join(settings.StatusDir, "validation.json")); err != nil {
				log.Warn().Err(err).Msg("failed to write status document")
			}
			if rep.ExitCode() != 0 {
				return fmt.Errorf("validation verdict: %s", rep.Verdict())
			}
			return nil
		},
	}
	cmd.Flags().Bool("comprehensive", false, "also audit secret permissions and strength")
	return cmd
}

// Run health checks against the live stack
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health [component]",
		Short: "Check the health of the running stack",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, secretStore, err := loadStack(cmd)
			if err != nil {
				return err
			}
			loader := &config.Loader{Secrets: secretStore}
			env, err := loader.Load(settings.EnvFile)
			if err != nil {
				return err
			}
			hr := health.NewRunner(settings, secretStore, env)
			runner := &check.Runner{Out: cmd.OutOrStdout()}

			component := ""
			if len(args) == 1 {
				component = args[0]
			}
			rep, err := hr.Run(cmd.Context(), runner, component)
			if err != nil {
				return err
			}
			runner.Summary(rep)
			flushMetrics(rep)
			recordRun(cmd.Context(), settings, rep)

			doc := rep.Document(hr.AppVersion(cmd.Context()), hr.ServiceStates(cmd.Context()))
			if err := check.WriteStatus(doc, filepath.Join(settings.StatusDir, "health.json")); err != nil {
				log.Warn().Err(err).Msg("failed to write status document")
			}
			if rep.ExitCode() != 0 {
				return fmt.Errorf("health verdict: %s", rep.Verdict())
			}
			return nil
		},
	}
}

// Resolve the configured remote target. Push is best-effort, so a
// misconfigured remote degrades to a local-only run instead of aborting
// before any artifact is dumped.
func resolveRemote(settings config.RemoteSettings) backup.Target {
	target, err := remote.New(settings)
	if err != nil {
		log.Warn().Err(err).Msg("remote target unavailable, running local-only backup")
		return nil
	}
	return target
}

// Run the backup pipeline
func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot every stateful subsystem into a sealed bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, secretStore, err := loadStack(cmd)
			if err != nil {
				return err
			}
			pipeline := backup.NewPipeline(settings, secretStore)
			pipeline.Webhook = settings.Backup.WebhookURL
			pipeline.Remote = resolveRemote(settings.Backup.Remote)

			bundle, err := pipeline.Run(cmd.Context())
			if err != nil {
				return err
			}
			rep := check.NewReport("backup", false)
			for name, ok := range bundle.Subsystems {
				outcome := api.OutcomePass
				if !ok {
					outcome = api.OutcomeWarn
				}
				rep.Add("subsystems", check.Result{Name: name + " backup", Outcome: outcome})
			}
			rep.Finalize()
			recordRun(cmd.Context(), settings, rep)

			fmt.Fprintf(cmd.OutOrStdout(), "bundle %s sealed: %d artifacts, %s, mode %s\n",
				bundle.Timestamp, len(bundle.Artifacts), humanize.Bytes(uint64(bundle.TotalSize)), bundle.Mode)
			for name, ok := range bundle.Subsystems {
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "warning: %s was not backed up\n", name)
				}
			}
			return nil
		},
	}
}

// Restore a bundle to plaintext
func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <bundle-dir>",
		Short: "Verify a bundle and materialize its artifacts as plaintext",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, _ := cmd.Flags().GetString("identity")
			dest, _ := cmd.Flags().GetString("dest")
			if dest == "" {
				dest = filepath.Join(args[0], "restored")
			}
			if err := backup.Restore(args[0], identity, dest); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bundle restored to %s\n", dest)
			return nil
		},
	}
	cmd.Flags().String("identity", "", "age identity file for encrypted bundles")
	cmd.Flags().String("dest", "", "destination directory (default <bundle>/restored)")
	return cmd
}

// Manage secret files
func newSecretsCmd() *cobra.Command {
	parent := &cobra.Command{
		Use:   "secrets",
		Short: "Manage secret files",
	}

	gen := &cobra.Command{
		Use:   "generate [name...]",
		Short: "Generate missing secret files with random values",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, secretStore, err := loadStack(cmd)
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = []string{"db_password", "cache_password", "app_secret_key"}
			}
			force, _ := cmd.Flags().GetBool("force")
			created, err := secretStore.Generate(names, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generated %d secret(s) in %s\n", created, secretStore.Dir())
			return nil
		},
	}
	gen.Flags().Bool("force", false, "regenerate secrets that already exist")
	parent.AddCommand(gen)
	return parent
}

// Inspect configuration
func newConfigCmd() *cobra.Command {
	parent := &cobra.Command{
		Use:   "config",
		Short: "Inspect stack configuration",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Load the env file and score critical configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, secretStore, err := loadStack(cmd)
			if err != nil {
				return err
			}
			strict, _ := cmd.Flags().GetBool("strict")
			loader := &config.Loader{Secrets: secretStore, Strict: strict}
			env, err := loader.Load(settings.EnvFile)
			if err != nil {
				return err
			}
			rep, err := config.ValidateCritical(env, settings.Env.Required, settings.Env.Recommended, strict)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "loaded %d variable(s), %d unreadable, score %d/100\n", env.Loaded, env.Errored, rep.Score)
			for _, name := range rep.MissingCritical {
				fmt.Fprintf(out, "missing critical: %s\n", name)
			}
			for _, name := range rep.MissingRecommended {
				fmt.Fprintf(out, "missing recommended: %s\n", name)
			}
			for _, warning := range rep.Warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			if len(rep.MissingCritical) > 0 {
				return fmt.Errorf("%d critical variable(s) missing", len(rep.MissingCritical))
			}
			return nil
		},
	}
	checkCmd.Flags().Bool("strict", false, "fail on any unreadable value or missing critical variable")
	parent.AddCommand(checkCmd)
	return parent
}

// Show recent run history
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent validation, health and backup runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, err := loadStack(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			s, err := store.NewStore(settings.HistoryDB)
			if err != nil {
				return err
			}
			defer s.Close()
			runs, err := s.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s\t%-10s\t%-22s\tpassed=%d failed=%d warned=%d score=%d\n",
					r.Timestamp.Local().Format(time.RFC3339), r.Kind, r.Verdict, r.Passed, r.Failed, r.Warned, r.Score)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of runs to show")
	return cmd
}
