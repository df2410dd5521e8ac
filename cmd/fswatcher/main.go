package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fswatcher/internal/app"
	"fswatcher/internal/config"
	"fswatcher/internal/encryption"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file (defaults when absent), then overlays the
// environment and any flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}
	path := defaults["config_path"]
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		path = p
	}

	cfg, err := config.Load(path, defaults["base_dir"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	applyFlags(cmd, cfg)
	return cfg, path, nil
}

// applyFlags copies explicitly set flags over the config.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	set := func(name string, apply func()) {
		if f := flags.Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	set("directory", func() { cfg.WatchPath, _ = flags.GetString("directory") })
	set("bucket", func() { cfg.Bucket, _ = flags.GetString("bucket") })
	set("concurrency", func() { cfg.ConcurrencyLimit, _ = flags.GetInt("concurrency") })
	set("allow-delete", func() { cfg.AllowDelete, _ = flags.GetBool("allow-delete") })
	set("region", func() { cfg.AWS.Region, _ = flags.GetString("region") })
	set("profile", func() { cfg.AWS.Profile, _ = flags.GetString("profile") })
	set("aws-debug", func() { cfg.AWS.Debug, _ = flags.GetBool("aws-debug") })
	set("backtrack", func() { cfg.Backtrack.Enabled, _ = flags.GetBool("backtrack") })
	set("backtrack-date", func() { cfg.Backtrack.Date, _ = flags.GetString("backtrack-date") })
	set("fallback", func() { cfg.UseFallback, _ = flags.GetBool("fallback") })
	set("check-remote", func() { cfg.CheckRemoteOnStart, _ = flags.GetBool("check-remote") })
	set("poll-interval", func() { cfg.Poll.Interval.Duration, _ = flags.GetDuration("poll-interval") })
	set("slack-token", func() { cfg.Slack.Token, _ = flags.GetString("slack-token") })
	set("slack-channel", func() { cfg.Slack.Channel, _ = flags.GetString("slack-channel") })
	set("timestream-db", func() { cfg.Timestream.Database, _ = flags.GetString("timestream-db") })
	set("timestream-table", func() { cfg.Timestream.Table, _ = flags.GetString("timestream-table") })
	set("log-level", func() { cfg.LogLevel, _ = flags.GetString("log-level") })
}

var rootCmd = &cobra.Command{
	Use:          "fswatcher",
	Short:        "Mirror a directory tree into an S3 bucket",
	SilenceUsage: true,
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a directory and mirror changes to the bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.NewWatcherApp(ctx, cfg, app.Options{})
		if err != nil {
			return fmt.Errorf("initializing watcher: %w", err)
		}
		defer a.Close()

		fmt.Fprintf(os.Stderr, "Watching %s -> %s (run %s)\n", cfg.WatchPath, cfg.Bucket, a.RunID())
		if err := a.Run(ctx); err != nil {
			return err
		}

		s := a.Stats()
		fmt.Fprintf(os.Stderr, "Stopped: %d uploaded, %d deleted, %d skipped, %d dead-lettered, %d failed\n",
			s.Uploaded, s.Deleted, s.Skipped, s.DeadLettered, s.Failed)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		path := defaults["config_path"]
		if p, _ := cmd.Flags().GetString("config"); p != "" {
			path = p
		}

		cfg := config.NewConfig(defaults["base_dir"])
		applyFlags(cmd, cfg)

		if err := config.Init(path, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", path)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Watch Path:   %s\n", cfg.WatchPath)
		fmt.Printf("Bucket:       %s\n", cfg.Bucket)
		fmt.Printf("Concurrency:  %d\n", cfg.ConcurrencyLimit)
		fmt.Printf("Allow Delete: %t\n", cfg.AllowDelete)
		fmt.Printf("Fallback:     %t (poll every %s, %s)\n", cfg.UseFallback, cfg.Poll.Interval, cfg.Poll.Strategy)
		fmt.Printf("Store:        %s\n", cfg.Store.Type)
		fmt.Printf("Database:     %s %s\n", cfg.Database.Type, cfg.Database.Path)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		if err := cfg.Validate(); err != nil {
			fmt.Printf("\nNot ready to watch: %v\n", err)
		}
		return nil
	},
}

// deadletters command
var deadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "List uploads that exhausted their retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListDeadLetters(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No dead letters.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("#%d  %s  %s  s3://%s/%s  %s\n",
				e.ID,
				e.EnqueuedAt.Format("2006-01-02 15:04:05"),
				e.SourcePath,
				e.Bucket,
				e.RemoteKey,
				e.Reason,
			)
		}
		return nil
	},
}

var deadLettersRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Upload dead-lettered files again",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := app.NewWatcherApp(cmd.Context(), cfg, app.Options{})
		if err != nil {
			return fmt.Errorf("initializing watcher: %w", err)
		}
		defer a.Close()

		uploaded, err := a.RetryDeadLetters(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Retried dead letters: %d uploaded\n", uploaded)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked files, dead letters and the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		st, err := app.ReadStatus(cmd.Context(), db)
		if err != nil {
			return err
		}
		fmt.Printf("Tracked files: %d\n", st.TrackedFiles)
		fmt.Printf("Dead letters:  %d\n", st.DeadLetters)
		if st.LastRun == nil {
			fmt.Println("Last run:      none")
			return nil
		}
		fmt.Printf("Last run:      %s  %s  %s  %s\n",
			st.LastRun.ID,
			st.LastRun.StartedAt.Format("2006-01-02 15:04:05"),
			st.LastRun.Mode,
			st.LastRun.Status,
		)
		return nil
	},
}

// audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		events, err := db.ListAuditEvents(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No audit records.")
			return nil
		}
		for _, e := range events {
			dest := e.DestKey
			if e.DestBucket != "" {
				dest = "s3://" + e.DestBucket + "/" + e.DestKey
			}
			fmt.Printf("%s  %-6s  %s  %s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"),
				e.Action,
				e.SourceKey,
				dest,
			)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View watch run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}
		for _, r := range runs {
			duration := ""
			if !r.FinishedAt.IsZero() {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Second).String()
			}
			fmt.Printf("%s  %s  %-14s  %-8s  %8s  up=%d del=%d skip=%d dead=%d fail=%d  %s\n",
				r.ID[:min(8, len(r.ID))],
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Mode,
				r.Status,
				duration,
				r.Uploaded, r.Deleted, r.Skipped, r.DeadLettered, r.Failed,
				r.Error,
			)
		}
		return nil
	},
}

// selftest command
var selfTestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Check bucket access with a probe object",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		steps, err := app.SelfTest(cmd.Context(), cfg)
		for _, s := range steps {
			fmt.Println(s)
		}
		if err != nil {
			return fmt.Errorf("self test failed: %w", err)
		}
		fmt.Println("Self test passed.")
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the state database",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup FILE",
	Short: "Write a consistent copy of the state database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Database.Type != "sqlite" {
			return fmt.Errorf("database type %q has nothing to back up", cfg.Database.Type)
		}
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.BackupTo(args[0]); err != nil {
			return err
		}
		fmt.Printf("Backed up %s to %s\n", db.Path(), args[0])
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the age key pair used to encrypt uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}

		pub, err := encryption.NewAgeEncryptor(cfg.Encryption).Setup(pass)
		if err != nil {
			return err
		}
		fmt.Printf("Public key: %s\n", pub)
		fmt.Printf("Keys written to %s and %s\n", cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

var keysDecryptCmd = &cobra.Command{
	Use:   "decrypt FILE",
	Short: "Decrypt a downloaded object to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		dec, err := encryption.NewAgeEncryptor(cfg.Encryption).Unlock(pass)
		if err != nil {
			return err
		}
		return dec.Decrypt(f, os.Stdout)
	},
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default $FSWATCHER_CONFIG_PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "Minimum log level: debug, info, warn, error")

	// watch flags
	f := watchCmd.Flags()
	f.StringP("directory", "d", "", "Directory to watch")
	f.StringP("bucket", "b", "", "Destination bucket, optionally with a folder: bucket[/prefix]")
	f.IntP("concurrency", "c", 0, "Maximum concurrent uploads")
	f.BoolP("allow-delete", "a", false, "Delete remote objects when local files are deleted")
	f.StringP("region", "r", "", "AWS region")
	f.StringP("profile", "p", "", "AWS profile")
	f.Bool("aws-debug", false, "Log AWS SDK retries and requests")
	f.Bool("backtrack", false, "Upload files changed before the watch started")
	f.String("backtrack-date", "", "Only backtrack files modified after this date (YYYY-MM-DD)")
	f.Bool("fallback", false, "Poll the directory instead of using filesystem events")
	f.Bool("check-remote", false, "Skip files already present in the bucket on start")
	f.Duration("poll-interval", 0, "Interval between reconciliation cycles when polling")
	f.String("slack-token", "", "Slack bot token for notifications")
	f.String("slack-channel", "", "Slack channel for notifications")
	f.String("timestream-db", "", "Timestream database for audit records")
	f.String("timestream-table", "", "Timestream table for audit records")

	configInitCmd.Flags().StringP("directory", "d", "", "Directory to watch")
	configInitCmd.Flags().StringP("bucket", "b", "", "Destination bucket, optionally with a folder: bucket[/prefix]")

	selfTestCmd.Flags().StringP("bucket", "b", "", "Bucket to test")
	selfTestCmd.Flags().BoolP("allow-delete", "a", false, "Also delete the probe object")
	selfTestCmd.Flags().StringP("region", "r", "", "AWS region")
	selfTestCmd.Flags().StringP("profile", "p", "", "AWS profile")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbBackupCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysDecryptCmd)

	// deadletters subcommands
	deadLettersCmd.AddCommand(deadLettersRetryCmd)

	// root commands
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(deadLettersCmd)
	deadLettersCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().IntP("limit", "n", 20, "Maximum number of records to show")
	rootCmd.AddCommand(selfTestCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(keysCmd)
}
