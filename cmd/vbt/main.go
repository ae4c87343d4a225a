package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vbt-go/internal/app"
	"vbt-go/internal/settings"
	"vbt-go/internal/vbt"
)

// connectWait caps how long connect waits for the browser authorization to
// come back before giving up.
const connectWait = 5 * time.Minute

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp loads the settings file and creates an App. The caller must defer
// a.Close(). operation identifies the CLI command being run (e.g. "backup",
// "connect") and tags the log lines of this invocation.
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := settings.Load(defaults["config_path"], defaults["base_dir"])
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	a, err := app.New(cfg, defaults["config_path"], defaults["status_path"], operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// readSecret prompts for a value without echoing it. When stdin is not a
// terminal (pipes, scripts) it falls back to reading a plain line.
func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

var rootCmd = &cobra.Command{
	Use:   "vbt",
	Short: "Vault backup tool for S3-compatible storage",
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the vault now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("backup")
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.Backup(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		duration := run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond)
		fmt.Printf("Backed up %d file(s), %d bytes, to %s in %s\n", run.FileCount, run.Bytes, run.Key, duration)
		return nil
	},
}

// test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the storage connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("test")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.TestConnection(cmd.Context()); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		fmt.Printf("Connection OK: bucket %s is reachable\n", a.Settings().Bucket)
		return nil
	},
}

// connect command
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Authorize storage access through the browser",
	RunE: func(cmd *cobra.Command, args []string) error {
		resume, _ := cmd.Flags().GetBool("resume")

		a, err := newApp("connect")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), connectWait)
		defer cancel()

		err = a.Connect(ctx, resume, func(authURL string) {
			fmt.Printf("Complete the authorization in your browser:\n\n  %s\n\n", authURL)
		})
		if err != nil {
			return fmt.Errorf("authorization failed: %w", err)
		}

		fmt.Printf("Connected to account %s\n", a.Settings().AccountID)
		fmt.Println("Run `vbt buckets` to list buckets, then `vbt set bucket NAME` to pick one.")
		return nil
	},
}

// disconnect command
var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Remove the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("disconnect")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Disconnect(); err != nil {
			return fmt.Errorf("disconnecting: %w", err)
		}

		fmt.Println("Disconnected: stored credentials removed.")
		return nil
	},
}

// buckets command
var bucketsCmd = &cobra.Command{
	Use:   "buckets",
	Short: "List buckets visible to the current credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("buckets")
		if err != nil {
			return err
		}
		defer a.Close()

		names, err := a.Buckets(cmd.Context())
		if err != nil {
			return err
		}

		if len(names) == 0 {
			fmt.Println("No buckets visible to these credentials.")
			return nil
		}

		selected := a.Settings().Bucket
		for _, name := range names {
			marker := "  "
			if name == selected {
				marker = "* "
			}
			fmt.Printf("%s%s\n", marker, name)
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current backup status",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		fmt.Println(app.ReadStatus(defaults["status_path"]))
		return nil
	},
}

// daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled backups in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("daemon")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.RunDaemon(ctx)
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View recent backup runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No backup runs recorded.")
			return nil
		}

		for _, r := range runs {
			duration := r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond)
			fmt.Printf("%s  %-9s  %8s  %5d file(s)  %s\n",
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				duration,
				r.FileCount,
				r.Key,
			)
			if r.Status == vbt.RunFailed && r.Reason != "" {
				fmt.Printf("    reason: %s\n", r.Reason)
			}
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage settings",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the settings file",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := settings.NewSettings(defaults["base_dir"])
		if err := settings.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize settings: %w", err)
		}

		fmt.Printf("Settings initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := settings.Load(defaults["config_path"], defaults["base_dir"])
		if err != nil {
			return fmt.Errorf("failed to read settings: %w", err)
		}

		encryption := "off"
		if cfg.EncryptRecipient != "" {
			encryption = "age recipient set"
		}

		fmt.Printf("Settings from %s:\n\n", defaults["config_path"])
		fmt.Printf("Account ID:     %s\n", orUnset(cfg.AccountID))
		fmt.Printf("Access Key ID:  %s\n", orUnset(cfg.AccessKeyID))
		fmt.Printf("Bucket:         %s\n", orUnset(cfg.Bucket))
		fmt.Printf("Vault Root:     %s\n", orUnset(cfg.VaultRoot))
		fmt.Printf("Backup Path:    %s\n", orUnset(cfg.BackupPath))
		fmt.Printf("Exclude:        %s\n", orUnset(cfg.ExcludeFolders))
		fmt.Printf("Auto Backup:    %t (every %d minutes)\n", cfg.AutoBackup, cfg.BackupFrequencyMinutes)
		fmt.Printf("Encryption:     %s\n", encryption)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("History Dir:    %s\n", cfg.HistoryDir)
		return nil
	},
}

func orUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return s
}

// set command
var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change individual settings",
}

var setKeysCmd = &cobra.Command{
	Use:   "keys ACCESS_KEY_ID",
	Short: "Store an access key pair",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := readSecret("Secret access key: ")
		if err != nil {
			return fmt.Errorf("reading secret: %w", err)
		}
		if secret == "" {
			return fmt.Errorf("secret access key must not be empty")
		}

		a, err := newApp("set-keys")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetKeys(args[0], secret); err != nil {
			return fmt.Errorf("saving keys: %w", err)
		}

		fmt.Println("Keys saved.")
		return nil
	},
}

var setAccountCmd = &cobra.Command{
	Use:   "account ACCOUNT_ID",
	Short: "Set the storage account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("set-account")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetAccountID(args[0]); err != nil {
			return fmt.Errorf("saving account: %w", err)
		}

		fmt.Printf("Account set to %s\n", args[0])
		return nil
	},
}

var setBucketCmd = &cobra.Command{
	Use:   "bucket NAME",
	Short: "Select the backup bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("set-bucket")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetBucket(args[0]); err != nil {
			return fmt.Errorf("saving bucket: %w", err)
		}

		fmt.Printf("Bucket set to %s\n", args[0])
		return nil
	},
}

var setVaultCmd = &cobra.Command{
	Use:   "vault DIR",
	Short: "Point at the vault directory to back up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("set-vault")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetVaultRoot(args[0]); err != nil {
			return fmt.Errorf("saving vault root: %w", err)
		}

		fmt.Printf("Vault root set to %s\n", args[0])
		return nil
	},
}

var setPathCmd = &cobra.Command{
	Use:   "path PREFIX",
	Short: "Set the folder prefix archives are stored under",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("set-path")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetBackupPath(args[0]); err != nil {
			return fmt.Errorf("saving backup path: %w", err)
		}

		fmt.Printf("Backup path set to %q\n", args[0])
		return nil
	},
}

var setExcludeCmd = &cobra.Command{
	Use:   "exclude FOLDERS",
	Short: "Set the comma-separated folders to exclude",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("set-exclude")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetExcludeFolders(args[0]); err != nil {
			return fmt.Errorf("saving exclusions: %w", err)
		}

		fmt.Printf("Excluding: %s\n", args[0])
		return nil
	},
}

var setScheduleCmd = &cobra.Command{
	Use:   "schedule on|off [MINUTES]",
	Short: "Enable or disable automatic backups",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch args[0] {
		case "on":
			enabled = true
		case "off":
			enabled = false
		default:
			return fmt.Errorf("schedule must be 'on' or 'off', got %q", args[0])
		}

		a, err := newApp("set-schedule")
		if err != nil {
			return err
		}
		defer a.Close()

		minutes := a.Settings().BackupFrequencyMinutes
		if len(args) == 2 {
			m, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("parsing minutes: %w", err)
			}
			minutes = m
		}

		if err := a.SetSchedule(enabled, minutes); err != nil {
			return fmt.Errorf("saving schedule: %w", err)
		}

		cfg := a.Settings()
		if cfg.AutoBackup {
			fmt.Printf("Automatic backups on, every %d minutes.\n", cfg.BackupFrequencyMinutes)
			fmt.Println("A running daemon picks the new interval up on restart.")
		} else {
			fmt.Println("Automatic backups off.")
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// set subcommands
	setCmd.AddCommand(setKeysCmd)
	setCmd.AddCommand(setAccountCmd)
	setCmd.AddCommand(setBucketCmd)
	setCmd.AddCommand(setVaultCmd)
	setCmd.AddCommand(setPathCmd)
	setCmd.AddCommand(setExcludeCmd)
	setCmd.AddCommand(setScheduleCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().BoolP("resume", "r", false, "Wait for an authorization already in progress")
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(bucketsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
}
