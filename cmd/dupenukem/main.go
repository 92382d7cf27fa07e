package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"dupenukem/internal/app"
	"dupenukem/internal/config"
	"dupenukem/internal/dupe"
	"dupenukem/internal/encryption"
)

// Exit codes: 0 success, 1 validation failure, 2 I/O failure,
// 3 user declined confirmation.
const (
	exitOK       = 0
	exitValidate = 1
	exitIO       = 2
	exitDeclined = 3
)

var errUserDeclined = errors.New("user declined confirmation")

func main() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

// exitCode maps an error to the command exit contract.
func exitCode(err error) int {
	var parseErr *dupe.ParseError
	var validationErr *dupe.ValidationError
	switch {
	case errors.Is(err, errUserDeclined):
		return exitDeclined
	case errors.As(err, &parseErr), errors.As(err, &validationErr):
		return exitValidate
	default:
		return exitIO
	}
}

// newApp reads the config and creates an App. The caller must defer
// app.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.App, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// readSnapshotInput returns the snapshot text lines from the path
// argument or, with --stdin, from standard input.
func readSnapshotInput(args []string, useStdin bool) ([]string, error) {
	if len(args) > 0 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("reading snapshot file: %w", err)
		}
		return splitLines(string(data)), nil
	}
	if !useStdin {
		return nil, fmt.Errorf("either a snapshot filepath or --stdin must be specified")
	}

	var lines []string
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return lines, nil
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	// A trailing newline produces one empty trailing element; drop it.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		return lines[:n-1]
	}
	return lines
}

var rootCmd = &cobra.Command{
	Use:   "dupenukem",
	Short: "Find duplicate files and resolve them by deletion or symlinking",
	Long: `dupenukem finds duplicate files under a root directory and resolves
them through a reviewable snapshot: 'find' prints the snapshot, you
edit the action markers, 'validate' checks it against the filesystem,
and 'apply' executes it with timestamped backups.`,
}

var findCmd = &cobra.Command{
	Use:   "find ROOTDIR",
	Short: "Find duplicates and generate a snapshot (text representation)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exclude, _ := cmd.Flags().GetStringSlice("exclude")
		quick, _ := cmd.Flags().GetBool("quick")

		a, err := newApp("Find")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Find(args[0], exclude, quick, os.Stdout)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [SNAPSHOT]",
	Short: "Validate a snapshot against the current filesystem",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		useStdin, _ := cmd.Flags().GetBool("stdin")

		lines, err := readSnapshotInput(args, useStdin)
		if err != nil {
			return err
		}

		a, err := newApp("Validate")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Validate(lines)
		if err != nil {
			return err
		}

		for _, issue := range report.Issues {
			fmt.Printf("issue: %v\n", issue)
		}
		fmt.Printf("pending actions: %d\n", report.Pending())
		if err := report.Err(); err != nil {
			return err
		}
		fmt.Println("snapshot is valid")
		return nil
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply [SNAPSHOT]",
	Short: "Apply changes from a snapshot, backing up originals",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		useStdin, _ := cmd.Flags().GetBool("stdin")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		yes, _ := cmd.Flags().GetBool("yes")
		backupDir, _ := cmd.Flags().GetString("backup-dir")

		lines, err := readSnapshotInput(args, useStdin)
		if err != nil {
			return err
		}

		a, err := newApp("Apply")
		if err != nil {
			return err
		}
		defer a.Close()

		if !dryRun && !yes {
			pending, err := a.Pending(lines)
			if err != nil {
				return err
			}
			if pending > 0 {
				if err := confirm(fmt.Sprintf("Apply %d pending action(s)?", pending)); err != nil {
					return err
				}
			}
		}

		report, err := a.Apply(lines, dryRun, backupDir)
		if err != nil {
			return err
		}

		if dryRun {
			fmt.Printf("[DRY RUN] would apply %d action(s), %d already satisfied\n",
				report.Applied, report.Skipped)
			return nil
		}
		fmt.Printf("applied %d action(s), skipped %d, freed %d bytes\n",
			report.Applied, report.Skipped, report.FreedBytes)
		if report.Applied > 0 {
			fmt.Printf("backup stored under stamp %s\n", report.Stamp)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore [STAMP]",
	Short: "Restore files from a backup run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, _ := cmd.Flags().GetBool("list")

		a, err := newApp("Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		if list {
			stamps, err := a.Stamps()
			if err != nil {
				return err
			}
			if len(stamps) == 0 {
				fmt.Println("No backups found.")
				return nil
			}
			for _, s := range stamps {
				fmt.Println(s)
			}
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("a backup stamp is required (see --list)")
		}

		restored, err := a.Restore(args[0], promptPassphrase)
		if err != nil {
			return err
		}
		for _, p := range restored {
			fmt.Println(p)
		}
		fmt.Printf("restored %d file(s)\n", len(restored))
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
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		cfg.Encryption.Enabled = encrypt

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		if encrypt {
			pass, err := promptNewPassphrase()
			if err != nil {
				return err
			}
			enc := encryption.NewAgeEncryptor(cfg.Encryption)
			if err := enc.Setup(pass); err != nil {
				return fmt.Errorf("setting up encryption keys: %w", err)
			}
			fmt.Printf("Encryption keys written under %s\n", defaults["base_dir"])
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Backups: %s\n", cfg.Backup.FSRoot)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := app.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Backup:     %s\n", cfg.Backup.Type)
		if cfg.Backup.Type == "s3" {
			fmt.Printf("S3 Bucket:  %s\n", cfg.Backup.S3Bucket)
		} else {
			fmt.Printf("Backup Dir: %s\n", cfg.Backup.FSRoot)
		}
		fmt.Printf("Hash Cache: %s\n", cfg.Database.Type)
		fmt.Printf("Encrypted:  %v\n", cfg.Encryption.Enabled)
		return nil
	},
}

// confirm asks the user to approve a destructive action. Runs without
// a terminal are refused so scripts must pass --yes explicitly.
func confirm(prompt string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("%w: no terminal for confirmation (use --yes)", errUserDeclined)
	}
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return errUserDeclined
	}
	return nil
}

// promptPassphrase reads the encryption passphrase without echo.
func promptPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "Passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

func promptNewPassphrase() (string, error) {
	first, err := promptPassphrase()
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "Repeat passphrase: ")
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if first != string(second) {
		return "", fmt.Errorf("passphrases do not match")
	}
	return first, nil
}

func init() {
	findCmd.Flags().StringSlice("exclude", nil, "Exclude entry names or root-relative paths")
	findCmd.Flags().Bool("quick", false, "Skip the sha256 confirmation stage")

	validateCmd.Flags().Bool("stdin", false, "Read snapshot text from standard input")

	applyCmd.Flags().Bool("stdin", false, "Read snapshot text from standard input")
	applyCmd.Flags().Bool("dry-run", false, "Log intended operations without changing anything")
	applyCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	applyCmd.Flags().String("backup-dir", "", "Override the backup location for this run")

	restoreCmd.Flags().Bool("list", false, "List available backup stamps")

	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("encrypt", false, "Enable backup encryption and generate keys")
	configCmd.AddCommand(configListCmd)

	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(configCmd)
}
