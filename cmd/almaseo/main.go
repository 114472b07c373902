package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"almaseo-go/internal/app"
	"almaseo-go/internal/config"
	"almaseo-go/internal/encryption"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, app.Paths, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, paths, fmt.Errorf("getting defaults: %w", err)
	}
	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, paths, fmt.Errorf("reading config: %w", err)
	}
	return cfg, paths, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "RedirectAdd", "Serve").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn against a fresh App and marks the operation failed when fn
// returns an error.
func withApp(operation string, fn func(cmd *cobra.Command, args []string, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, operation)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := fn(cmd, args, a); err != nil {
			a.Fail(err)
			return err
		}
		return nil
	}
}

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, raw)
	}
	return id, nil
}

// readPassphrase prompts on stderr and reads without echo from a terminal, or
// reads one line from a piped stdin.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading passphrase from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func newAdminToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating admin token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "almaseo",
	Short:        "SEO redirects manager and metadata history",
	SilenceUsage: true,
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
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		siteID := uuid.New().String()
		cfg := config.NewConfig(siteID, paths.BaseDir)
		cfg.LogDir = paths.LogDir
		if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
			cfg.Site.BaseURL = baseURL
		}
		cfg.Server.AdminToken, err = newAdminToken()
		if err != nil {
			return err
		}

		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Site ID:  %s\n", siteID)
		fmt.Printf("Site URL: %s\n", cfg.Site.BaseURL)
		fmt.Printf("Base Dir: %s\n", paths.BaseDir)
		fmt.Println("Run `almaseo db migrate` to create the database.")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, paths, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigPath)
		fmt.Printf("Site ID:        %s\n", cfg.SiteID)
		fmt.Printf("Site URL:       %s\n", cfg.Site.BaseURL)
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Database:       %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Cache:          %s (ttl %s)\n", cfg.Cache.Type, cfg.Redirects.CacheTTL.Duration)
		fmt.Printf("Archive:        %s\n", cfg.Archive.Type)
		fmt.Printf("Retention Cap:  %d\n", cfg.History.RetentionCap)
		fmt.Printf("Server Address: %s\n", cfg.Server.Address)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage export encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair used to encrypt history exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := enc.Setup(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Encryption keys written to %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.MigrateUp(); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		st, err := db.MigrationStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Database at schema version %d\n", st.Current)
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := app.OpenDatabase(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		st, err := db.MigrationStatus()
		if err != nil {
			return err
		}
		fmt.Printf("Path:    %s\n", db.Path())
		fmt.Printf("Current: %d\n", st.Current)
		fmt.Printf("Latest:  %d\n", st.Latest)
		if st.Dirty {
			fmt.Println("State:   dirty (a migration failed)")
		} else if n := st.Pending(); n > 0 {
			fmt.Printf("State:   %d migration(s) pending\n", n)
		} else {
			fmt.Println("State:   up to date")
		}
		return nil
	},
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the database into the archive",
	RunE: withApp("DBBackup", func(cmd *cobra.Command, args []string, a *app.App) error {
		name, err := a.BackupDatabase(cmd.Context())
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Database backed up to %s\n", name)
		return nil
	}),
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve front-end redirects, the admin API and metrics",
	RunE: withApp("Serve", func(cmd *cobra.Command, args []string, a *app.App) error {
		address, _ := cmd.Flags().GetString("address")
		return a.Serve(cmd.Context(), address)
	}),
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("base-url", "", "Public base URL of the site (e.g. https://example.com)")
	configCmd.AddCommand(configListCmd)

	keysCmd.AddCommand(keysInitCmd)

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbBackupCmd)

	serveCmd.Flags().String("address", "", "Listen address (default from config)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(redirectCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(metaCmd)
	rootCmd.AddCommand(serveCmd)
}
