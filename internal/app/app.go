package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"almaseo-go/internal/archive"
	"almaseo-go/internal/cache"
	"almaseo-go/internal/config"
	"almaseo-go/internal/database"
	"almaseo-go/internal/dispatch"
	"almaseo-go/internal/encryption"
	"almaseo-go/internal/httpserver"
	"almaseo-go/internal/metrics"
	"almaseo-go/internal/model"
	"almaseo-go/internal/seo"
)

// queueDrainTimeout bounds how long Close waits for deferred hit recording.
const queueDrainTimeout = 5 * time.Second

// App is the application layer between the CLI and the seo services.
// It constructs all dependencies from config, exposes the operations the CLI
// and HTTP server need, and releases everything on Close.
type App struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	queue     *dispatch.Queue
	archive   seo.Archive
	encryptor seo.Encryptor
	metrics   *metrics.Metrics
	redirects *seo.RedirectService
	matcher   *seo.Matcher
	history   *seo.HistoryService
	exports   *seo.ExportService
	op        *Operation
	logger    *slog.Logger
	logFile   *os.File
}

// New creates a fully wired App from the given config.
// operation names the CLI command being run (e.g. "RedirectAdd", "Serve").
// The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	op := NewOperation(operation)
	logger, logFile, err := newLogger(cfg.LogDir, cfg.Log, op.RunID, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a := &App{cfg: cfg, op: op, logger: logger, logFile: logFile}
	if err := a.wire(ctx); err != nil {
		a.closeResources()
		logFile.Close()
		return nil, err
	}
	logger.Debug("operation started", "operation", op.Name)
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.cfg
	log := &slogAdapter{l: a.logger}

	site, err := seo.NewSite(cfg.Site.BaseURL)
	if err != nil {
		return fmt.Errorf("site base_url: %w", err)
	}

	db, err := OpenDatabase(cfg)
	if err != nil {
		return err
	}
	a.db = db
	if cfg.Database.Type == "memory" {
		if err := db.MigrateUp(); err != nil {
			return fmt.Errorf("migrating in-memory database: %w", err)
		}
	} else if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("database schema out of date (run `almaseo db migrate`): %w", err)
	}

	clock := seo.RealClock{}
	c, err := cache.NewCacheFromConfig(ctx, cfg.Cache, clock)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}

	if cfg.Archive.Type != "" {
		a.archive, err = archive.NewArchiveFromConfig(ctx, cfg.Archive)
		if err != nil {
			return fmt.Errorf("creating archive: %w", err)
		}
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	a.queue = dispatch.NewQueue(cfg.Dispatch.QueueSize, cfg.Dispatch.Workers, log)
	a.queue.Start()

	hooks := seo.NewHooks()
	a.metrics = metrics.New()
	a.metrics.Observe(hooks)

	a.redirects = seo.NewRedirectService(db, c, site, log, clock, cfg.Redirects.CacheTTL.Duration)
	a.matcher = seo.NewMatcher(a.redirects, site, a.queue, hooks, log)
	a.history = seo.NewHistoryService(db, db, hooks, log, clock, seo.UUIDGenerator{}, seo.HistoryOptions{
		Fields:       trackedFields(cfg.History.Fields),
		RetentionCap: cfg.History.RetentionCap,
	})
	a.exports = seo.NewExportService(a.redirects, a.history, a.archive, a.encryptor, clock, cfg.SiteID, log)
	return nil
}

// OpenDatabase opens the configured database without checking its schema
// version, for the db subcommands.
func OpenDatabase(cfg *config.Config) (*database.SQLiteDatabase, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.SiteID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	return db, nil
}

func trackedFields(fields []config.FieldConfig) []seo.TrackedField {
	if len(fields) == 0 {
		return nil
	}
	out := make([]seo.TrackedField, len(fields))
	for i, f := range fields {
		out[i] = seo.TrackedField{Name: f.Name, MetaKey: f.MetaKey}
	}
	return out
}

// Redirects returns the redirect service.
func (a *App) Redirects() *seo.RedirectService { return a.redirects }

// Matcher returns the front-end redirect matcher.
func (a *App) Matcher() *seo.Matcher { return a.matcher }

// History returns the metadata history service.
func (a *App) History() *seo.HistoryService { return a.history }

// Exports returns the export service.
func (a *App) Exports() *seo.ExportService { return a.exports }

// Fail marks the operation as failed; Close logs it with that status.
func (a *App) Fail(err error) {
	a.op.Fail(err)
}

// ImportDocument reads an export document from r and imports it onto postID.
// Encrypted documents are decrypted after unlocking the private key with the
// passphrase returned by prompt, which is only called when needed.
func (a *App) ImportDocument(ctx context.Context, postID int64, r io.Reader, prompt func() (string, error)) (*seo.RestoreResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	var dec seo.DecryptionContext
	if seo.IsEncryptedDocument(data) {
		if !a.encryptor.IsConfigured() {
			return nil, fmt.Errorf("document is encrypted but no keys are configured (run `almaseo keys init`)")
		}
		passphrase, err := prompt()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		dec, err = a.encryptor.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlocking private key: %w", err)
		}
	}

	doc, err := seo.ReadDocument(bytes.NewReader(data), dec)
	if err != nil {
		return nil, err
	}
	return a.history.Import(ctx, postID, doc)
}

// BackupDatabase snapshots the database to a temp file and stores it in the
// archive. Returns the archive name.
func (a *App) BackupDatabase(ctx context.Context) (string, error) {
	if a.archive == nil {
		return "", seo.ErrNoArchive
	}
	if a.cfg.Database.Type == "memory" {
		return "", fmt.Errorf("in-memory databases cannot be backed up")
	}

	tmpFile, err := os.CreateTemp("", "almaseo-db-backup-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for db backup: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	// VACUUM INTO refuses to overwrite an existing file.
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := a.db.BackupTo(ctx, tmpPath); err != nil {
		return "", err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return "", fmt.Errorf("opening db backup for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat db backup: %w", err)
	}
	return a.exports.ArchiveBackup(ctx, f, info.Size())
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context, address string) error {
	if address == "" {
		address = a.cfg.Server.Address
	}
	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	if a.cfg.Server.AdminToken == "" {
		a.logger.Warn("no admin token configured; the admin API is disabled")
	}

	srv := httpserver.New(httpserver.Services{
		Redirects: a.redirects,
		Matcher:   a.matcher,
		History:   a.history,
		Exports:   a.exports,
		Metrics:   a.metrics,
		Logger:    &slogAdapter{l: a.logger},
	}, httpserver.Options{
		Address:    address,
		AdminToken: a.cfg.Server.AdminToken,
		TestParam:  a.cfg.Redirects.TestParam,
	})
	return srv.Run(ctx)
}

// SetFields writes tracked fields for a post and auto-captures a snapshot
// attributed to userID when it is non-zero.
func (a *App) SetFields(ctx context.Context, postID, userID int64, fields model.Fields) error {
	if userID > 0 {
		ctx = seo.WithUserID(ctx, userID)
	}
	return a.history.SaveFields(ctx, postID, fields)
}

// Close drains the task queue, closes the database and finalizes the
// operation log entry.
func (a *App) Close() error {
	err := a.closeResources()
	if err != nil {
		a.op.Fail(err)
	}
	a.logger.Debug("operation finished", "operation", a.op.Name, "status", a.op.Status, "duration", a.op.Elapsed())
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

func (a *App) closeResources() error {
	var errs []error
	if a.queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), queueDrainTimeout)
		defer cancel()
		if err := a.queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("draining task queue: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}
