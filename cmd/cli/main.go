package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/archive"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/config"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/logging"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/notify"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/omeka"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/progress"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/storage"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/storage/postgres"
	"github.com/kurihiro0119/omeka-channel-migrator/internal/storage/sqlite"
)

var (
	envFile    string
	logLevel   string
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "omeka-migrate",
	Short: "WordPress to Omeka S channel migration tool",
	Long: `A CLI tool for migrating WordPress channels into Omeka S.

For every channel it creates a site and an editor account, exports the
channel from WordPress and queues the bulk imports. The progress of every
channel is kept in a JSON report so interrupted runs can be resumed, and
the queued imports are executed in a second phase.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(runTasksCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(updateEditorsCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what a command needs once configuration is loaded
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []io.Closer
}

// newApp loads the configuration, runs the given validation and builds the logger
func newApp(validate func(*config.Config) error) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if validate == nil {
		validate = (*config.Config).Validate
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:        cfg.LogLevel,
		Format:       cfg.LogFormat,
		LogstashAddr: cfg.LogstashTCPAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	return &app{cfg: cfg, logger: logger, closers: []io.Closer{closer}}, nil
}

// Close releases everything the app opened, most recent first
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

func (a *app) omekaClient() *omeka.Client {
	return omeka.NewClient(omeka.Options{
		BaseURL: a.cfg.OmekaURL,
		Credentials: omeka.Credentials{
			KeyIdentity:   a.cfg.KeyIdentity,
			KeyCredential: a.cfg.KeyCredential,
		},
		PreloadDir:   a.cfg.PreloadDir,
		SiteTheme:    a.cfg.SiteTheme,
		SiteOwnerID:  a.cfg.SiteOwnerID,
		RequestDelay: a.cfg.RequestDelay,
		Timeout:      a.cfg.HTTPTimeout,
		Logger:       a.logger,
	})
}

// adminCredentials returns the elevated key, or the regular one when no
// separate admin key is configured
func (a *app) adminCredentials() omeka.Credentials {
	if a.cfg.AdminKeyIdentity != "" {
		return omeka.Credentials{KeyIdentity: a.cfg.AdminKeyIdentity, KeyCredential: a.cfg.AdminKeyCredential}
	}
	return omeka.Credentials{KeyIdentity: a.cfg.KeyIdentity, KeyCredential: a.cfg.KeyCredential}
}

// observers builds the progress fanout from the configured journal and
// event publisher. Either may be disabled.
func (a *app) observers() (*progress.Fanout, error) {
	fanout := progress.NewFanout(a.logger)

	if a.cfg.StorageType != "none" {
		store, err := getStorage(a.cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.closers = append(a.closers, store)
		fanout.Add(storage.NewJournal(store))
	}

	if a.cfg.RedisURL != "" {
		publisher, err := notify.NewPublisher(a.cfg.RedisURL, a.cfg.RedisChannel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, publisher)
		fanout.Add(publisher)
	}

	return fanout, nil
}

// archiver returns the export archive, or nil when MinIO is not configured
func (a *app) archiver() (*archive.Uploader, error) {
	if a.cfg.MinIOEndpoint == "" {
		return nil, nil
	}
	uploader, err := archive.NewUploader(archive.Options{
		Endpoint:  a.cfg.MinIOEndpoint,
		AccessKey: a.cfg.MinIOAccessKey,
		SecretKey: a.cfg.MinIOSecretKey,
		UseSSL:    a.cfg.MinIOUseSSL,
		Bucket:    a.cfg.MinIOBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize export archive: %w", err)
	}
	return uploader, nil
}

func getStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		return postgres.NewPostgresStorage(cfg.PostgresURL)
	default:
		return sqlite.NewSQLiteStorage(cfg.SQLitePath)
	}
}
