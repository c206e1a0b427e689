package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	emailPkg "runclub/internal/adapters/email"
	web "runclub/internal/adapters/http"
	"runclub/internal/adapters/storage"
	accountStore "runclub/internal/adapters/storage/account"
	attendanceStore "runclub/internal/adapters/storage/attendance"
	bookingStore "runclub/internal/adapters/storage/booking"
	invitationStore "runclub/internal/adapters/storage/invitation"
	memberStore "runclub/internal/adapters/storage/member"
	outboxStore "runclub/internal/adapters/storage/outbox"
	registrationStore "runclub/internal/adapters/storage/registration"
	runStore "runclub/internal/adapters/storage/run"
	"runclub/internal/application/orchestrators"
	"runclub/internal/config"
	"runclub/internal/domain/outbox"
	"runclub/internal/logging"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// App holds what every subcommand shares.
type App struct {
	cfg      *config.Config
	db       *sqlx.DB
	closeLog func()
}

var (
	configPath string
	app        *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "runclub",
		Short:   "Run club bookings, LIRF rota and attendance",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.close()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file (default runclub.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedAdminCmd())
	rootCmd.AddCommand(outboxCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// initApp loads config, installs the logger and opens the database.
func initApp(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	_, closeLog, err := logging.Init(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		closeLog()
		return err
	}
	if cfg.Database.Driver == storage.DriverSQLite {
		// WAL mode lets readers proceed while one writer holds the lock
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
	}
	slog.Debug("database_opened", "driver", cfg.Database.Driver)

	app = &App{cfg: cfg, db: db, closeLog: closeLog}
	return nil
}

func (a *App) close() {
	if a == nil {
		return
	}
	if a.db != nil {
		a.db.Close()
	}
	a.closeLog()
}

// newStores builds every SQL store over db.
func newStores(db storage.SQLDB) *web.Stores {
	return &web.Stores{
		AccountStore:      accountStore.NewSQLStore(db),
		MemberStore:       memberStore.NewSQLStore(db),
		RunStore:          runStore.NewSQLStore(db),
		BookingStore:      bookingStore.NewSQLStore(db),
		AttendanceStore:   attendanceStore.NewSQLStore(db),
		InvitationStore:   invitationStore.NewSQLStore(db),
		RegistrationStore: registrationStore.NewSQLStore(db),
		OutboxStore:       outboxStore.NewSQLStore(db),
	}
}

// newOutboxProcessor wires the email executor to Resend, or to the noop
// sender when no API key is configured.
func newOutboxProcessor(cfg *config.Config, store orchestrators.OutboxStore) *orchestrators.OutboxProcessor {
	var sender emailPkg.Sender
	if cfg.Email.ResendAPIKey != "" {
		sender = emailPkg.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From)
		slog.Info("email_sender_configured", "provider", "resend")
	} else {
		sender = emailPkg.NewNoopSender()
		slog.Warn("email_sender_configured", "provider", "noop", "hint", "set RUNCLUB_RESEND_KEY for real delivery")
	}
	executors := map[string]orchestrators.ActionExecutor{
		outbox.ActionTypeEmail: &orchestrators.EmailExecutor{
			Sender:   sender,
			Renderer: emailPkg.NewRenderer(cfg.Email.ClubName),
			From:     cfg.Email.From,
			ReplyTo:  cfg.Email.ReplyTo,
		},
	}
	return orchestrators.NewOutboxProcessor(store, executors, orchestrators.OutboxOptions{
		BaseDelay: cfg.Outbox.BaseDelay,
		MaxDelay:  cfg.Outbox.MaxDelay,
		BatchSize: cfg.Outbox.BatchSize,
	})
}
