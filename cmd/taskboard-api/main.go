package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/app"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/config"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/database"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/invitations"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/mail"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/maintenance"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/push"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskboard-api",
		Short: "Taskboard kanban backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres or MySQL DSN")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Access token lifetime")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Driver: appConfig.DatabaseDriver,
		Path:   appConfig.DatabasePath,
		DSN:    appConfig.DatabaseDSN,
	}, logging.Component(logger, "database"))
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		TokenTTL:      appConfig.AuthTokenTTL,
	})
	if err != nil {
		return err
	}

	var invitationMailer invitations.InvitationMailer
	if appConfig.SMTP.Enabled {
		smtpMailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
			Enabled:  true,
			Host:     appConfig.SMTP.Host,
			Port:     appConfig.SMTP.Port,
			Username: appConfig.SMTP.Username,
			Password: appConfig.SMTP.Password,
			From:     appConfig.SMTP.From,
			UseTLS:   appConfig.SMTP.UseTLS,
			Timeout:  appConfig.SMTP.Timeout,
		})
		if err != nil {
			return err
		}
		invitationMailer = mail.NewInvitationSender(smtpMailer, appConfig.InvitationAcceptURL)
	} else {
		logger.Info("invitation email disabled: smtp not configured")
	}

	pushSender, err := push.NewFCMSender(ctx, appConfig.PushCredentialsFile, logging.Component(logger, "push"))
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()
	var collectors *metrics.Collectors
	if appConfig.MetricsEnabled {
		collectors = metrics.New()
		dispatcher.SetObserver(collectors)
	}

	services, err := app.NewServices(app.Config{
		Database:         db,
		Logger:           logger,
		InvitationTTL:    appConfig.InvitationTTL,
		InvitationMailer: invitationMailer,
		Push:             pushSender,
		Listener:         server.NotificationListener(dispatcher),
	})
	if err != nil {
		return err
	}

	schedulerOptions := []maintenance.Option{
		maintenance.WithLogger(logging.Component(logger, "maintenance")),
		maintenance.WithDeadlineSchedule(appConfig.DeadlineSpec),
		maintenance.WithInvitationSchedule(appConfig.InvitationSpec),
	}
	if collectors != nil {
		schedulerOptions = append(schedulerOptions, maintenance.WithObserver(collectors))
	}
	scheduler := maintenance.NewScheduler(maintenance.Dependencies{
		Deadlines:   services.Tasks,
		Reminders:   services.Notifications,
		Notifier:    services.Notifications,
		Invitations: services.Invitations,
	}, schedulerOptions...)
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer func() {
		<-scheduler.Stop().Done()
	}()

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:   tokenManager,
		Users:          services.Users,
		Boards:         services.Boards,
		Columns:        services.Columns,
		Tasks:          services.Tasks,
		Invitations:    services.Invitations,
		Notifications:  services.Notifications,
		Activity:       services.Activity,
		Realtime:       dispatcher,
		Metrics:        collectors,
		AllowedOrigins: appConfig.AllowedOrigins,
		CookieName:     appConfig.AuthCookieName,
		Logger:         logging.Component(logger, "http"),
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
