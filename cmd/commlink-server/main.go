package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/commlink/pkg/commlink/auth"
	"github.com/mikepea/commlink/pkg/commlink/config"
	"github.com/mikepea/commlink/pkg/commlink/database"
	"github.com/mikepea/commlink/pkg/commlink/logging"
	"github.com/mikepea/commlink/pkg/commlink/models"
	"github.com/mikepea/commlink/pkg/commlink/server"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

type flags struct {
	port     string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:           "commlink-server",
		Short:         "Communication link management API and real-time updates",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	cmd.PersistentFlags().StringVar(&f.port, "port", "", "listen port (overrides PORT)")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and WebSocket server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(f)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, logger, db, err := setup(f)
				if err != nil {
					return err
				}
				defer database.Close(db)
				logger.Info("Database migrations complete")
				return nil
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Create the demo user, preferences and sessions",
			RunE: func(cmd *cobra.Command, args []string) error {
				_, logger, db, err := setup(f)
				if err != nil {
					return err
				}
				defer database.Close(db)
				userID, err := database.SeedDemoData(db)
				if err != nil {
					return err
				}
				logger.Info("Demo data ready", "user_id", userID)
				return nil
			},
		},
		newTokenCmd(f),
	)
	return cmd
}

// newTokenCmd prints a bearer token that selects a user on every API call.
func newTokenCmd(f *flags) *cobra.Command {
	var (
		userID uint
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user (requires JWT_SECRET)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET must be set to issue tokens")
			}
			if userID == 0 {
				userID = cfg.DefaultUserID
			}
			token, err := auth.GenerateToken([]byte(cfg.JWTSecret), userID, role)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "user the token identifies (default DEFAULT_USER_ID)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleUser), "role claim carried by the token")
	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.port != "" {
		cfg.Port = f.port
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads config, builds the logger and opens a migrated database.
func setup(f *flags) (*config.Config, *slog.Logger, *gorm.DB, error) {
	cfg, err := loadConfig(f)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	db, err := database.Connect(database.Options{
		Driver:          cfg.DBDriver,
		DSN:             cfg.DBDSN,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return nil, nil, nil, err
	}

	if err := models.AutoMigrate(db); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		database.Close(db)
		return nil, nil, nil, err
	}
	return cfg, logger, db, nil
}

func runServe(f *flags) error {
	cfg, logger, db, err := setup(f)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	if cfg.SeedDemoData {
		if _, err := database.SeedDemoData(db); err != nil {
			logger.Error("Failed to seed demo data", "error", err)
			return err
		}
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, err := server.New(cfg, db, logger)
	if err != nil {
		logger.Error("Failed to build server", "error", err)
		return err
	}
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := srv.Run(ctx); err != nil {
		logger.Error("Server error", "error", err)
		return err
	}
	return nil
}
