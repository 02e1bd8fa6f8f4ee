package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"medvision-server/internal/config"
	"medvision-server/internal/logger"
	"medvision-server/internal/models"
	"medvision-server/internal/repository"
	"medvision-server/internal/services"
	"medvision-server/internal/utils"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "medvision",
		Short:         "MedVision telemedicine API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads an optional .env file before the environment.
func loadConfig() (*config.Config, *logger.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	if envErr != nil {
		log.Debug("no .env file loaded, using process environment")
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, log)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := models.OpenDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			if err := models.Migrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Info("database schema is up to date")
			return nil
		},
	}
}

func seedAdminCmd() *cobra.Command {
	var in services.SignUpAdminInput

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the first administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := models.OpenDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			store := repository.NewStore(db)
			notifier, err := newNotifier(cfg, log)
			if err != nil {
				return err
			}

			auth := services.NewAuthService(store.Repositories(), store, utils.NewTokenIssuer(cfg.JWT), notifier, log, nil, services.AuthOptions{
				OTPExpiry:       cfg.Auth.OTPExpiry,
				ResetCodeExpiry: cfg.Auth.ResetCodeExpiry,
			})
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			admin, err := auth.BootstrapAdmin(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", admin.Email, admin.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "administrator name")
	cmd.Flags().StringVar(&in.Email, "email", "", "administrator email")
	cmd.Flags().StringVar(&in.Password, "password", "", "administrator password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
