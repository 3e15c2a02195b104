package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nearexpiry/cmd/app"
	"nearexpiry/internal/config"
	"nearexpiry/internal/database"
	"nearexpiry/internal/logger"
	"nearexpiry/internal/service"
)

var rootCommand = &cobra.Command{
	Use:   "nearexpiry",
	Short: "Run the near-expiry food webhook and API server",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.LoadConfig()
		log := logger.New(cfg.Env, cfg.LogLevel)

		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("invalid configuration")
		}

		application, err := app.New(cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to start")
		}
		defer application.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var wg sync.WaitGroup
		if application.RemindersEnabled {
			wg.Add(1)
			go func() {
				defer wg.Done()
				application.Services.Reminder.Run(ctx)
			}()
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
			Handler:           application.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
		}

		go func() {
			log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("server stopped")
				stop()
			}
		}()

		<-ctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
		wg.Wait()
	},
}

func init() {
	migrateCommand := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.LoadConfig()
			log := logger.New(cfg.Env, cfg.LogLevel)

			db, err := database.ConnectDB(cfg, log)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to database")
			}
			defer db.CloseDB()

			version, err := db.RunMigrations()
			if err != nil {
				log.Fatal().Err(err).Msg("migration failed")
			}
			fmt.Printf("Schema is at version %d\n", version)
		},
	}
	rootCommand.AddCommand(migrateCommand)

	var ttl time.Duration
	adminTokenCommand := &cobra.Command{
		Use:   "admintoken [subject]",
		Short: "Print a bearer token for the moderation API",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 {
				fmt.Printf("You must provide a subject.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			cfg := config.LoadConfig()
			token, err := service.NewAuthService(cfg.JWTSecretKey).IssueToken(args[0], service.RoleAdmin, ttl)
			if err != nil {
				fmt.Printf("Failed to issue token: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(token)
		},
	}
	adminTokenCommand.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	rootCommand.AddCommand(adminTokenCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
