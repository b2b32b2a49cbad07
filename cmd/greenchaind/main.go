// Command greenchaind runs the Green-Chain clearance backend: HTTP API,
// background match worker, and leader-elected maintenance sweeps.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	greenchain "github.com/greenchain/greenchain"
	"github.com/greenchain/greenchain/config"
	"github.com/greenchain/greenchain/storage"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "greenchaind",
	Short: "Green-Chain clearance backend",
	Long: `greenchaind clears near-expiry warehouse inventory: it ingests CSV
stock uploads, scores lots by expiry urgency, matches them to registered
buyers with discounted offers, and serves a voice assistant for order
negotiation.

Configuration comes from a YAML file plus environment overrides
(DATABASE_URL, ANTHROPIC_API_KEY).`,
	SilenceUsage: true,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend HTTP server and background workers",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed [inventory.csv]",
	Short: "Seed demo buyers and optionally import an inventory CSV",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSeed,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the backend version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("greenchaind %s\n", greenchain.Version)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration, builds the logger, and opens the pool.
func setup(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	zapCfg := zap.NewProductionConfig()
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err = zapCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, pool, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, pool, err := setup(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	sugar := logger.Sugar()
	sugar.Infow("starting backend", "version", greenchain.Version, "config", cfg.String())

	if err := storage.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	clientCfg := &greenchain.ClientConfig{
		MatchPollInterval: cfg.Matching.PollInterval,
		MatchHorizonDays:  cfg.Matching.HorizonDays,
		OfferTTL:          cfg.Matching.OfferTTL,
		ShortlistSize:     cfg.Matching.ShortlistSize,
		VoiceModel:        cfg.Voice.Model,
		APILogger:         &zapAPILogger{sugar},
		OnError: func(err error) {
			sugar.Errorw("background operation failed", "error", err)
		},
		OnBecameLeader: func() {
			sugar.Info("became leader")
		},
		OnLostLeadership: func() {
			sugar.Info("lost leadership")
		},
	}

	if cfg.Voice.APIKey != "" {
		ac := anthropic.NewClient(option.WithAPIKey(cfg.Voice.APIKey))
		clientCfg.AnthropicClient = &ac
	} else {
		sugar.Warn("ANTHROPIC_API_KEY not set, voice assistant runs in evaluator-only mode")
	}

	client, err := greenchain.NewClient(pool, clientCfg)
	if err != nil {
		return err
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start backend: %w", err)
	}
	sugar.Infow("backend started", "instance_id", client.InstanceID())

	server := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           client.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTP.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		sugar.Info("shutdown signal received")
	case err := <-errCh:
		sugar.Errorw("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("http shutdown failed", "error", err)
	}
	if err := client.Stop(shutdownCtx); err != nil {
		sugar.Warnw("backend stop failed", "error", err)
	}

	sugar.Info("backend stopped")
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, pool, err := setup(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Sugar().Info("database schema applied")
	return nil
}

// zapAPILogger adapts a zap sugared logger to the API logging interface.
type zapAPILogger struct {
	s *zap.SugaredLogger
}

func (l *zapAPILogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *zapAPILogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *zapAPILogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *zapAPILogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
