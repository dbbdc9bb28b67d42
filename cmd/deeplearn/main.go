package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deeplearn-app/deeplearn/internal/store"
)

func main() {
	// A missing .env file is normal; real environment variables still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "deeplearn",
		Short: "Deepfake-detection assessment sessions and telemetry collector",
	}

	serve := serveCmd()
	root.AddCommand(serve, collectCmd(), exportCmd(), flushCmd(), catalogCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `deeplearn --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

// addStateFlags registers the flags selecting where durable local state lives.
func addStateFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "deeplearn.db", "SQLite database path")
	f.String("state-backend", "sqlite", "Local state backend (sqlite, redis)")
	f.String("redis-addr", "localhost:6379", "Redis address when state-backend is redis")
	f.String("redis-password", "", "Redis password (or set DEEPLEARN_REDIS_PASSWORD)")
}

func addDeliveryFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("collector-url", "http://localhost:8081", "Telemetry collector base URL")
	f.Duration("delivery-timeout", 10*time.Second, "Timeout for one telemetry delivery attempt")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("DEEPLEARN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("deeplearn")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/deeplearn")
	v.AddConfigPath("/etc/deeplearn")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// localState is durable key-value state: the user id and the telemetry retry slot.
type localState interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

func openState(ctx context.Context, v *viper.Viper) (localState, error) {
	switch backend := strings.ToLower(v.GetString("state-backend")); backend {
	case "", "sqlite":
		db, err := store.New(v.GetString("db"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		slog.Info("using sqlite local state", "path", v.GetString("db"))
		return db, nil
	case "redis":
		rs, err := store.NewRedisState(ctx, v.GetString("redis-addr"), v.GetString("redis-password"), "deeplearn:")
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		slog.Info("using redis local state", "addr", v.GetString("redis-addr"))
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown state backend %q (sqlite, redis)", backend)
	}
}

// listen serves h until ctx is cancelled, then shuts down gracefully.
func listen(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
