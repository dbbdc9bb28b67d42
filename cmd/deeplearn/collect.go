package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/deeplearn-app/deeplearn/internal/collector"
	"github.com/deeplearn-app/deeplearn/internal/metrics"
	"github.com/deeplearn-app/deeplearn/internal/model"
	"github.com/deeplearn-app/deeplearn/internal/store"
)

func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run the telemetry collector endpoint",
		RunE:  runCollect,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8081", "HTTP listen address")
	f.String("db", "collector.db", "SQLite database path for received events")
	f.Float64("ingest-rps", 5, "Events per second allowed per client (0 = unlimited)")
	f.Int("ingest-burst", 20, "Burst size per client")
	f.Bool("metrics", false, "Expose Prometheus metrics at /metrics")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export collected telemetry as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "collector.db", "SQLite database path for received events")
	f.String("collector", "", "Collector name included in the export")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func runCollect(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	limiter := collector.NewRateLimiter(v.GetFloat64("ingest-rps"), v.GetInt("ingest-burst"))
	c := collector.New(db, limiter)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if v.GetBool("metrics") {
		metrics.Init()
		r.Handle("/metrics", metrics.Handler())
	}
	c.Routes(r)

	count, err := db.EventCount(ctx)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}
	addr := v.GetString("addr")
	slog.Info("starting collector",
		"addr", addr,
		"db", v.GetString("db"),
		"stored_events", count,
		"ingest_rps", v.GetFloat64("ingest-rps"),
		"ingest_burst", v.GetInt("ingest-burst"),
	)
	return listen(ctx, addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	users, err := db.ExportUsers(cmd.Context())
	if err != nil {
		return fmt.Errorf("export events: %w", err)
	}

	export := model.EventExport{
		Collector:  v.GetString("collector"),
		ExportedAt: time.Now().UTC(),
		Users:      users,
	}
	for _, u := range users {
		for _, s := range u.Sessions {
			export.NumEvents += s.NumEvents
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported events", "users", len(users), "events", export.NumEvents)
	return nil
}
