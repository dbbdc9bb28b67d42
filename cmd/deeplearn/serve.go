package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deeplearn-app/deeplearn/internal/catalog"
	"github.com/deeplearn-app/deeplearn/internal/handler"
	appI18n "github.com/deeplearn-app/deeplearn/internal/i18n"
	"github.com/deeplearn-app/deeplearn/internal/metrics"
	"github.com/deeplearn-app/deeplearn/internal/model"
	"github.com/deeplearn-app/deeplearn/internal/outbox"
	"github.com/deeplearn-app/deeplearn/internal/policy"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assessment session API",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("catalog-pre", "", "Catalog file for pre sessions (default: built-in detection sets)")
	f.String("catalog-post", "", "Catalog file for post sessions (default: built-in detection sets)")
	f.String("catalog-ethics", "", "Catalog file for ethics sessions (default: built-in scenarios)")
	f.StringP("mode", "m", policy.ClueRequired.Name, "Submission mode for detection sessions (built-in name or rule like clue|reason)")
	f.String("ethics-mode", policy.ReasonRequired.Name, "Submission mode for ethics sessions")
	f.Int("min-reason-length", policy.DefaultMinReasonLength, "Minimum reasoning length in characters")
	f.String("nothing-label", policy.DefaultNothingLabel, "Clue label meaning nothing was detected")
	f.StringP("lang", "l", "en", "Default UI language (en, es)")
	f.Bool("metrics", false, "Expose Prometheus metrics at /metrics")
	addStateFlags(cmd)
	addDeliveryFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func engineConfig(v *viper.Viper) model.EngineConfig {
	return model.EngineConfig{
		Mode:            v.GetString("mode"),
		EthicsMode:      v.GetString("ethics-mode"),
		MinReasonLength: v.GetInt("min-reason-length"),
		NothingLabel:    v.GetString("nothing-label"),
		Lang:            v.GetString("lang"),
	}
}

func buildPolicies(cfg model.EngineConfig) (map[model.SessionTag]*policy.Policy, error) {
	mode, err := policy.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	ethics, err := policy.ParseMode(cfg.EthicsMode)
	if err != nil {
		return nil, err
	}
	detection := policy.New(mode, cfg.MinReasonLength, cfg.NothingLabel)
	return map[model.SessionTag]*policy.Policy{
		model.TagPre:    detection,
		model.TagPost:   detection,
		model.TagEthics: policy.New(ethics, cfg.MinReasonLength, cfg.NothingLabel),
	}, nil
}

func loadCatalogs(v *viper.Viper) (map[model.SessionTag]model.Catalog, error) {
	out := make(map[model.SessionTag]model.Catalog)
	for _, tag := range []model.SessionTag{model.TagPre, model.TagPost, model.TagEthics} {
		c, err := catalog.Resolve(string(tag), v.GetString("catalog-"+string(tag)))
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", tag, err)
		}
		out[tag] = c
	}
	return out, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cfg := engineConfig(v)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := openState(ctx, v)
	if err != nil {
		return err
	}
	defer state.Close()

	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	catalogs, err := loadCatalogs(v)
	if err != nil {
		return err
	}
	policies, err := buildPolicies(cfg)
	if err != nil {
		return err
	}

	timeout := v.GetDuration("delivery-timeout")
	sender := outbox.NewHTTPSender(v.GetString("collector-url"), timeout)
	ob := outbox.New(sender, state, outbox.WithTimeout(timeout))
	defer ob.Wait()

	// One redelivery attempt for whatever a previous run left behind.
	if delivered, err := ob.Flush(ctx); err != nil {
		slog.Warn("pending telemetry not delivered at startup", "error", err)
	} else if delivered {
		slog.Info("delivered pending telemetry from previous run")
	}

	h, err := handler.New(state, ob, handler.Config{Catalogs: catalogs, Policies: policies})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if v.GetBool("metrics") {
		metrics.Init()
		r.Handle("/metrics", metrics.Handler())
	}
	r.Group(func(api chi.Router) {
		api.Use(appI18n.Middleware(cfg.Lang))
		h.Routes(api)
	})

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"collector_url", sender.URL(),
		"mode", policies[model.TagPre].Mode.Name,
		"ethics_mode", policies[model.TagEthics].Mode.Name,
		"min_reason_length", cfg.MinReasonLength,
		"lang", cfg.Lang,
		"pre_groups", catalogs[model.TagPre].Len(),
		"post_groups", catalogs[model.TagPost].Len(),
		"ethics_groups", catalogs[model.TagEthics].Len(),
	)
	return listen(ctx, addr, r)
}
