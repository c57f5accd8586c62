package main

import (
	"context"
	"errors"
	"net/http"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-orderbus/core"
	"github.com/goliatone/go-orderbus/inbound"
	"github.com/goliatone/go-orderbus/pubsub"
	"github.com/goliatone/go-orderbus/query"
	sqlstore "github.com/goliatone/go-orderbus/store/sql"
	"github.com/goliatone/go-orderbus/telemetry"
	"github.com/goliatone/go-orderbus/webhooks"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides := core.Config{}
			overrides.Server.Addr = addr
			rt, err := bootstrap(cmd.Context(), opts, overrides)
			if err != nil {
				return err
			}
			defer rt.close()
			return runServe(cmd.Context(), rt)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address override")
	return cmd
}

func runServe(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	logger := rt.logger.GetLogger("serve")
	metrics := telemetry.NewMetricsRecorder(nil, cfg.ServiceName)

	client, err := openDatabase(ctx, cfg, cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer client.Close()

	var factoryOpts []sqlstore.FactoryOption
	if cfg.Database.CacheTTL > 0 {
		cacheCfg := repositorycache.DefaultConfig()
		cacheCfg.TTL = cfg.Database.CacheTTL
		cacheService, err := repositorycache.NewCacheService(cacheCfg)
		if err != nil {
			return err
		}
		factoryOpts = append(factoryOpts, sqlstore.WithOrderCache(cacheService))
	}
	if cfg.Telemetry.Enabled {
		factoryOpts = append(factoryOpts, sqlstore.WithQueryTracing(cfg.ServiceName))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		return err
	}

	var publisher core.EventPublisher
	if cfg.PubSub.ProjectID != "" {
		psClient, err := openPubSub(ctx, cfg)
		if err != nil {
			return err
		}
		defer psClient.Close()
		pub, err := pubsub.NewPublisher(psClient, cfg.PubSub,
			pubsub.WithPublisherLogger(rt.logger.GetLogger("pubsub")),
			pubsub.WithPublisherMetrics(metrics),
		)
		if err != nil {
			return err
		}
		defer pub.Close()
		publisher = pub
	} else {
		logger.Warn("pubsub.project_id not set, order events will not be published")
	}

	ingestor, err := inbound.NewIngestor(
		webhooks.NewHMACVerifier(cfg.Webhook.Secret, rt.logger.GetLogger("webhooks")),
		factory.OrderStore(),
		publisher,
		inbound.WithLogger(rt.logger.GetLogger("inbound")),
		inbound.WithMetrics(metrics),
		inbound.WithPublishTimeout(cfg.PubSub.PublishTimeout),
	)
	if err != nil {
		return err
	}
	router, err := inbound.NewRouter(inbound.RouterConfig{
		Ingestor:     ingestor,
		Orders:       query.NewGetOrderQuery(factory.OrderReader()),
		Health:       func(ctx context.Context) error { return factory.DB().PingContext(ctx) },
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       rt.logger.GetLogger("http"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr, "environment", cfg.Environment)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
