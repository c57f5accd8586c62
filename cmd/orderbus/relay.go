package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-orderbus/core"
	"github.com/goliatone/go-orderbus/egress"
	"github.com/goliatone/go-orderbus/pubsub"
	"github.com/goliatone/go-orderbus/relay"
	"github.com/goliatone/go-orderbus/telemetry"
)

func newRelayCmd(opts *rootOptions) *cobra.Command {
	var maxMessages int
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Forward order.created events from the subscription to the egress endpoint",
		Long: `Pull order.created events and POST them to egress.url.

A failed delivery is nacked and redelivered by the broker. Malformed
messages are acknowledged and dropped.

Examples:
  orderbus relay
  orderbus relay --max-messages 10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if maxMessages < 0 {
				return fmt.Errorf("--max-messages must be >= 0")
			}
			overrides := core.Config{}
			overrides.Relay.MaxMessages = maxMessages
			rt, err := bootstrap(cmd.Context(), opts, overrides)
			if err != nil {
				return err
			}
			defer rt.close()
			return runRelay(cmd.Context(), rt)
		},
	}
	cmd.Flags().IntVar(&maxMessages, "max-messages", 0, "stop after handling N messages (0 = run until signalled)")
	return cmd
}

func runRelay(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	logger := rt.logger.GetLogger("relay")
	if strings.TrimSpace(cfg.Egress.URL) == "" {
		return fmt.Errorf("orderbus: egress.url is required for the relay")
	}
	if err := cfg.PubSub.ValidateSubscriber(); err != nil {
		return err
	}

	client, err := openPubSub(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	subscriber, err := pubsub.NewSubscriber(client, cfg.PubSub)
	if err != nil {
		return err
	}
	metrics := telemetry.NewMetricsRecorder(nil, cfg.ServiceName)
	sender := egress.NewSender(cfg.Egress,
		egress.WithLogger(rt.logger.GetLogger("egress")),
		egress.WithMetrics(metrics),
	)

	r, err := relay.New(subscriber, sender, cfg.Relay,
		relay.WithLogger(logger),
		relay.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	logger.Info("relay started",
		"subscription", cfg.PubSub.SubscriptionID,
		"egress_url", cfg.Egress.URL,
		"max_messages", cfg.Relay.MaxMessages,
	)
	stats, err := r.Run(ctx)
	logger.Info("relay stopped",
		"received", stats.Received,
		"acked", stats.Acked,
		"nacked", stats.Nacked,
		"dropped", stats.Dropped,
	)
	return err
}
