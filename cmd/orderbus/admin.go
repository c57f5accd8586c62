package main

import (
	"context"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-orderbus/core"
	"github.com/goliatone/go-orderbus/pubsub"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(cmd.Context(), opts, core.Config{})
			if err != nil {
				return err
			}
			defer rt.close()

			client, err := openDatabase(cmd.Context(), rt.cfg, true)
			if err != nil {
				return err
			}
			defer client.Close()
			rt.logger.Info("migrations applied", "driver", rt.cfg.Database.Driver)
			return nil
		},
	}
}

func newSetupPubSubCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup-pubsub",
		Short: "Create the order topic and relay subscription if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(cmd.Context(), opts, core.Config{})
			if err != nil {
				return err
			}
			defer rt.close()
			return setupPubSub(cmd.Context(), rt)
		},
	}
}

func setupPubSub(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	if err := cfg.PubSub.ValidateSubscriber(); err != nil {
		return err
	}
	client, err := openPubSub(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if _, err := pubsub.EnsureTopic(ctx, client, cfg.PubSub.TopicID); err != nil {
		return err
	}
	rt.logger.Info("topic ready", "project", cfg.PubSub.ProjectID, "topic", cfg.PubSub.TopicID)

	_, err = pubsub.EnsureSubscription(ctx, client, cfg.PubSub.TopicID, cfg.PubSub.SubscriptionID, gpubsub.SubscriptionConfig{
		AckDeadline: cfg.PubSub.AckDeadline,
	})
	if err != nil {
		return err
	}
	rt.logger.Info("subscription ready", "subscription", cfg.PubSub.SubscriptionID)
	return nil
}
