package pubsub

import (
	"context"
	"fmt"
	"strings"

	gpubsub "cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/goliatone/go-orderbus/core"
)

// NewClient builds a Pub/Sub client for cfg. When an emulator host is set the
// client dials it without TLS or credentials.
func NewClient(ctx context.Context, cfg core.PubSubConfig, opts ...option.ClientOption) (*gpubsub.Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("pubsub: project id is required")
	}
	clientOpts := append(ClientOptions(cfg), opts...)
	client, err := gpubsub.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: new client: %w", err)
	}
	return client, nil
}

func ClientOptions(cfg core.PubSubConfig) []option.ClientOption {
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		return []option.ClientOption{
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	}
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

// EnsureTopic creates topicID if it does not exist yet.
func EnsureTopic(ctx context.Context, client *gpubsub.Client, topicID string) (*gpubsub.Topic, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub: client is required")
	}
	topicID = strings.TrimSpace(topicID)
	if topicID == "" {
		return nil, fmt.Errorf("pubsub: topic id is required")
	}
	topic, err := client.CreateTopic(ctx, topicID)
	if err == nil {
		return topic, nil
	}
	if isAlreadyExists(err) {
		return client.Topic(topicID), nil
	}
	return nil, fmt.Errorf("pubsub: create topic %s: %w", topicID, err)
}

// EnsureSubscription creates subscriptionID on topicID, creating the topic
// first when needed.
func EnsureSubscription(
	ctx context.Context,
	client *gpubsub.Client,
	topicID string,
	subscriptionID string,
	cfg gpubsub.SubscriptionConfig,
) (*gpubsub.Subscription, error) {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return nil, fmt.Errorf("pubsub: subscription id is required")
	}
	topic, err := EnsureTopic(ctx, client, topicID)
	if err != nil {
		return nil, err
	}
	cfg.Topic = topic
	sub, err := client.CreateSubscription(ctx, subscriptionID, cfg)
	if err == nil {
		return sub, nil
	}
	if isAlreadyExists(err) {
		return client.Subscription(subscriptionID), nil
	}
	return nil, fmt.Errorf("pubsub: create subscription %s: %w", subscriptionID, err)
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}
