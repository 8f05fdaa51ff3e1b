package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/rcliao/hydrosync/internal/model"
)

// Publisher is the part of the SNS client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes reminders to an SNS topic or platform endpoint.
type SNSNotifier struct {
	client    Publisher
	targetARN string
}

// NewSNSNotifier loads AWS credentials from the default chain.
func NewSNSNotifier(ctx context.Context, region, targetARN string) (*SNSNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSNSNotifierWithClient(sns.NewFromConfig(cfg), targetARN), nil
}

// NewSNSNotifierWithClient wraps an existing client.
func NewSNSNotifierWithClient(client Publisher, targetARN string) *SNSNotifier {
	return &SNSNotifier{client: client, targetARN: targetARN}
}

// Notify publishes a JSON message with a plain default body and an FCM
// notification payload.
func (n *SNSNotifier) Notify(ctx context.Context, r Reminder) error {
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": r.Title(),
			"body":  r.Body(),
		},
		"data": map[string]string{
			"intake": model.FormatAmount(r.Unit.ToDisplay(r.IntakeML)),
			"goal":   model.FormatAmount(r.Unit.ToDisplay(r.GoalML)),
		},
	})
	if err != nil {
		return err
	}
	msg, err := json.Marshal(map[string]string{
		"default": r.Body(),
		"GCM":     string(gcm),
	})
	if err != nil {
		return err
	}

	_, err = n.client.Publish(ctx, &sns.PublishInput{
		MessageStructure: aws.String("json"),
		Message:          aws.String(string(msg)),
		Subject:          aws.String(r.Title()),
		TargetArn:        aws.String(n.targetARN),
	})
	if err != nil {
		return fmt.Errorf("publish reminder: %w", err)
	}
	return nil
}
