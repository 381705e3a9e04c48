package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/freightlane/auth-core/internal/config"
	"github.com/freightlane/auth-core/internal/domain"
)

// API is the subset of *sns.Client the publisher uses.
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// EventPublisher fans security events out to an SNS topic.
type EventPublisher struct {
	client   API
	topicARN string
}

// NewEventPublisher builds a publisher from the shared AWS config.
func NewEventPublisher(awsCfg aws.Config, cfg *config.Config) *EventPublisher {
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		o.Region = cfg.SNSRegion
		if cfg.AWSEndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		}
	})
	return NewEventPublisherWithClient(client, cfg.SNSSecurityTopicARN)
}

func NewEventPublisherWithClient(client API, topicARN string) *EventPublisher {
	return &EventPublisher{client: client, topicARN: topicARN}
}

func (p *EventPublisher) Publish(ctx context.Context, ev domain.SecurityEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish %s: %w", ev.Type, err)
	}
	return nil
}
