package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

// PublishAPI is the part of the SNS client the dispatcher needs.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type dispatcher struct {
	client   PublishAPI
	topicARN string
}

func NewDispatcher(client PublishAPI, topicARN string) interfaces.NotificationDispatcher {
	return &dispatcher{client: client, topicARN: topicARN}
}

// PublishStatusChanged sends the event as JSON. The target status and actor
// role go into message attributes so subscriptions can filter on them.
func (d *dispatcher) PublishStatusChanged(ctx context.Context, evt interfaces.StatusChangedEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = d.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(d.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String(fmt.Sprintf("Case %s: %s", evt.CaseNumber, evt.ToStatus)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"to_status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(evt.ToStatus)),
			},
			"actor_role": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(evt.ActorRole)),
			},
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(evt.Kind)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish to sns: %w", err)
	}
	return nil
}
