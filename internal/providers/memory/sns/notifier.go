package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"nlweb-orchestrator/internal/common/aws"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

// Notifier publishes remembered facts to an SNS topic.
type Notifier struct {
	client   *aws.SNSClient
	topicARN string
	logger   logger.Logger
}

func New(client *aws.SNSClient, topicARN string, log logger.Logger) (*Notifier, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("sns memory notifier requires a topic ARN")
	}
	return &Notifier{client: client, topicARN: topicARN, logger: logger.ForComponent(log, "memory-sns")}, nil
}

func (n *Notifier) Persist(ctx context.Context, fact models.MemoryFact) error {
	body, err := json.Marshal(fact)
	if err != nil {
		return err
	}
	attrs := map[string]string{"event_type": "memory.fact"}
	if fact.Site != "" {
		// SNS rejects empty attribute values
		attrs["site"] = fact.Site
	}
	id, err := n.client.PublishJSON(ctx, n.topicARN, string(body), attrs)
	if err != nil {
		return fmt.Errorf("publish memory fact: %w", err)
	}
	n.logger.Debug("memory fact sent", map[string]interface{}{"message_id": id, "query_id": fact.QueryID})
	return nil
}
