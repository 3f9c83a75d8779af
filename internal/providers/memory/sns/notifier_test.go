package sns

import (
	"context"
	"errors"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlweb-orchestrator/internal/common/aws"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

type fakePublisher struct {
	input *sns.PublishInput
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: awssdk.String("msg-1")}, nil
}

func TestNew_RequiresTopic(t *testing.T) {
	_, err := New(aws.NewSNSClientWith(&fakePublisher{}), "", logger.NewNoOpLogger())
	assert.Error(t, err)
}

func TestNotifier_Persist(t *testing.T) {
	fp := &fakePublisher{}
	n, err := New(aws.NewSNSClientWith(fp), "arn:aws:sns:us-east-1:1:memory", logger.NewTestLogger(t))
	require.NoError(t, err)

	require.NoError(t, n.Persist(context.Background(), models.MemoryFact{QueryID: "q", Site: "imdb", Fact: "likes noir"}))

	require.NotNil(t, fp.input)
	assert.Equal(t, "arn:aws:sns:us-east-1:1:memory", awssdk.ToString(fp.input.TopicArn))
	assert.Contains(t, awssdk.ToString(fp.input.Message), `"fact":"likes noir"`)
	assert.Equal(t, "imdb", awssdk.ToString(fp.input.MessageAttributes["site"].StringValue))
	assert.Equal(t, "memory.fact", awssdk.ToString(fp.input.MessageAttributes["event_type"].StringValue))
}

func TestNotifier_PersistOmitsEmptySite(t *testing.T) {
	fp := &fakePublisher{}
	n, err := New(aws.NewSNSClientWith(fp), "arn:topic", logger.NewNoOpLogger())
	require.NoError(t, err)

	require.NoError(t, n.Persist(context.Background(), models.MemoryFact{Fact: "x"}))
	_, ok := fp.input.MessageAttributes["site"]
	assert.False(t, ok)
}

func TestNotifier_PersistError(t *testing.T) {
	n, err := New(aws.NewSNSClientWith(&fakePublisher{err: errors.New("throttled")}), "arn:topic", logger.NewNoOpLogger())
	require.NoError(t, err)
	assert.ErrorContains(t, n.Persist(context.Background(), models.MemoryFact{Fact: "x"}), "throttled")
}
