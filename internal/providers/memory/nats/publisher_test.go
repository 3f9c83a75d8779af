package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

type fakeStream struct {
	subject string
	data    []byte
	err     error
}

func (f *fakeStream) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subject = subject
	f.data = data
	return &jetstream.PubAck{Stream: "NLWEB_MEMORY", Sequence: 7}, nil
}

func TestPublisher_Persist(t *testing.T) {
	fs := &fakeStream{}
	p := newWithStream(fs, "nlweb.memory", logger.NewTestLogger(t))

	err := p.Persist(context.Background(), models.MemoryFact{QueryID: "q-9", Site: "imdb", Fact: "prefers comedies"})
	require.NoError(t, err)

	assert.Equal(t, "nlweb.memory", fs.subject)
	var got models.MemoryFact
	require.NoError(t, json.Unmarshal(fs.data, &got))
	assert.Equal(t, "prefers comedies", got.Fact)
	assert.Equal(t, "q-9", got.QueryID)
}

func TestPublisher_PersistError(t *testing.T) {
	p := newWithStream(&fakeStream{err: errors.New("no responders")}, "nlweb.memory", logger.NewNoOpLogger())

	err := p.Persist(context.Background(), models.MemoryFact{Fact: "x"})
	assert.ErrorContains(t, err, "no responders")
	p.Close()
}
