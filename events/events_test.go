package events

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "target.finished"},
		{prefix: "screenshots", want: "screenshots.target.finished"},
		{prefix: "ci.screenshots.", want: "ci.screenshots.target.finished"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject(tt.prefix, TypeTargetFinished))
	}
}

func TestMemory(t *testing.T) {
	m := &Memory{}
	ctx := context.Background()

	require.NoError(t, m.Publish(ctx, Event{Type: TypeRunStarted, RunID: "r1"}))
	require.NoError(t, m.Publish(ctx, Event{Type: TypeRunFinished, RunID: "r1"}))

	assert.Equal(t, []string{TypeRunStarted, TypeRunFinished}, m.Types())
	events := m.Events()
	events[0].RunID = "changed"
	assert.Equal(t, "r1", m.Events()[0].RunID)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeRunStarted}))
	p.Close()
}

func TestNewNATSPublisher_Errors(t *testing.T) {
	_, err := NewNATSPublisher("", "")
	assert.Error(t, err)

	_, err = NewNATSPublisher("nats://127.0.0.1:1", "", nats.Timeout(200*time.Millisecond))
	assert.Error(t, err)
}

func TestNATSPublisher_Nil(t *testing.T) {
	var p *NATSPublisher
	assert.Error(t, p.Publish(context.Background(), Event{}))
	p.Close()
}
