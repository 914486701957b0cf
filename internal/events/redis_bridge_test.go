package events

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carousel/internal/domain"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	progress := 45
	payload, err := encodeEnvelope("replica-a", Event{Kind: KindUpdated, JobID: "job-1", Status: domain.JobStatusProcessing, Progress: &progress})
	require.NoError(t, err)

	env, err := decodeEnvelope(payload)
	require.NoError(t, err)
	assert.Equal(t, "replica-a", env.Origin)
	assert.Equal(t, domain.JobStatusProcessing, env.Event.Status)
	require.NotNil(t, env.Event.Progress)
	assert.Equal(t, 45, *env.Event.Progress)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := decodeEnvelope("not json")
	assert.Error(t, err)
	_, err = decodeEnvelope(`{"origin":"x","event":{"kind":"updated"}}`)
	assert.Error(t, err)
}

func TestRelaySkipsOwnOrigin(t *testing.T) {
	local := NewNotifier(4, zerolog.Nop())
	bridge := NewRedisBridge(nil, "chan", local, zerolog.Nop())
	sub := local.Subscribe("job-1")
	defer sub.Close()

	own, err := encodeEnvelope(bridge.origin, Event{Kind: KindUpdated, JobID: "job-1"})
	require.NoError(t, err)
	remote, err := encodeEnvelope("other-replica", Event{Kind: KindDeleted, JobID: "job-1"})
	require.NoError(t, err)

	bridge.relay(context.Background(), own)
	bridge.relay(context.Background(), "garbage")
	bridge.relay(context.Background(), remote)

	assert.Equal(t, KindDeleted, receive(t, sub).Kind)
	assertNoEvent(t, sub)
}
