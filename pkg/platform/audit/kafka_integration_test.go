//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"op-atlas/pkg/testutil/containers"
)

func TestKafkaSinkPublishesEvents(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	topic := "atlas.audit.events"

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sink, err := NewKafkaSink(ctx, []string{rp.Broker}, topic)
	require.NoError(t, err)
	defer sink.Close()

	pub := NewPublisher(sink, slog.Default())
	pub.Emit(ctx, Event{
		Action:  ActionCitizenRegistered,
		Subject: "user/abc",
		ActorID: "abc",
	})
	pub.Emit(ctx, Event{
		Action:  ActionCitizenResigned,
		Subject: "user/abc",
		ActorID: "abc",
	})

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var records []*kgo.Record
	for len(records) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, fetches.Err())
		records = append(records, fetches.Records()...)
	}

	// Events for one subject share a partition key, so order is preserved.
	require.Len(t, records, 2)
	assert.Equal(t, "user/abc", string(records[0].Key))

	var first, second Event
	require.NoError(t, json.Unmarshal(records[0].Value, &first))
	require.NoError(t, json.Unmarshal(records[1].Value, &second))
	assert.Equal(t, ActionCitizenRegistered, first.Action)
	assert.Equal(t, ActionCitizenResigned, second.Action)
	assert.False(t, first.Timestamp.IsZero())
}
