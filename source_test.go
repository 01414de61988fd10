package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticSourceBackfillThenSync(t *testing.T) {
	src := newSyntheticSource(6)
	ctx := context.Background()

	var announcements, updates int
	for i := 0; i < 6; i++ {
		msg, err := src.FetchNext(ctx)
		require.NoError(t, err)
		switch msg.(type) {
		case ChannelAnnouncement:
			announcements++
		case ChannelUpdate:
			updates++
		default:
			t.Fatalf("unexpected control message at position %d", i)
		}
	}
	assert.Equal(t, 3, announcements)
	assert.Equal(t, 3, updates)

	msg, err := src.FetchNext(ctx)
	require.NoError(t, err)
	assert.IsType(t, SyncComplete{}, msg, "marker follows the backfill exactly once")
}

func TestSyntheticSourceStopsOnCancel(t *testing.T) {
	src := newSyntheticSource(0)
	ctx := context.Background()

	msg, err := src.FetchNext(ctx)
	require.NoError(t, err)
	assert.IsType(t, SyncComplete{}, msg)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.FetchNext(canceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSourceMirrorsIntoGraph(t *testing.T) {
	src := newSyntheticSource(4)
	graph := NewNetworkGraph()
	out := make(chan GossipMessage, gossipChannelCapacity)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runSource(ctx, src, graph, out, testLogger())

	// Drain the backfill plus the marker, then stop the live trickle.
	var got []GossipMessage
	for msg := range out {
		got = append(got, msg)
		if _, ok := msg.(SyncComplete); ok {
			cancel()
			break
		}
	}
	for range out {
		// drain until runSource closes the channel
	}

	require.Len(t, got, 5)
	assert.Equal(t, 2, graph.ChannelCount(), "announcements land in the shared graph")
}
