package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "pages.updated", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id1)

	id2, err := pub.Publish(context.Background(), "pages.rejected", "payload")
	require.NoError(t, err)
	require.Equal(t, "mem-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "pages.updated", msgs[0].Topic)
	require.Equal(t, "mem-1", msgs[0].ID)
	require.Equal(t, "pages.rejected", msgs[1].Topic)

	msgs[0].Topic = "modified"
	require.NotEqual(t, "modified", pub.Messages()[0].Topic)
}

func TestPublisherTopicMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	for range 2 {
		_, err := pub.Publish(context.Background(), "pages.updated", "a")
		require.NoError(t, err)
	}
	_, err := pub.Publish(context.Background(), "pages.rejected", "b")
	require.NoError(t, err)

	updated := pub.TopicMessages("pages.updated")
	require.Len(t, updated, 2)
	require.Equal(t, "mem-1", updated[0].ID)
	require.Equal(t, "mem-2", updated[1].ID)
	require.Empty(t, pub.TopicMessages("pages.missing"))
}
