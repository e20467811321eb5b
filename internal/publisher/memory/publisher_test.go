package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-harvester/internal/harvest"
)

func TestPublisherRecordsInOrder(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "documents", harvest.DocumentEvent{Slug: "a.html"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
	id, err = pub.Publish(context.Background(), "documents", harvest.DocumentEvent{Slug: "b.html"})
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a.html", msgs[0].Payload.(harvest.DocumentEvent).Slug)

	msgs[0].Topic = "changed"
	assert.Equal(t, "documents", pub.Messages()[0].Topic)
}
