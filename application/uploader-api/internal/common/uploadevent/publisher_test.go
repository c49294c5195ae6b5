package uploadevent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/stores/redis/redistest"
)

func TestPublishEvents(t *testing.T) {
	ctx := context.Background()
	publisher := NewPublisher(redistest.CreateRedis(t))

	require.NoError(t, publisher.PublishProgress(ctx, "file-a", "InProgress", 1, 3))
	require.NoError(t, publisher.PublishStatus(ctx, "file-a", "ReadyToMerge", 3, 3))
}

func TestFileIdFromChannel(t *testing.T) {
	tests := []struct {
		channel string
		want    string
	}{
		{"upload:events:file:9f0b2a1c-aaaa-bbbb-cccc-000000000001", "9f0b2a1c-aaaa-bbbb-cccc-000000000001"},
		{"upload:events:file:", ""},
		{"upload:merge:queue", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileIdFromChannel(tt.channel), "channel=%s", tt.channel)
	}
}
