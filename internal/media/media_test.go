package media_test

import (
	"context"
	"testing"

	"github.com/chris-alexander-pop/system-design-library/internal/media"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	cachemem "github.com/chris-alexander-pop/system-design-library/pkg/cache/adapters/memory"
	"github.com/chris-alexander-pop/system-design-library/pkg/storage/blob"
	blobmem "github.com/chris-alexander-pop/system-design-library/pkg/storage/blob/adapters/memory"
	"github.com/stretchr/testify/require"
)

func TestResolveAttachmentsReturnsKnownMetadata(t *testing.T) {
	ctx := context.Background()
	store := blobmem.New(blob.Config{})
	svc := media.New(media.Config{}, cachemem.New(), store)

	require.NoError(t, svc.PutMetadata(ctx, "att-1", "image/png", 1024))

	out, err := svc.ResolveAttachments(ctx, []ports.AttachmentRef{{AttachmentID: "att-1"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "image/png", out[0].MimeType)
	require.Equal(t, int64(1024), out[0].SizeBytes)
	require.Equal(t, "memory://att-1", out[0].URL)
}

func TestResolveAttachmentsSkipsUnknownRefs(t *testing.T) {
	ctx := context.Background()
	svc := media.New(media.Config{}, cachemem.New(), blobmem.New(blob.Config{}))

	out, err := svc.ResolveAttachments(ctx, []ports.AttachmentRef{{AttachmentID: "missing"}})
	require.NoError(t, err)
	require.Empty(t, out)
}
