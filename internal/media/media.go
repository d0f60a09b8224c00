// Package media implements the Media collaborator (section 4.9):
// resolving message-referenced attachment ids to the metadata a client
// needs to render them. Upload and transcoding are out of scope; this
// package only serves metadata already written by that pipeline.
package media

import (
	"context"
	"fmt"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/cache"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/storage/blob"
)

// record is what an upload pipeline writes per attachment id; this
// package is a read path over it.
type record struct {
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// Config configures the Media adapter.
type Config struct {
	KeyPrefix string // cache key namespace, defaults to "media:attachment:"
}

// Service resolves attachment references against a metadata cache and a
// blob store for URL generation.
type Service struct {
	cfg   Config
	meta  cache.Cache
	store blob.Store
}

// New builds a Media adapter over a metadata cache and a blob store.
func New(cfg Config, meta cache.Cache, store blob.Store) *Service {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "media:attachment:"
	}
	return &Service{cfg: cfg, meta: meta, store: store}
}

func (s *Service) key(attachmentID string) string {
	return s.cfg.KeyPrefix + attachmentID
}

// ResolveAttachments looks up metadata for each ref and pairs it with a
// retrievable URL. A ref whose metadata is missing is skipped rather
// than failing the whole batch, since one broken attachment shouldn't
// block delivery of the rest of a message's content.
func (s *Service) ResolveAttachments(ctx context.Context, refs []ports.AttachmentRef) ([]ports.ResolvedAttachment, error) {
	out := make([]ports.ResolvedAttachment, 0, len(refs))
	for _, ref := range refs {
		var rec record
		if err := s.meta.Get(ctx, s.key(ref.AttachmentID), &rec); err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				continue
			}
			return nil, errors.Wrap(err, fmt.Sprintf("failed to resolve attachment %s", ref.AttachmentID))
		}
		out = append(out, ports.ResolvedAttachment{
			AttachmentID: ref.AttachmentID,
			MimeType:     rec.MimeType,
			SizeBytes:    rec.SizeBytes,
			URL:          s.store.URL(ref.AttachmentID),
		})
	}
	return out, nil
}

// PutMetadata registers an attachment's metadata. Called by the upload
// path once a blob has been written to the store.
func (s *Service) PutMetadata(ctx context.Context, attachmentID, mimeType string, sizeBytes int64) error {
	return s.meta.Set(ctx, s.key(attachmentID), record{MimeType: mimeType, SizeBytes: sizeBytes}, 0)
}
