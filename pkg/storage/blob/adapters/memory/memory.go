// Package memory is an in-process blob.Store for tests.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/storage/blob"
)

// Store keeps objects in a map; New returns it as a blob.Store.
type Store struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

func New(cfg blob.Config) blob.Store {
	return &Store{objs: make(map[string][]byte)}
}

func (s *Store) Upload(ctx context.Context, key string, data io.Reader) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return errors.Wrap(err, "failed to read blob data")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[key] = buf
	return nil
}

func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf, ok := s.objs[key]
	if !ok {
		return nil, errors.NotFound("blob not found", nil)
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objs, key)
	return nil
}

func (s *Store) URL(key string) string {
	return "memory://" + key
}
