// Package archive persists raw item pages so extraction regressions can be
// replayed against the original HTML.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"go.uber.org/zap"
)

// BlobStore abstracts the object storage backends used for page archiving.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher produces stable digests for archive object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Archiver writes fetched item pages into a blob store under
// <prefix>/<site>/<date>/<urlhash>.html.
type Archiver struct {
	store  BlobStore
	hasher Hasher
	prefix string
	logger *zap.Logger
}

// New creates an Archiver. A nil store disables archiving.
func New(store BlobStore, hasher Hasher, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{store: store, hasher: hasher, prefix: prefix, logger: logger}
}

// Enabled reports whether pages will actually be persisted.
func (a *Archiver) Enabled() bool {
	return a != nil && a.store != nil
}

// SavePage stores one fetched page and returns its URI. It is a no-op when
// archiving is disabled.
func (a *Archiver) SavePage(ctx context.Context, site, pageURL string, body []byte, fetched time.Time) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	digest, err := a.hasher.Hash([]byte(pageURL))
	if err != nil {
		return "", fmt.Errorf("hash page url: %w", err)
	}
	objectPath := path.Join(a.prefix, site, fetched.UTC().Format("2006-01-02"), digest+".html")
	uri, err := a.store.PutObject(ctx, objectPath, "text/html; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("archive page %s: %w", pageURL, err)
	}
	a.logger.Debug("archived page",
		zap.String("site", site),
		zap.String("url", pageURL),
		zap.String("uri", uri))
	return uri, nil
}
