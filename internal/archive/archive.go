// Package archive stores raw origin pages in a blob store, content-addressed.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

const defaultContentType = "text/html; charset=utf-8"

// Config controls where pages are written.
type Config struct {
	Prefix      string
	ContentType string
}

// PageRef identifies one listing page.
type PageRef struct {
	Term   string
	Campus string
	Major  string
	Offset int
}

// Archiver writes listing pages to a BlobStore.
type Archiver struct {
	blobs  catalog.BlobStore
	hasher catalog.Hasher
	cfg    Config
}

// New constructs an Archiver.
func New(blobs catalog.BlobStore, hasher catalog.Hasher, cfg Config) *Archiver {
	if cfg.ContentType == "" {
		cfg.ContentType = defaultContentType
	}
	return &Archiver{blobs: blobs, hasher: hasher, cfg: cfg}
}

// Archive stores body and returns the blob URI.
func (a *Archiver) Archive(ctx context.Context, ref PageRef, body []byte) (string, error) {
	hash, err := a.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash page: %w", err)
	}
	uri, err := a.blobs.PutObject(ctx, a.buildPath(ref, hash), a.cfg.ContentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func (a *Archiver) buildPath(ref PageRef, hash string) string {
	name := fmt.Sprintf("%s/%s/%s/%06d-%s.html",
		safeSegment(ref.Term), safeSegment(ref.Campus), safeSegment(ref.Major), ref.Offset, hash)
	prefix := strings.Trim(a.cfg.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func safeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', '.':
			return '_'
		}
		return r
	}, s)
}
