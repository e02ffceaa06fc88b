// Package docvault stores release documentation (certificates of analysis,
// release packets) per production batch on a pluggable backend.
package docvault

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete vault backend implementation.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string            // MIME type, optional
	Metadata    map[string]string // flat key-value user metadata
}

// SignedURLOptions holds options for generating a pre-signed URL.
type SignedURLOptions struct {
	Method string        // GET only; other methods return ErrUnsupported
	Expiry time.Duration // default 15m
}

// Document describes a stored release document.
type Document struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	Checksum     string            `json:"checksum,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	URL          string            `json:"url,omitempty"`
}

// Vault is the storage abstraction for release documents. Semantics mirror a
// minimal S3 subset so the S3 adapter is nearly 1:1 and the filesystem
// adapter can emulate them.
type Vault interface {
	// Put stores a new document at key. Fails if the key already exists;
	// release evidence is write-once.
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Document, error)
	// Get retrieves the document contents and metadata.
	Get(ctx context.Context, key string) (Document, io.ReadCloser, error)
	// Head returns metadata only.
	Head(ctx context.Context, key string) (Document, error)
	// Delete removes a document. Returns (false, nil) if not found.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns documents whose key has the provided prefix, key ascending.
	List(ctx context.Context, prefix string) ([]Document, error)
	// PresignURL returns a time-limited GET URL for the key. Backends may
	// return ErrUnsupported.
	PresignURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	// Driver returns the configured backend driver.
	Driver() Driver
}

// ErrUnsupported is returned when an optional capability is not available.
var ErrUnsupported = errors.New("docvault: unsupported operation")

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
