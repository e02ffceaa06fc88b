package docvault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	doc  Document
	data []byte
}

// Memory implements Vault backed by process memory. Intended for tests.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memoryEntry
}

// NewMemory returns an in-memory vault.
func NewMemory() *Memory { return &Memory{objs: make(map[string]memoryEntry)} }

// Driver returns the vault driver identifier.
func (m *Memory) Driver() Driver { return DriverMemory }

// Put stores a new document; errors if the key exists.
func (m *Memory) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objs[key]; exists {
		return Document{}, fmt.Errorf("document %s already exists", key)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, err
	}
	sum := sha256.Sum256(data)
	doc := Document{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Checksum:     hex.EncodeToString(sum[:]),
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	m.objs[key] = memoryEntry{doc: doc, data: data}
	return doc, nil
}

// Get returns document contents and metadata.
func (m *Memory) Get(_ context.Context, key string) (Document, io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.objs[key]
	if !ok {
		return Document{}, nil, fmt.Errorf("document %s not found", key)
	}
	return entry.doc, io.NopCloser(bytes.NewReader(entry.data)), nil
}

// Head returns document metadata.
func (m *Memory) Head(_ context.Context, key string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.objs[key]
	if !ok {
		return Document{}, fmt.Errorf("document %s not found", key)
	}
	return entry.doc, nil
}

// Delete removes a document if present.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objs[key]; !ok {
		return false, nil
	}
	delete(m.objs, key)
	return true, nil
}

// List returns documents with the given key prefix, key ascending.
func (m *Memory) List(_ context.Context, prefix string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var docs []Document
	for key, entry := range m.objs {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			docs = append(docs, entry.doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// PresignURL is unsupported for the memory driver.
func (m *Memory) PresignURL(context.Context, string, SignedURLOptions) (string, error) {
	return "", ErrUnsupported
}
