package docvault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Filesystem implements Vault on a local directory. Keys map to relative
// file paths under the root; a JSON sidecar (filename + ".doc") carries
// content type, checksum, and user metadata. Not safe for concurrent writers
// beyond per-file creation.
type Filesystem struct {
	root string
}

// NewFilesystem returns a filesystem vault rooted at path, creating it if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./docvault"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

// Driver returns the vault driver identifier.
func (f *Filesystem) Driver() Driver { return DriverFilesystem }

// sanitizeKey forbids traversal and absolute paths so keys stay under root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}

func (f *Filesystem) pathFor(key string) (dataPath, sidecarPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(f.root, k)
	sidecarPath = dataPath + ".doc"
	return
}

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Checksum    string            `json:"checksum"`
	Size        int64             `json:"size"`
	StoredAt    time.Time         `json:"stored_at"`
}

// Put stores a new document at key, streaming through a temp file so the
// checksum and size are computed once and the final rename is atomic.
func (f *Filesystem) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Document, error) {
	dataPath, sidecarPath, err := f.pathFor(key)
	if err != nil {
		return Document{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return Document{}, fmt.Errorf("document %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Document{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(tmp, h), r)
	if copyErr != nil {
		_ = tmp.Close()
		return Document{}, copyErr
	}
	if err := tmp.Close(); err != nil {
		return Document{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return Document{}, err
	}
	now := time.Now().UTC()
	sc := sidecar{
		ContentType: opts.ContentType,
		Metadata:    cloneMetadata(opts.Metadata),
		Checksum:    hex.EncodeToString(h.Sum(nil)),
		Size:        size,
		StoredAt:    now,
	}
	raw, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return Document{}, err
	}
	if err := os.WriteFile(sidecarPath, raw, 0o644); err != nil {
		return Document{}, err
	}
	return f.document(key, sc), nil
}

// Get returns document contents and metadata.
func (f *Filesystem) Get(_ context.Context, key string) (Document, io.ReadCloser, error) {
	dataPath, sidecarPath, err := f.pathFor(key)
	if err != nil {
		return Document{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return Document{}, nil, err
	}
	sc, err := readSidecar(sidecarPath)
	if err != nil {
		_ = file.Close()
		return Document{}, nil, err
	}
	return f.document(key, sc), file, nil
}

// Head returns document metadata.
func (f *Filesystem) Head(_ context.Context, key string) (Document, error) {
	_, sidecarPath, err := f.pathFor(key)
	if err != nil {
		return Document{}, err
	}
	sc, err := readSidecar(sidecarPath)
	if err != nil {
		return Document{}, err
	}
	return f.document(key, sc), nil
}

// Delete removes a document and its sidecar.
func (f *Filesystem) Delete(_ context.Context, key string) (bool, error) {
	dataPath, sidecarPath, err := f.pathFor(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dataPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(dataPath); err != nil {
		return false, err
	}
	_ = os.Remove(sidecarPath)
	return true, nil
}

// List walks the root collecting sidecars and filters by prefix.
func (f *Filesystem) List(_ context.Context, prefix string) ([]Document, error) {
	var docs []Document
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".doc") {
			return nil
		}
		sc, err := readSidecar(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(f.root, strings.TrimSuffix(path, ".doc"))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			docs = append(docs, f.document(key, sc))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// PresignURL returns a stable pseudo URL for development; only GET is served.
func (f *Filesystem) PresignURL(_ context.Context, key string, opts SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", ErrUnsupported
	}
	return f.localURL(key), nil
}

func (f *Filesystem) localURL(key string) string {
	return (&url.URL{Scheme: "http", Host: "local.docvault", Path: "/" + key}).String()
}

func (f *Filesystem) document(key string, sc sidecar) Document {
	return Document{
		Key:          key,
		Size:         sc.Size,
		ContentType:  sc.ContentType,
		Checksum:     sc.Checksum,
		Metadata:     cloneMetadata(sc.Metadata),
		LastModified: sc.StoredAt,
		URL:          f.localURL(key),
	}
}

func readSidecar(path string) (sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return sidecar{}, err
	}
	return sc, nil
}
