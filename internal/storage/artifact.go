package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob" // gs:// artifact buckets
	_ "gocloud.dev/blob/memblob" // mem:// artifact buckets
	_ "gocloud.dev/blob/s3blob"  // s3:// artifact buckets
	"gocloud.dev/gcerrors"

	"github.com/IshaanNene/keibastalk/internal/observability"
	"github.com/IshaanNene/keibastalk/internal/types"
)

// Key addresses one artifact: a stage prefix and a deterministic name
// derived from the stage's inputs.
type Key struct {
	Stage string
	Name  string
}

// String returns the object path of the key inside the bucket.
func (k Key) String() string {
	return path.Join(k.Stage, k.Name)
}

const pageExt = ".bin"

// PageKey addresses the raw capture of one page.
func PageKey(stage, id string) Key {
	return Key{Stage: stage, Name: id + pageExt}
}

// PageID returns the identifier of a page capture name listed under a
// page stage, or false for other objects.
func PageID(name string) (string, bool) {
	if !strings.HasSuffix(name, pageExt) {
		return "", false
	}
	return strings.TrimSuffix(name, pageExt), true
}

// ArtifactStore persists pipeline artifacts in a blob bucket.
// It is used by a single sequential writer; no locking is done.
type ArtifactStore struct {
	bucket  *blob.Bucket
	backend string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewArtifactStore wraps an already opened bucket.
func NewArtifactStore(bucket *blob.Bucket, backend string, metrics *observability.Metrics, logger *slog.Logger) *ArtifactStore {
	return &ArtifactStore{
		bucket:  bucket,
		backend: backend,
		metrics: metrics,
		logger:  logger.With("component", "artifact_store", "backend", backend),
	}
}

// OpenArtifactStore opens the bucket addressed by rawURL. Plain paths and
// file:// URLs are opened as local directories, created if absent. Other
// schemes (mem://, s3://, gs://) go through the gocloud URL mux.
func OpenArtifactStore(ctx context.Context, rawURL string, metrics *observability.Metrics, logger *slog.Logger) (*ArtifactStore, error) {
	if !strings.Contains(rawURL, "://") || strings.HasPrefix(rawURL, "file://") {
		dir := rawURL
		if strings.HasPrefix(rawURL, "file://") {
			u, err := url.Parse(rawURL)
			if err != nil {
				return nil, &types.StorageError{Backend: "file", Err: err}
			}
			dir = u.Path
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, &types.StorageError{Backend: "file", Err: err}
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, &types.StorageError{Backend: "file", Err: fmt.Errorf("create artifact dir: %w", err)}
		}
		bucket, err := fileblob.OpenBucket(abs, nil)
		if err != nil {
			return nil, &types.StorageError{Backend: "file", Err: err}
		}
		return NewArtifactStore(bucket, "file", metrics, logger), nil
	}

	scheme := rawURL[:strings.Index(rawURL, "://")]
	bucket, err := blob.OpenBucket(ctx, rawURL)
	if err != nil {
		return nil, &types.StorageError{Backend: scheme, Err: err}
	}
	return NewArtifactStore(bucket, scheme, metrics, logger), nil
}

// Save durably persists payload under key, overwriting any prior value.
func (s *ArtifactStore) Save(ctx context.Context, key Key, payload []byte) error {
	if err := s.bucket.WriteAll(ctx, key.String(), payload, nil); err != nil {
		return &types.StorageError{Backend: s.backend, Err: fmt.Errorf("save %s: %w", key, err)}
	}
	s.metrics.ArtifactsStored.Add(1)
	s.logger.Debug("artifact saved", "key", key.String(), "size", len(payload))
	return nil
}

// Load returns the payload stored under key. A missing artifact is not an
// error: ok is false and the caller decides how to recover.
func (s *ArtifactStore) Load(ctx context.Context, key Key) (payload []byte, ok bool, err error) {
	payload, err = s.bucket.ReadAll(ctx, key.String())
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			s.metrics.CacheMisses.Add(1)
			return nil, false, nil
		}
		return nil, false, &types.StorageError{Backend: s.backend, Err: fmt.Errorf("load %s: %w", key, err)}
	}
	s.metrics.CacheHits.Add(1)
	return payload, true, nil
}

// Exists reports whether an artifact is stored under key.
func (s *ArtifactStore) Exists(ctx context.Context, key Key) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key.String())
	if err != nil {
		return false, &types.StorageError{Backend: s.backend, Err: fmt.Errorf("stat %s: %w", key, err)}
	}
	return ok, nil
}

// Delete removes the artifact under key. Deleting a missing key is a no-op.
func (s *ArtifactStore) Delete(ctx context.Context, key Key) error {
	err := s.bucket.Delete(ctx, key.String())
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return &types.StorageError{Backend: s.backend, Err: fmt.Errorf("delete %s: %w", key, err)}
	}
	return nil
}

// List returns the sorted names of all artifacts directly under stage.
func (s *ArtifactStore) List(ctx context.Context, stage string) ([]string, error) {
	prefix := strings.TrimSuffix(stage, "/") + "/"
	iter := s.bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})

	var names []string
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &types.StorageError{Backend: s.backend, Err: fmt.Errorf("list %s: %w", stage, err)}
		}
		if obj.IsDir {
			continue
		}
		names = append(names, strings.TrimPrefix(obj.Key, prefix))
	}
	sort.Strings(names)
	return names, nil
}

// SaveList stores an identifier list.
func (s *ArtifactStore) SaveList(ctx context.Context, key Key, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return &types.StorageError{Backend: s.backend, Err: fmt.Errorf("encode %s: %w", key, err)}
	}
	return s.Save(ctx, key, payload)
}

// LoadList loads an identifier list stored by SaveList.
func (s *ArtifactStore) LoadList(ctx context.Context, key Key) ([]string, bool, error) {
	payload, ok, err := s.Load(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var ids []string
	if err := json.Unmarshal(payload, &ids); err != nil {
		return nil, false, &types.StorageError{Backend: s.backend, Err: fmt.Errorf("decode %s: %w", key, err)}
	}
	return ids, true, nil
}

// SaveTable stores a table as TSV.
func (s *ArtifactStore) SaveTable(ctx context.Context, key Key, t *types.Table) error {
	var buf bytes.Buffer
	if err := t.WriteTSV(&buf); err != nil {
		return &types.StorageError{Backend: s.backend, Err: fmt.Errorf("encode %s: %w", key, err)}
	}
	return s.Save(ctx, key, buf.Bytes())
}

// LoadTable loads a table stored by SaveTable.
func (s *ArtifactStore) LoadTable(ctx context.Context, key Key, name string) (*types.Table, bool, error) {
	payload, ok, err := s.Load(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	t, err := types.ReadTSV(name, bytes.NewReader(payload))
	if err != nil {
		return nil, false, &types.StorageError{Backend: s.backend, Err: fmt.Errorf("decode %s: %w", key, err)}
	}
	return t, true, nil
}

// Close releases the bucket.
func (s *ArtifactStore) Close() error {
	return s.bucket.Close()
}
