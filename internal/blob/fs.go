package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Filesystem keeps blobs as files under a root directory, with a JSON
// sidecar per blob for content type and metadata.
type Filesystem struct {
	root string
}

// NewFilesystem returns a filesystem store rooted at root, creating the
// directory if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./blobdata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

func (f *Filesystem) Driver() Driver { return DriverFilesystem }

const sidecarSuffix = ".meta"

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	StoredAt    time.Time         `json:"stored_at"`
}

func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (f *Filesystem) paths(key string) (data, meta string, err error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	data = filepath.Join(f.root, filepath.FromSlash(k))
	return data, data + sidecarSuffix, nil
}

func (f *Filesystem) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrExists, key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Info{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".upload-*")
	if err != nil {
		return Info{}, err
	}
	defer os.Remove(tmp.Name())

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return Info{}, err
	}

	sc := sidecar{
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
		ETag:        hex.EncodeToString(digest.Sum(nil)),
		Size:        size,
		StoredAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(sc)
	if err != nil {
		return Info{}, err
	}
	if err := os.WriteFile(metaPath, raw, 0o644); err != nil {
		return Info{}, err
	}
	return infoFromSidecar(key, sc), nil
}

func infoFromSidecar(key string, sc sidecar) Info {
	return Info{
		Key:          key,
		Size:         sc.Size,
		ContentType:  sc.ContentType,
		ETag:         sc.ETag,
		Metadata:     sc.Metadata,
		LastModified: sc.StoredAt,
	}
}

func (f *Filesystem) readSidecar(metaPath string) (sidecar, error) {
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return sidecar{}, err
	}
	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return sidecar{}, fmt.Errorf("decode blob sidecar: %w", err)
	}
	return sc, nil
}

func (f *Filesystem) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, err := f.Head(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	dataPath, _, err := f.paths(key)
	if err != nil {
		return Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return Info{}, nil, err
	}
	return info, file, nil
}

func (f *Filesystem) Head(ctx context.Context, key string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	_, metaPath, err := f.paths(key)
	if err != nil {
		return Info{}, err
	}
	sc, err := f.readSidecar(metaPath)
	if err != nil {
		return Info{}, err
	}
	return infoFromSidecar(key, sc), nil
}

func (f *Filesystem) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	dataPath, metaPath, err := f.paths(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

func (f *Filesystem) List(ctx context.Context, prefix string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var infos []Info
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, sidecarSuffix) {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		sc, err := f.readSidecar(path + sidecarSuffix)
		if err != nil {
			return err
		}
		infos = append(infos, infoFromSidecar(key, sc))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (f *Filesystem) PresignURL(context.Context, string, SignedURLOptions) (string, error) {
	return "", ErrUnsupported
}

var _ Store = (*Filesystem)(nil)
