package blob

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory holds blobs in process memory. Test and dev use only.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data []byte
	info Info
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]memoryBlob)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	if strings.TrimSpace(key) == "" {
		return Info{}, fmt.Errorf("empty key")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	digest := sha256.Sum256(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; ok {
		return Info{}, fmt.Errorf("%w: %s", ErrExists, key)
	}
	info := Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(digest[:]),
		Metadata:     opts.Metadata,
		LastModified: time.Now().UTC(),
	}
	m.blobs[key] = memoryBlob{data: data, info: info}
	return info, nil
}

func (m *Memory) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return Info{}, nil, fmt.Errorf("blob %s: %w", key, os.ErrNotExist)
	}
	return b.info, io.NopCloser(bytes.NewReader(b.data)), nil
}

func (m *Memory) Head(ctx context.Context, key string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return Info{}, fmt.Errorf("blob %s: %w", key, os.ErrNotExist)
	}
	return b.info, nil
}

func (m *Memory) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return false, nil
	}
	delete(m.blobs, key)
	return true, nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var infos []Info
	for key, b := range m.blobs {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, b.info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (m *Memory) PresignURL(context.Context, string, SignedURLOptions) (string, error) {
	return "", ErrUnsupported
}

var _ Store = (*Memory)(nil)
