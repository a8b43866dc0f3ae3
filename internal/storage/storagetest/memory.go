// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"bytes"
	"context"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/cloudconsole/engine/internal/storage"
	appErr "github.com/cloudconsole/engine/pkg/errors"
)

// Op names a Store method for failure injection.
type Op string

const (
	OpList   Op = "list"
	OpGet    Op = "get"
	OpPut    Op = "put"
	OpCopy   Op = "copy"
	OpDelete Op = "delete"
)

// Memory is a goroutine-safe map-backed Store.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]storage.Metadata
	faults  map[Op]map[string]error
	calls   map[Op]int
}

var _ storage.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		objects: map[string][]byte{},
		meta:    map[string]storage.Metadata{},
		faults:  map[Op]map[string]error{},
		calls:   map[Op]int{},
	}
}

// Seed writes objects directly, bypassing fault injection.
func (m *Memory) Seed(objects map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range objects {
		m.objects[k] = []byte(v)
	}
}

// Fail makes op fail for key. An empty key matches every call of op.
// A nil err yields a CodeUnavailable error.
func (m *Memory) Fail(op Op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = appErr.Newf(appErr.CodeUnavailable, "injected %s failure", op)
	}
	if m.faults[op] == nil {
		m.faults[op] = map[string]error{}
	}
	m.faults[op][key] = err
}

// Object returns the stored bytes for key.
func (m *Memory) Object(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	return string(b), ok
}

// Meta returns the metadata stored with key.
func (m *Memory) Meta(key string) storage.Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[key]
}

// Keys returns every key under prefix, sorted.
func (m *Memory) Keys(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keysLocked(prefix)
}

// Calls returns how many times op was invoked, faulted calls included.
func (m *Memory) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Writes is the number of Put, Copy and DeleteBatch calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[OpPut] + m.calls[OpCopy] + m.calls[OpDelete]
}

func (m *Memory) fault(op Op, key string) error {
	if f := m.faults[op]; f != nil {
		if err, ok := f[key]; ok {
			return err
		}
		if err, ok := f[""]; ok {
			return err
		}
	}
	return nil
}

func (m *Memory) keysLocked(prefix string) []string {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpList]++
	if err := m.fault(OpList, prefix); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "list canceled")
	}
	return m.keysLocked(prefix), nil
}

func (m *Memory) Get(ctx context.Context, key string) (io.ReadCloser, storage.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpGet]++
	if err := m.fault(OpGet, key); err != nil {
		return nil, nil, err
	}
	b, ok := m.objects[key]
	if !ok {
		return nil, nil, appErr.Newf(appErr.CodeUnavailable, "no such key %q", key)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(b))), maps.Clone(m.meta[key]), nil
}

func (m *Memory) Put(ctx context.Context, key string, body io.Reader, meta storage.Metadata) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeUnavailable, "read body")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpPut]++
	if err := m.fault(OpPut, key); err != nil {
		return err
	}
	m.objects[key] = b
	if len(meta) > 0 {
		m.meta[key] = maps.Clone(meta)
	} else {
		delete(m.meta, key)
	}
	return nil
}

func (m *Memory) Copy(ctx context.Context, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpCopy]++
	if err := m.fault(OpCopy, srcKey); err != nil {
		return err
	}
	b, ok := m.objects[srcKey]
	if !ok {
		return appErr.Newf(appErr.CodeUnavailable, "no such key %q", srcKey)
	}
	m.objects[dstKey] = bytes.Clone(b)
	if meta, ok := m.meta[srcKey]; ok {
		m.meta[dstKey] = maps.Clone(meta)
	} else {
		delete(m.meta, dstKey)
	}
	return nil
}

func (m *Memory) DeleteBatch(ctx context.Context, keys []string) (storage.DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[OpDelete]++
	res := storage.DeleteResult{Failed: map[string]string{}}
	for _, k := range keys {
		if err := m.fault(OpDelete, k); err != nil {
			res.Failed[k] = err.Error()
			continue
		}
		delete(m.objects, k)
		delete(m.meta, k)
		res.Deleted = append(res.Deleted, k)
	}
	if !res.Clean() {
		return res, appErr.Newf(appErr.CodeUnavailable, "delete left %d of %d objects", len(res.Failed), len(keys))
	}
	return res, nil
}
