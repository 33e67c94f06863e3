package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskmaster/taskflow/internal/infrastructure/clock"
	"github.com/taskmaster/taskflow/internal/infrastructure/logger"
	"github.com/taskmaster/taskflow/internal/ports"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	sets    int
	failSet error
	failGet error
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ports.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.sets++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func (m *memStore) raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data[key])
}

func newTestStore(store ports.KeyValueStore, fc *clock.Fake) *TaskService {
	return NewTaskService(context.Background(), store, logger.NewNop(), WithClock(fc))
}

type fakeNotifier struct {
	mu         sync.Mutex
	permission ports.Permission
	answer     ports.Permission
	requests   int
	err        error
	sent       []string
}

func (f *fakeNotifier) PermissionState() ports.Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permission
}

func (f *fakeNotifier) RequestPermission(context.Context) <-chan ports.Permission {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	f.permission = f.answer
	ch := make(chan ports.Permission, 1)
	ch <- f.answer
	return ch
}

func (f *fakeNotifier) Notify(_ context.Context, _, body, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, tag+" "+body)
	return nil
}

func (f *fakeNotifier) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type fakeBanner struct {
	mu    sync.Mutex
	shown []string
	icons []ports.BannerIcon
}

func (b *fakeBanner) Show(message string, icon ports.BannerIcon) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shown = append(b.shown, message)
	b.icons = append(b.icons, icon)
}

func (b *fakeBanner) Dismiss() {}

func (b *fakeBanner) Shown() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.shown...)
}

var errDiskFull = errors.New("quota exceeded")
