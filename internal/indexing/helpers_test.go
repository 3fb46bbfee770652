package indexing_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

type fakeSettings struct {
	mu     sync.Mutex
	key    string
	engine string
	err    error
}

func (f *fakeSettings) APIKey(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key, f.err
}

func (f *fakeSettings) EngineName(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engine, f.err
}

func (f *fakeSettings) rotate(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.key = key
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
