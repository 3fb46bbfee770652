package events_test

import (
	"context"

	"searchsync/internal/events"

	"github.com/stretchr/testify/mock"
)

type MockBus struct {
	mock.Mock
}

func (m *MockBus) Close() error { return nil }

func (m *MockBus) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	args := m.Called(subject, data, msgID)
	return args.Error(0)
}

func (m *MockBus) Subscribe(subject, group string, handler events.Handler) (events.Subscription, error) {
	args := m.Called(subject, group, handler)
	return args.Get(0).(events.Subscription), args.Error(1)
}

var testConfig = &events.EventConfig{
	Stream:       "TEST",
	BulkExport:   "test.bulk",
	ExportRecord: "test.export",
	DeleteRecord: "test.delete",
}

// captureHandler registers a Subscribe expectation and returns a pointer
// that receives the handler the reader installs.
func captureHandler(m *MockBus, subject string) *events.Handler {
	var h events.Handler
	m.On("Subscribe", subject, "searchsync-worker", mock.Anything).
		Run(func(args mock.Arguments) {
			h = args.Get(2).(events.Handler)
		}).
		Return(events.Subscription{}, nil)
	return &h
}
