package sheets

import (
	"context"
	"sync"
)

// MockWriter records exports for tests.
type MockWriter struct {
	WriteFunc func(ctx context.Context, data *ExportData) error
	Calls     []*ExportData
	mu        sync.Mutex
}

// NewMockWriter creates a new mock writer.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write implements Exporter.
func (m *MockWriter) Write(ctx context.Context, data *ExportData) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, data)
	fn := m.WriteFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, data)
	}
	return nil
}

// Last returns the most recent export, or nil.
func (m *MockWriter) Last() *ExportData {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}

// SetWriteError makes every later Write return err.
func (m *MockWriter) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteFunc = func(context.Context, *ExportData) error { return err }
}
