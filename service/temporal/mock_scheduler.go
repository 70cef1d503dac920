package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is a mock implementation of Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	started   []AnalyzeBlockInput
	schedules map[string]time.Duration // map[scheduleID]interval
	startErr  error
	createErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{
		schedules: make(map[string]time.Duration),
	}
}

// StartAnalyzeBlock records the started analysis.
func (m *MockScheduler) StartAnalyzeBlock(ctx context.Context, input AnalyzeBlockInput) (string, string, error) {
	if m.startErr != nil {
		return "", "", m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = append(m.started, input)
	id := workflowID(input.Slot)
	if id == "" {
		id = fmt.Sprintf("analyze-latest-%d", len(m.started))
	}
	return id, fmt.Sprintf("run-%d", len(m.started)), nil
}

// UpsertWatchSchedule creates or updates a schedule.
func (m *MockScheduler) UpsertWatchSchedule(ctx context.Context, name string, interval time.Duration, input AnalyzeBlockInput) error {
	if m.createErr != nil {
		return m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.schedules[scheduleID(name)] = interval // Creates or updates
	return nil
}

// DeleteWatchSchedule records that a schedule was deleted.
func (m *MockScheduler) DeleteWatchSchedule(ctx context.Context, name string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := scheduleID(name)
	if _, exists := m.schedules[id]; !exists {
		return fmt.Errorf("schedule %q not found", id)
	}

	delete(m.schedules, id)
	return nil
}

// SetStartError makes StartAnalyzeBlock return an error.
func (m *MockScheduler) SetStartError(err error) {
	m.startErr = err
}

// SetCreateError makes UpsertWatchSchedule return an error.
func (m *MockScheduler) SetCreateError(err error) {
	m.createErr = err
}

// SetDeleteError makes DeleteWatchSchedule return an error.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

// Started returns the inputs of every started analysis.
func (m *MockScheduler) Started() []AnalyzeBlockInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AnalyzeBlockInput(nil), m.started...)
}

// GetScheduleInterval returns the interval for a watch schedule.
func (m *MockScheduler) GetScheduleInterval(name string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	interval, exists := m.schedules[scheduleID(name)]
	return interval, exists
}

// ScheduleCount returns the number of schedules.
func (m *MockScheduler) ScheduleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedules)
}

// Reset clears all recorded state and errors.
func (m *MockScheduler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = nil
	m.schedules = make(map[string]time.Duration)
	m.startErr = nil
	m.createErr = nil
	m.deleteErr = nil
}
