package metrics

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockSampler struct {
	mock.Mock
}

func (m *mockSampler) MemoryPercent(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockSampler) CPUPercent(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func TestSnapshotThroughput(t *testing.T) {
	sampler := new(mockSampler)
	sampler.On("MemoryPercent", mock.Anything).Return(42.5, nil)
	sampler.On("CPUPercent", mock.Anything).Return(13.0, nil)

	c := NewCollectorWithSampler(sampler, zerolog.Nop())
	m := c.Snapshot(context.Background(), 4*time.Second, 12345)

	assert.InDelta(t, 3086.25, m.RecordsPerSecond, 0.001)
	assert.Equal(t, 4.0, m.DurationSeconds)
	assert.Equal(t, int64(12345), m.TotalRecords)
	assert.Equal(t, 42.5, m.MemoryUsagePercent)
	assert.Equal(t, 13.0, m.CPUUsagePercent)
	sampler.AssertExpectations(t)
}

func TestSnapshotZeroDuration(t *testing.T) {
	sampler := new(mockSampler)
	sampler.On("MemoryPercent", mock.Anything).Return(1.0, nil)
	sampler.On("CPUPercent", mock.Anything).Return(1.0, nil)

	m := NewCollectorWithSampler(sampler, zerolog.Nop()).Snapshot(context.Background(), 0, 500)
	if m.RecordsPerSecond != 0 {
		t.Errorf("RecordsPerSecond = %v, want 0", m.RecordsPerSecond)
	}
	if m.TotalRecords != 500 {
		t.Errorf("TotalRecords = %d, want 500", m.TotalRecords)
	}
}

func TestSnapshotSamplingFailure(t *testing.T) {
	sampler := new(mockSampler)
	sampler.On("MemoryPercent", mock.Anything).Return(0.0, errors.New("no /proc"))
	sampler.On("CPUPercent", mock.Anything).Return(7.0, nil)

	var logs bytes.Buffer
	m := NewCollectorWithSampler(sampler, zerolog.New(&logs)).Snapshot(context.Background(), time.Second, 10)

	assert.Equal(t, 0.0, m.MemoryUsagePercent)
	assert.Equal(t, 7.0, m.CPUUsagePercent)
	assert.Contains(t, logs.String(), "Failed to sample memory usage")
}

func TestSystemSamplerRanges(t *testing.T) {
	s := SystemSampler{}
	if v, err := s.MemoryPercent(context.Background()); err == nil {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	if v, err := s.CPUPercent(context.Background()); err == nil {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}
