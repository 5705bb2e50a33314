package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/afroash/station-monitor/internal/models"
)

// SampleBuffer is a bounded FIFO of samples waiting for the uplink
type SampleBuffer struct {
	samples    []*models.Sample
	capacity   int
	dropOldest bool
	mutex      sync.RWMutex
	stats      BufferStats
}

// BufferStats tracks buffer usage statistics
type BufferStats struct {
	TotalPushed   int64     `json:"total_pushed"`
	TotalDropped  int64     `json:"total_dropped"`
	TotalRequeued int64     `json:"total_requeued"`
	HighWaterMark int       `json:"high_water_mark"`
	LastPushTime  time.Time `json:"last_push_time"`
	LastDropTime  time.Time `json:"last_drop_time"`
}

// NewSampleBuffer creates a buffer holding at most capacity samples.
// When full, dropOldest discards the oldest sample to make room;
// otherwise the incoming sample is discarded.
func NewSampleBuffer(capacity int, dropOldest bool) *SampleBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SampleBuffer{
		samples:    make([]*models.Sample, 0, capacity),
		capacity:   capacity,
		dropOldest: dropOldest,
	}
}

// Push adds a sample to the buffer
// Returns false if the sample itself was dropped
func (sb *SampleBuffer) Push(sample *models.Sample) bool {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	now := time.Now()
	if len(sb.samples) >= sb.capacity {
		sb.stats.TotalDropped++
		sb.stats.LastDropTime = now
		if !sb.dropOldest {
			return false
		}
		sb.samples = sb.samples[1:]
	}
	sb.samples = append(sb.samples, sample)
	sb.stats.TotalPushed++
	sb.stats.LastPushTime = now

	if len(sb.samples) > sb.stats.HighWaterMark {
		sb.stats.HighWaterMark = len(sb.samples)
	}
	return true
}

// PopBatch removes and returns up to n samples, oldest first
func (sb *SampleBuffer) PopBatch(n int) []*models.Sample {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	count := min(n, len(sb.samples))
	if count <= 0 {
		return nil
	}
	result := make([]*models.Sample, count)
	copy(result, sb.samples[:count])
	sb.samples = sb.samples[count:]
	return result
}

// Requeue puts samples that failed to send back at the front, keeping
// their order. Samples that no longer fit are dropped, newest of the
// requeued batch first.
func (sb *SampleBuffer) Requeue(samples []*models.Sample) {
	if len(samples) == 0 {
		return
	}
	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	room := sb.capacity - len(sb.samples)
	if room <= 0 {
		sb.stats.TotalDropped += int64(len(samples))
		sb.stats.LastDropTime = time.Now()
		return
	}
	if len(samples) > room {
		sb.stats.TotalDropped += int64(len(samples) - room)
		sb.stats.LastDropTime = time.Now()
		samples = samples[:room]
	}

	merged := make([]*models.Sample, 0, sb.capacity)
	merged = append(merged, samples...)
	merged = append(merged, sb.samples...)
	sb.samples = merged
	sb.stats.TotalRequeued += int64(len(samples))
}

// Peek returns up to n samples without removing them
func (sb *SampleBuffer) Peek(n int) []*models.Sample {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()

	count := min(n, len(sb.samples))
	if count <= 0 {
		return nil
	}
	result := make([]*models.Sample, count)
	copy(result, sb.samples[:count])
	return result
}

// Size returns the current number of samples in the buffer
func (sb *SampleBuffer) Size() int {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return len(sb.samples)
}

// IsFull returns true if buffer is at capacity
func (sb *SampleBuffer) IsFull() bool {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return len(sb.samples) >= sb.capacity
}

// IsEmpty returns true if buffer has no samples
func (sb *SampleBuffer) IsEmpty() bool {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return len(sb.samples) == 0
}

// Clear removes all samples and resets the counters
func (sb *SampleBuffer) Clear() {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()
	sb.samples = make([]*models.Sample, 0, sb.capacity)
	sb.stats = BufferStats{}
}

// Capacity returns the maximum capacity of the buffer
func (sb *SampleBuffer) Capacity() int {
	return sb.capacity
}

// Stats returns a copy of current buffer statistics
func (sb *SampleBuffer) Stats() BufferStats {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return sb.stats
}

// String returns a human-readable representation of buffer state
func (sb *SampleBuffer) String() string {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()

	mode := "drop-newest"
	if sb.dropOldest {
		mode = "drop-oldest"
	}
	return fmt.Sprintf("Buffer[%d/%d, dropped: %d, mode: %s]",
		len(sb.samples),
		sb.capacity,
		sb.stats.TotalDropped,
		mode,
	)
}
