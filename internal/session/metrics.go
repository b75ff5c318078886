package session

import (
	"sync"
	"time"

	"github.com/arledge/webrd/internal/protocol"
)

// StreamMetrics tracks real-time performance data for a streaming session.
type StreamMetrics struct {
	mu sync.RWMutex

	FramesCaptured uint64
	FramesFull     uint64
	FramesPartial  uint64
	FramesEmpty    uint64

	InputDispatched uint64
	InputDropped    uint64

	LastCaptureTime time.Duration
	LastEncodeTime  time.Duration
	LastFrameSize   int

	TotalBytesSent uint64
	startTime      time.Time
}

func newStreamMetrics() *StreamMetrics {
	return &StreamMetrics{startTime: time.Now()}
}

func (m *StreamMetrics) RecordCapture(d time.Duration) {
	m.mu.Lock()
	m.FramesCaptured++
	m.LastCaptureTime = d
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordEncode(d time.Duration, size int) {
	m.mu.Lock()
	m.LastEncodeTime = d
	m.LastFrameSize = size
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordFrame(frameType byte, wireSize int) {
	m.mu.Lock()
	switch frameType {
	case protocol.FrameFull:
		m.FramesFull++
	case protocol.FramePartial:
		m.FramesPartial++
	default:
		m.FramesEmpty++
	}
	m.TotalBytesSent += uint64(wireSize)
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordInput(dispatched, dropped int) {
	m.mu.Lock()
	m.InputDispatched += uint64(dispatched)
	m.InputDropped += uint64(dropped)
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of metrics for logging.
type MetricsSnapshot struct {
	FramesCaptured  uint64
	FramesFull      uint64
	FramesPartial   uint64
	FramesEmpty     uint64
	InputDispatched uint64
	InputDropped    uint64
	CaptureMs       float64
	EncodeMs        float64
	LastFrameSize   int
	BandwidthKBps   float64
	Uptime          time.Duration
}

func (m *StreamMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	bw := float64(0)
	if uptime.Seconds() > 0 {
		bw = float64(m.TotalBytesSent) / uptime.Seconds() / 1024.0
	}

	return MetricsSnapshot{
		FramesCaptured:  m.FramesCaptured,
		FramesFull:      m.FramesFull,
		FramesPartial:   m.FramesPartial,
		FramesEmpty:     m.FramesEmpty,
		InputDispatched: m.InputDispatched,
		InputDropped:    m.InputDropped,
		CaptureMs:       float64(m.LastCaptureTime.Microseconds()) / 1000.0,
		EncodeMs:        float64(m.LastEncodeTime.Microseconds()) / 1000.0,
		LastFrameSize:   m.LastFrameSize,
		BandwidthKBps:   bw,
		Uptime:          uptime,
	}
}
