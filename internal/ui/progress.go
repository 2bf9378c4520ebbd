package ui

import (
	"sync"
	"time"
)

// etaSmoothingFactor weights a new ETA estimate against the previous one.
const etaSmoothingFactor = 0.3

// speedInterval is the minimum time between speed samples.
const speedInterval = 500 * time.Millisecond

// ProgressTracker derives speed and ETA from successive progress events.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	index      string
	stage      Stage
	current    int
	total      int
	stageStart time.Time

	lastETA       time.Duration
	lastCurrent   int
	lastSpeedCalc time.Time
	currentSpeed  float64
	avgSpeed      float64
	speedSamples  int
}

// ProgressStats is a snapshot of a tracker.
type ProgressStats struct {
	Index    string
	Stage    Stage
	Current  int
	Total    int
	Progress float64
	ETA      time.Duration
	Speed    float64
	AvgSpeed float64
}

// NewProgressTracker creates a tracker.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stageStart: now, lastSpeedCalc: now}
}

// Observe records an event. A new index or stage resets speed and ETA.
func (p *ProgressTracker) Observe(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if event.Index != p.index || event.Stage != p.stage {
		p.index = event.Index
		p.stage = event.Stage
		p.stageStart = now
		p.lastETA = 0
		p.lastCurrent = event.Current
		p.lastSpeedCalc = now
		p.currentSpeed = 0
		p.avgSpeed = 0
		p.speedSamples = 0
	}
	p.current = event.Current
	p.total = event.Total

	elapsed := now.Sub(p.lastSpeedCalc)
	if elapsed < speedInterval {
		return
	}
	if delta := event.Current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.currentSpeed = speed
		p.speedSamples++
		if p.speedSamples == 1 {
			p.avgSpeed = speed
		} else {
			p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
		}
	}
	p.lastCurrent = event.Current
	p.lastSpeedCalc = now
}

// Stats returns the current snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Index:    p.index,
		Stage:    p.stage,
		Current:  p.current,
		Total:    p.total,
		Progress: fraction(p.current, p.total),
		ETA:      p.calculateETA(),
		Speed:    p.currentSpeed,
		AvgSpeed: p.avgSpeed,
	}
}

// calculateETA must be called with the lock held.
func (p *ProgressTracker) calculateETA() time.Duration {
	progress := fraction(p.current, p.total)
	if progress <= 0 || progress >= 1 {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}

func fraction(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return min(float64(current)/float64(total), 1)
}
