package pool

import "time"

// Stats is a snapshot of one pool.
type Stats struct {
	Principal string `json:"principal"`
	MinSize   int    `json:"min_size"`
	MaxSize   int    `json:"max_size"`
	Idle      int    `json:"idle"`
	InUse     int    `json:"in_use"`
	Pending   int    `json:"pending"`
	Waiting   int    `json:"waiting"`

	// WaitCount counts checkouts that had to wait for a release.
	WaitCount uint64 `json:"wait_count"`
	Created   uint64 `json:"created"`
	Closed    uint64 `json:"closed"`

	StatisticsEnabled bool            `json:"statistics_enabled"`
	AvgCheckout       time.Duration   `json:"avg_checkout,omitempty"`
	History           []time.Duration `json:"history,omitempty"`
}

// Statistics returns a snapshot. Timing fields are filled only while
// statistics are enabled.
func (p *Pool) Statistics() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Principal:         p.principal,
		MinSize:           p.cfg.MinSize,
		MaxSize:           p.cfg.MaxSize,
		Idle:              len(p.idle),
		InUse:             p.inUse,
		Pending:           p.pending,
		Waiting:           p.waiting,
		WaitCount:         p.waitCount,
		Created:           p.created,
		Closed:            p.destroyed,
		StatisticsEnabled: p.statsEnabled,
	}
	if !p.statsEnabled {
		return s
	}

	s.History = p.historyLocked()
	if len(s.History) > 0 {
		var sum time.Duration
		for _, d := range s.History {
			sum += d
		}
		s.AvgCheckout = sum / time.Duration(len(s.History))
	}
	return s
}

// SetStatisticsEnabled toggles checkout timing. Disabling drops the history.
func (p *Pool) SetStatisticsEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.statsEnabled == enabled {
		return
	}
	p.statsEnabled = enabled
	p.history, p.histNext, p.histFull = nil, 0, false
}

func (p *Pool) recordCheckout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.statsEnabled || p.cfg.HistorySize == 0 {
		return
	}
	if p.history == nil {
		p.history = make([]time.Duration, p.cfg.HistorySize)
	}
	p.history[p.histNext] = d
	p.histNext = (p.histNext + 1) % len(p.history)
	if p.histNext == 0 {
		p.histFull = true
	}
}

// historyLocked returns recorded durations oldest first.
func (p *Pool) historyLocked() []time.Duration {
	if p.history == nil {
		return nil
	}
	if !p.histFull {
		return append([]time.Duration(nil), p.history[:p.histNext]...)
	}
	out := make([]time.Duration, 0, len(p.history))
	out = append(out, p.history[p.histNext:]...)
	return append(out, p.history[:p.histNext]...)
}
