package risk

import (
	"sync"
	"sync/atomic"

	"github.com/DaviRain-Su/zigquant-core/internal/ids"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// Level is the severity of an alert (spec.md §3).
type Level string

const (
	LevelDebug     Level = "debug"
	LevelInfo      Level = "info"
	LevelWarning   Level = "warning"
	LevelCritical  Level = "critical"
	LevelEmergency Level = "emergency"
)

// Alert is one emitted notification (spec.md §3).
type Alert struct {
	ID        string
	Level     Level
	Title     string
	Message   string
	Source    string
	Timestamp quant.Timestamp
}

// Channel is a dispatch target for alerts. Slack/Telegram wire formats are
// out of this core's scope (spec.md §1); LogChannel below is the one
// concrete implementation this repo wires in.
type Channel interface {
	Dispatch(a Alert)
}

// LogChannel dispatches alerts to a structured logger.
type LogChannel struct {
	logger interface {
		Warn(msg string, fields ...interface{})
		Error(msg string, fields ...interface{})
		Info(msg string, fields ...interface{})
	}
}

// NewLogChannel constructs a Channel writing through logger.
func NewLogChannel(logger interface {
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
}) *LogChannel {
	return &LogChannel{logger: logger}
}

// Dispatch implements Channel.
func (c *LogChannel) Dispatch(a Alert) {
	fields := []interface{}{"id", a.ID, "source", a.Source, "title", a.Title}
	switch a.Level {
	case LevelCritical, LevelEmergency:
		c.logger.Error(a.Message, fields...)
	case LevelWarning:
		c.logger.Warn(a.Message, fields...)
	default:
		c.logger.Info(a.Message, fields...)
	}
}

// Rule maps a named metric comparison to the alert it should raise.
type Rule struct {
	Metric     string
	Comparison func(value quant.Decimal, threshold quant.Decimal) bool
	Threshold  quant.Decimal
	Level      Level
	Title      string
}

// Queue is a bounded FIFO alert history with per-level monotonic counters
// and dispatch to configured channels (spec.md §4.6).
type Queue struct {
	mu       sync.Mutex
	capacity int
	history  []Alert
	rules    []Rule
	channels []Channel

	counters map[Level]*atomic.Int64
}

// NewQueue constructs a Queue with the given history capacity.
func NewQueue(capacity int, channels ...Channel) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue{
		capacity: capacity,
		channels: channels,
		counters: make(map[Level]*atomic.Int64),
	}
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarning, LevelCritical, LevelEmergency} {
		q.counters[l] = &atomic.Int64{}
	}
	return q
}

// AddRule registers a threshold rule for Evaluate.
func (q *Queue) AddRule(r Rule) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rules = append(q.rules, r)
}

// Evaluate checks every registered rule whose Metric matches name, raising
// and dispatching an alert for each rule that fires.
func (q *Queue) Evaluate(source, name string, value quant.Decimal) {
	q.mu.Lock()
	rules := make([]Rule, len(q.rules))
	copy(rules, q.rules)
	q.mu.Unlock()

	for _, r := range rules {
		if r.Metric != name {
			continue
		}
		if r.Comparison(value, r.Threshold) {
			q.Emit(source, r.Level, r.Title, "")
		}
	}
}

// Emit enqueues and dispatches a new alert, evicting the oldest entry when
// at capacity.
func (q *Queue) Emit(source string, level Level, title, message string) Alert {
	a := Alert{
		ID: ids.NewAlertID(), Level: level, Title: title, Message: message,
		Source: source, Timestamp: quant.Now(),
	}

	q.mu.Lock()
	q.history = append(q.history, a)
	if len(q.history) > q.capacity {
		q.history = q.history[len(q.history)-q.capacity:]
	}
	q.mu.Unlock()

	q.counters[level].Add(1)
	for _, ch := range q.channels {
		ch.Dispatch(a)
	}
	return a
}

// History returns a defensive copy of the current alert history, most
// recent last.
func (q *Queue) History() []Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Alert, len(q.history))
	copy(out, q.history)
	return out
}

// CountByLevel returns the monotonic counter for level.
func (q *Queue) CountByLevel(level Level) int64 {
	c, ok := q.counters[level]
	if !ok {
		return 0
	}
	return c.Load()
}
