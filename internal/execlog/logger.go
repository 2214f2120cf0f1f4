package execlog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/pkg/model"
)

// Storage is the pluggable durable sink for audit entries. Implementations
// must tolerate concurrent calls. Failures from this boundary are isolated
// from the caller of Log.
type Storage interface {
	Save(ctx context.Context, entry model.ExecutionLogEntry) error
	Query(ctx context.Context, filter Filter) ([]model.ExecutionLogEntry, error)
	GetByExecutionID(ctx context.Context, executionID string) ([]model.ExecutionLogEntry, error)
}

// Filter selects audit entries. Set fields are AND-combined.
type Filter struct {
	ExecutionID string
	UserAddress string
	Platform    string
	EventType   model.EventType
	OrderID     string
	Limit       int
	Offset      int
}

// Stats summarises the in-memory log.
type Stats struct {
	TotalEntries int                     `json:"total_entries"`
	ByEventType  map[model.EventType]int `json:"by_event_type"`
	ByPlatform   map[string]int          `json:"by_platform"`
}

// Config controls the Logger.
type Config struct {
	MaxEntries        int
	EnableConsole     bool
	ConsoleLogLevel   string // "debug" or "info"; level for non-error mirrors
	EnablePersistence bool
	Storage           Storage
}

// DefaultMaxEntries bounds the in-memory buffer when no ceiling is configured.
const DefaultMaxEntries = 10000

// Logger is a bounded, queryable, append-only store of execution lifecycle
// events. Log never fails the caller: eviction keeps the count capped and
// storage errors are swallowed.
type Logger struct {
	mu      sync.RWMutex
	entries []model.ExecutionLogEntry
	cfg     Config
	console *zap.Logger
}

// New creates a Logger. console may be nil, in which case the console mirror
// is disabled regardless of cfg.EnableConsole.
func New(cfg Config, console *zap.Logger) *Logger {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if console == nil {
		console = zap.NewNop()
	}
	return &Logger{
		cfg:     cfg,
		console: console,
	}
}

// Log assigns an id and timestamp to the entry, appends it, and returns the
// completed record. The oldest entry is evicted once the ceiling is reached,
// so the count is capped but retained entries are always the most recent.
func (l *Logger) Log(entry model.ExecutionLogEntry) model.ExecutionLogEntry {
	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now().UTC()

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.cfg.MaxEntries {
		l.entries = l.entries[len(l.entries)-l.cfg.MaxEntries:]
	}
	l.mu.Unlock()

	if l.cfg.EnableConsole {
		l.mirror(entry)
	}

	if l.cfg.EnablePersistence && l.cfg.Storage != nil {
		// Best-effort, off the hot path. Audit persistence problems must
		// never block trading operations.
		go func(e model.ExecutionLogEntry) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.cfg.Storage.Save(ctx, e); err != nil {
				l.console.Warn("execlog.storage_save_failed",
					zap.String("entry_id", e.ID),
					zap.String("execution_id", e.ExecutionID),
					zap.Error(err))
			}
		}(entry)
	}

	return entry
}

func (l *Logger) mirror(e model.ExecutionLogEntry) {
	fields := []zap.Field{
		zap.String("execution_id", e.ExecutionID),
		zap.String("platform", e.Platform),
		zap.String("user", e.UserAddress),
	}
	if e.OrderID != "" {
		fields = append(fields, zap.String("order_id", e.OrderID))
	}
	if e.Duration > 0 {
		fields = append(fields, zap.Duration("duration", e.Duration))
	}

	if e.Error != "" {
		l.console.Error("execlog."+strings.ToLower(string(e.EventType)),
			append(fields, zap.String("error", e.Error))...)
		return
	}
	if strings.EqualFold(l.cfg.ConsoleLogLevel, "debug") {
		l.console.Debug("execlog."+strings.ToLower(string(e.EventType)), fields...)
		return
	}
	l.console.Info("execlog."+strings.ToLower(string(e.EventType)), fields...)
}

// Query returns entries matching the filter, most recent first. When
// persistence is enabled the call delegates to the storage adapter so the
// caller sees the durable history rather than the bounded window.
func (l *Logger) Query(ctx context.Context, filter Filter) ([]model.ExecutionLogEntry, error) {
	if l.cfg.EnablePersistence && l.cfg.Storage != nil {
		return l.cfg.Storage.Query(ctx, filter)
	}

	l.mu.RLock()
	matched := make([]model.ExecutionLogEntry, 0)
	for _, e := range l.entries {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	return paginate(matched, filter.Limit, filter.Offset), nil
}

// ExecutionLogs returns every entry for one execution in creation (causal)
// order. The result is empty, never nil-error, when the id is unknown.
func (l *Logger) ExecutionLogs(executionID string) []model.ExecutionLogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	logs := make([]model.ExecutionLogEntry, 0)
	for _, e := range l.entries {
		if e.ExecutionID == executionID {
			logs = append(logs, e)
		}
	}
	return logs
}

// Stats returns total entry count plus per-event-type and per-platform counts.
func (l *Logger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Stats{
		TotalEntries: len(l.entries),
		ByEventType:  make(map[model.EventType]int),
		ByPlatform:   make(map[string]int),
	}
	for _, e := range l.entries {
		stats.ByEventType[e.EventType]++
		stats.ByPlatform[e.Platform]++
	}
	return stats
}

// Clear empties the in-memory buffer. External storage is untouched.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Matches reports whether the entry satisfies every set filter field.
func (f Filter) Matches(e model.ExecutionLogEntry) bool {
	if f.ExecutionID != "" && e.ExecutionID != f.ExecutionID {
		return false
	}
	if f.UserAddress != "" && e.UserAddress != f.UserAddress {
		return false
	}
	if f.Platform != "" && e.Platform != f.Platform {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.OrderID != "" && e.OrderID != f.OrderID {
		return false
	}
	return true
}

func paginate(entries []model.ExecutionLogEntry, limit, offset int) []model.ExecutionLogEntry {
	if offset > 0 {
		if offset >= len(entries) {
			return []model.ExecutionLogEntry{}
		}
		entries = entries[offset:]
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}
