package alarming

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/gr20-alert/internal/aggregation"
)

const dateLayout = "2006-01-02"

// stateTTL lets Redis drop snapshots of past hiking days.
const stateTTL = 7 * 24 * time.Hour

// MetricState is the stage-level result of one metric as it was sent.
type MetricState struct {
	ThresholdTime  *int     `json:"threshold_time,omitempty"`
	ThresholdValue *float64 `json:"threshold_value,omitempty"`
	MaxTime        *int     `json:"max_time,omitempty"`
	MaxValue       *float64 `json:"max_value,omitempty"`
}

// Snapshot is the last report sent for a report date.
type Snapshot struct {
	ReportID string                                `json:"report_id"`
	Type     aggregation.ReportType                `json:"type"`
	Stage    string                                `json:"stage"`
	Date     string                                `json:"date"`
	SentAt   time.Time                             `json:"sent_at"`
	Metrics  map[aggregation.MetricKey]MetricState `json:"metrics"`
}

// SnapshotOf captures the stage-level values of rc.
func SnapshotOf(rc *aggregation.ReportContext, reportID string, sentAt time.Time) *Snapshot {
	snap := &Snapshot{
		ReportID: reportID,
		Type:     rc.Type,
		Stage:    rc.Stage,
		Date:     rc.Date.Format(dateLayout),
		SentAt:   sentAt,
		Metrics:  make(map[aggregation.MetricKey]MetricState, len(rc.Metrics)),
	}
	for key, m := range rc.Metrics {
		snap.Metrics[key] = MetricState{
			ThresholdTime:  m.ThresholdTime,
			ThresholdValue: m.ThresholdValue,
			MaxTime:        m.MaxTime,
			MaxValue:       m.MaxValue,
		}
	}
	return snap
}

// SnapshotStore keeps the last sent snapshot and the number of dynamic
// updates per report date. Get returns nil without error when nothing was
// stored.
type SnapshotStore interface {
	Get(ctx context.Context, date string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	UpdatesSent(ctx context.Context, date string) (int, error)
	IncrementUpdates(ctx context.Context, date string) (int, error)
}

// StateManager stores snapshots in Redis.
type StateManager struct {
	redis *redis.Client
}

// NewStateManager creates a new state manager
func NewStateManager(redisClient *redis.Client) *StateManager {
	return &StateManager{redis: redisClient}
}

func stateKey(date string) string {
	return fmt.Sprintf("report_state:%s", date)
}

func updatesKey(date string) string {
	return fmt.Sprintf("report_updates:%s", date)
}

// Get retrieves the snapshot for a report date
func (sm *StateManager) Get(ctx context.Context, date string) (*Snapshot, error) {
	data, err := sm.redis.Get(ctx, stateKey(date)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get state from Redis: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &snap, nil
}

// Save stores the snapshot under its report date
func (sm *StateManager) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := sm.redis.Set(ctx, stateKey(snap.Date), data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}
	return nil
}

// UpdatesSent returns how many dynamic updates went out for date
func (sm *StateManager) UpdatesSent(ctx context.Context, date string) (int, error) {
	n, err := sm.redis.Get(ctx, updatesKey(date)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get update counter from Redis: %w", err)
	}
	return n, nil
}

// IncrementUpdates counts one more dynamic update for date
func (sm *StateManager) IncrementUpdates(ctx context.Context, date string) (int, error) {
	key := updatesKey(date)
	pipe := sm.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, stateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment update counter: %w", err)
	}
	return int(incr.Val()), nil
}

// MemoryStore is a SnapshotStore for runs without Redis. State lives as
// long as the process.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]*Snapshot
	updates   map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*Snapshot),
		updates:   make(map[string]int),
	}
}

func (m *MemoryStore) Get(ctx context.Context, date string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots[date], nil
}

func (m *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.Date] = snap
	return nil
}

func (m *MemoryStore) UpdatesSent(ctx context.Context, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates[date], nil
}

func (m *MemoryStore) IncrementUpdates(ctx context.Context, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[date]++
	return m.updates[date], nil
}
