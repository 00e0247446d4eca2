// Package dashboard reports the prediction backend's self-described state.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/xuanji-ai/xuanji-web/internal/backend"
	"github.com/xuanji-ai/xuanji-web/internal/platform/cache"
)

const snapshotCacheKey = "dashboard:snapshot"

// StatusSource is the read-only side of the backend client.
type StatusSource interface {
	Status(ctx context.Context) (backend.SystemStatus, error)
	Ping(ctx context.Context) error
}

// HealthRecorder is told whether the backend answered its health check.
type HealthRecorder interface {
	SetBackendUp(up bool)
}

type statKind int

const (
	kindCount statKind = iota
	kindPercent
)

type statDef struct {
	key      string
	labelKey string
	kind     statKind
	fallback string
}

// Stats in display order. Fallbacks are shown while the backend has no
// state file to report.
var statDefs = []statDef{
	{key: "cumulative_learning_cycles", labelKey: "stat.learning_cycles", kind: kindCount, fallback: "1927"},
	{key: "knowledge_growth", labelKey: "stat.knowledge_growth", kind: kindCount, fallback: "1927"},
	{key: "optimize_progress", labelKey: "stat.optimize_progress", kind: kindCount, fallback: "1931"},
	{key: "last_accuracy", labelKey: "stat.accuracy", kind: kindPercent, fallback: "91.5%"},
	{key: "health_score", labelKey: "stat.health_score", kind: kindCount, fallback: "85"},
	{key: "stability", labelKey: "stat.stability", kind: kindPercent, fallback: "99.9%"},
}

// Stat is one statistic tile.
type Stat struct {
	Key      string `json:"key"`
	LabelKey string `json:"label_key"`
	Value    string `json:"value"`
	Fallback bool   `json:"fallback"`
}

// Snapshot is the dashboard header at one point in time.
type Snapshot struct {
	Online    bool      `json:"online"`
	Degraded  bool      `json:"degraded"`
	Status    string    `json:"status,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Requests  int64     `json:"requests"`
	Stats     []Stat    `json:"stats"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Service builds snapshots, sharing one backend round trip between
// concurrent viewers and caching the result briefly.
type Service struct {
	source StatusSource
	cache  *cache.JSONCache
	health HealthRecorder
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService constructs the dashboard service. cache and health may be nil.
func NewService(source StatusSource, jsonCache *cache.JSONCache, health HealthRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: jsonCache, health: health, logger: logger, now: time.Now}
}

// Snapshot returns the current snapshot. It never fails because of the
// backend: unreachable or incomplete reports degrade to fallback values.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	ch := s.group.DoChan(snapshotCacheKey, func() (any, error) {
		var snap Snapshot
		err := s.cache.FetchJSON(context.WithoutCancel(ctx), snapshotCacheKey, &snap, func(ctx context.Context) (any, error) {
			return s.collect(ctx), nil
		})
		if err != nil {
			s.logger.Warn("dashboard cache unavailable", slog.Any("error", err))
			return s.collect(context.WithoutCancel(ctx)), nil
		}
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

// Refresh drops the cached snapshot, e.g. after an optimisation run.
func (s *Service) Refresh(ctx context.Context) error {
	return s.cache.Invalidate(ctx, snapshotCacheKey)
}

func (s *Service) collect(ctx context.Context) Snapshot {
	var (
		status    backend.SystemStatus
		statusErr error
		pingErr   error
	)
	var g errgroup.Group
	g.Go(func() error {
		status, statusErr = s.source.Status(ctx)
		return nil
	})
	g.Go(func() error {
		pingErr = s.source.Ping(ctx)
		return nil
	})
	_ = g.Wait()

	if statusErr != nil {
		s.logger.Warn("backend status unavailable", slog.Any("error", statusErr))
	}
	if pingErr != nil {
		s.logger.Warn("backend health check failed", slog.Any("error", pingErr))
	}
	online := pingErr == nil
	if s.health != nil {
		s.health.SetBackendUp(online)
	}

	snap := Snapshot{
		Online:    online,
		Status:    status.Status,
		Uptime:    status.Uptime,
		Requests:  status.Requests,
		FetchedAt: s.now(),
	}
	for _, def := range statDefs {
		stat := Stat{Key: def.key, LabelKey: def.labelKey}
		if value, ok := formatStat(def.kind, status.SystemState[def.key]); ok {
			stat.Value = value
		} else {
			stat.Value = def.fallback
			stat.Fallback = true
			snap.Degraded = true
		}
		snap.Stats = append(snap.Stats, stat)
	}
	return snap
}

// formatStat renders a system_state value. Percentages reported as a
// ratio in [0,1] are scaled to percent.
func formatStat(kind statKind, raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		if kind == kindPercent {
			if v <= 1 {
				v *= 100
			}
			return strconv.FormatFloat(v, 'f', 1, 64) + "%", true
		}
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', 2, 64), true
	case bool:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
