package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

const (
	keyMonitoredViews = "monitored_views"
	keyPreferences    = "preferences"
)

// SettingsRepository persists operator settings. Monitored views are
// session scoped; preferences are durable.
type SettingsRepository interface {
	MonitoredViews(ctx context.Context) ([]int64, error)
	SaveMonitoredViews(ctx context.Context, ids []int64) error
	ClearMonitoredViews(ctx context.Context) error
	Preferences(ctx context.Context) (domain.Preferences, error)
	SavePreferences(ctx context.Context, prefs domain.Preferences) error
}

type redisSettingsRepository struct {
	client     *redis.Client
	prefix     string
	sessionTTL time.Duration
}

// NewRedisSettingsRepository stores settings under prefix (e.g. "rumi:settings:").
func NewRedisSettingsRepository(client *redis.Client, prefix string, sessionTTL time.Duration) SettingsRepository {
	return &redisSettingsRepository{client: client, prefix: prefix, sessionTTL: sessionTTL}
}

func (r *redisSettingsRepository) MonitoredViews(ctx context.Context) ([]int64, error) {
	raw, err := r.client.Get(ctx, r.prefix+keyMonitoredViews).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *redisSettingsRepository) SaveMonitoredViews(ctx context.Context, ids []int64) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+keyMonitoredViews, raw, r.sessionTTL).Err()
}

func (r *redisSettingsRepository) ClearMonitoredViews(ctx context.Context) error {
	return r.client.Del(ctx, r.prefix+keyMonitoredViews).Err()
}

func (r *redisSettingsRepository) Preferences(ctx context.Context) (domain.Preferences, error) {
	prefs := defaultPreferences()
	fields, err := r.client.HGetAll(ctx, r.prefix+keyPreferences).Result()
	if err != nil {
		return prefs, err
	}
	if v := fields["field_visibility"]; v != "" {
		prefs.FieldVisibility = domain.FieldVisibility(v)
	}
	if v, err := strconv.ParseBool(fields["views_hidden"]); err == nil {
		prefs.ViewsHidden = v
	}
	return prefs, nil
}

func (r *redisSettingsRepository) SavePreferences(ctx context.Context, prefs domain.Preferences) error {
	return r.client.HSet(ctx, r.prefix+keyPreferences,
		"field_visibility", string(prefs.FieldVisibility),
		"views_hidden", strconv.FormatBool(prefs.ViewsHidden),
	).Err()
}

type memorySettingsRepository struct {
	mu    sync.Mutex
	views []int64
	prefs domain.Preferences
}

// NewMemorySettingsRepository is used when Redis is not reachable.
func NewMemorySettingsRepository() SettingsRepository {
	return &memorySettingsRepository{prefs: defaultPreferences()}
}

func (r *memorySettingsRepository) MonitoredViews(context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.views...), nil
}

func (r *memorySettingsRepository) SaveMonitoredViews(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append([]int64(nil), ids...)
	return nil
}

func (r *memorySettingsRepository) ClearMonitoredViews(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = nil
	return nil
}

func (r *memorySettingsRepository) Preferences(context.Context) (domain.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prefs, nil
}

func (r *memorySettingsRepository) SavePreferences(_ context.Context, prefs domain.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs = prefs
	return nil
}

func defaultPreferences() domain.Preferences {
	return domain.Preferences{FieldVisibility: domain.FieldVisibilityAll}
}
