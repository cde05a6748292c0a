package config

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"wabridge/internal/store"
)

// Bounds for the manual-takeover pause duration.
const (
	MinPauseHours = 1
	MaxPauseHours = 72
)

// Runtime resolves configuration values at read time, preferring the
// settings table over the environment fallbacks. Lookups are cached briefly
// so the inbound message path does not hit the database per message.
type Runtime struct {
	cfg      *Config
	settings *store.Settings
	cache    *cache.Cache
}

func NewRuntime(cfg *Config, settings *store.Settings) *Runtime {
	return &Runtime{
		cfg:      cfg,
		settings: settings,
		cache:    cache.New(5*time.Second, time.Minute),
	}
}

// Invalidate drops cached values, forcing fresh reads after a settings update.
func (r *Runtime) Invalidate() {
	r.cache.Flush()
}

func (r *Runtime) value(key, fallback string) string {
	if cached, found := r.cache.Get(key); found {
		return cached.(string)
	}
	v, err := r.settings.Get(key)
	if err != nil || v == "" {
		v = fallback
	}
	r.cache.Set(key, v, cache.DefaultExpiration)
	return v
}

func (r *Runtime) boolValue(key string, fallback bool) bool {
	v := r.value(key, strconv.FormatBool(fallback))
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func (r *Runtime) InstanceID() string { return r.cfg.InstanceID }

func (r *Runtime) WebhookURL() string {
	return r.value(store.SettingWebhookURL, r.cfg.WebhookURL)
}

func (r *Runtime) WebhookToken() string {
	return r.value(store.SettingWebhookToken, r.cfg.WebhookToken)
}

func (r *Runtime) APIToken() string {
	return r.value(store.SettingAPIToken, r.cfg.APIToken)
}

func (r *Runtime) WebhookEnabled() bool {
	return r.boolValue(store.SettingWebhookEnabled, r.cfg.WebhookEnabled)
}

func (r *Runtime) AutoReplyEnabled() bool {
	return r.boolValue(store.SettingAutoReplyEnabled, r.cfg.AutoReplyEnabled)
}

func (r *Runtime) AutoReplyMessage() string {
	return r.value(store.SettingAutoReplyMessage, r.cfg.AutoReplyMessage)
}

// PauseDuration returns the manual-takeover pause window, clamped to 1-72h.
func (r *Runtime) PauseDuration() time.Duration {
	hours := r.cfg.PauseDurationHours
	if v := r.value(store.SettingPauseDuration, ""); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			hours = parsed
		}
	}
	if hours < MinPauseHours {
		hours = MinPauseHours
	}
	if hours > MaxPauseHours {
		hours = MaxPauseHours
	}
	return time.Duration(hours) * time.Hour
}
