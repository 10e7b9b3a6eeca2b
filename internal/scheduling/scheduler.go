package scheduling

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DanielAIris/liris/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// UsageScheduler is the quota and cooldown authority for all platforms. It
// implements schemas.AvailabilityOracle on top of the profile store's
// per-platform limits: daily prompt quotas with a configurable reset time,
// plus a rate limiter spacing successive uses by the cooldown period.
type UsageScheduler struct {
	logger   *zap.Logger
	profiles schemas.ProfileStore
	now      func() time.Time

	mu       sync.Mutex
	counters map[string]*usageCounter
}

type usageCounter struct {
	Prompts   int       `json:"prompt_count"`
	Tokens    int       `json:"token_count"`
	LastReset time.Time `json:"last_reset"`
	NextReset time.Time `json:"next_reset"`

	limiter *rate.Limiter
}

func NewUsageScheduler(logger *zap.Logger, profiles schemas.ProfileStore) *UsageScheduler {
	return &UsageScheduler{
		logger:   logger.Named("scheduler"),
		profiles: profiles,
		now:      time.Now,
		counters: make(map[string]*usageCounter),
	}
}

// CanUse reports whether the platform may be used now. Reasons cover missing
// profiles, exhausted daily quotas and in-progress cooldowns.
func (s *UsageScheduler) CanUse(platform string) (bool, string) {
	profile, err := s.profiles.GetProfile(context.Background(), platform)
	if err != nil {
		return false, fmt.Sprintf("profile not found for %s", platform)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counterLocked(platform, profile)
	s.maybeResetLocked(c, profile)

	if max := profile.Limits.PromptsPerDay; max > 0 && c.Prompts >= max {
		wait := time.Until(c.NextReset).Round(time.Minute)
		return false, fmt.Sprintf("daily prompt limit reached for %s, resets in %s", platform, wait)
	}
	if c.limiter != nil && c.limiter.Tokens() < 1 {
		return false, fmt.Sprintf("cooldown in progress for %s", platform)
	}
	return true, "OK"
}

// RegisterUsage records one prompt and its token estimate against the
// platform's quota, consuming a cooldown slot.
func (s *UsageScheduler) RegisterUsage(platform string, tokens int) {
	profile, err := s.profiles.GetProfile(context.Background(), platform)
	if err != nil {
		s.logger.Warn("Usage registered for unknown platform", zap.String("platform", platform))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counterLocked(platform, profile)
	c.Prompts++
	c.Tokens += tokens
	if c.limiter != nil {
		c.limiter.Allow()
	}
	s.logger.Debug("Usage registered",
		zap.String("platform", platform),
		zap.Int("prompts", c.Prompts),
		zap.Int("tokens", c.Tokens))
}

// Cooldown returns the configured minimum delay between uses of the platform.
func (s *UsageScheduler) Cooldown(platform string) time.Duration {
	profile, err := s.profiles.GetProfile(context.Background(), platform)
	if err != nil {
		return 0
	}
	return time.Duration(profile.Limits.CooldownPeriod * float64(time.Second))
}

// Availability reports the current state of every known platform.
func (s *UsageScheduler) Availability(ctx context.Context) map[string]schemas.PlatformAvailability {
	out := make(map[string]schemas.PlatformAvailability)
	platforms, err := s.profiles.ListPlatforms(ctx)
	if err != nil {
		s.logger.Error("Failed to list platforms", zap.Error(err))
		return out
	}
	for _, name := range platforms {
		usable, reason := s.CanUse(name)
		profile, err := s.profiles.GetProfile(ctx, name)
		if err != nil {
			continue
		}
		s.mu.Lock()
		c := s.counterLocked(name, profile)
		out[name] = schemas.PlatformAvailability{
			Available:   usable,
			Reason:      reason,
			UsedPrompts: c.Prompts,
			MaxPrompts:  profile.Limits.PromptsPerDay,
			UsedTokens:  c.Tokens,
			NextReset:   c.NextReset,
		}
		s.mu.Unlock()
	}
	return out
}

// SaveStats writes the usage counters as pretty JSON, matching the on-disk
// stats format of the profile files (2-space indent, UTF-8).
func (s *UsageScheduler) SaveStats(path string) error {
	s.mu.Lock()
	payload := struct {
		Timestamp time.Time                `json:"timestamp"`
		Usage     map[string]*usageCounter `json:"usage"`
	}{Timestamp: s.now(), Usage: s.counters}
	data, err := json.MarshalIndent(payload, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal usage stats: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadStats restores usage counters from a previous SaveStats dump. Limiters
// are rebuilt lazily on the next use of each platform.
func (s *UsageScheduler) LoadStats(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var payload struct {
		Usage map[string]*usageCounter `json:"usage"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("unmarshal usage stats: %w", err)
	}
	s.mu.Lock()
	for name, c := range payload.Usage {
		if existing, ok := s.counters[name]; ok {
			c.limiter = existing.limiter
		}
		s.counters[name] = c
	}
	s.mu.Unlock()
	return nil
}

// counterLocked returns the counter for a platform, creating it on first use.
// Callers must hold s.mu.
func (s *UsageScheduler) counterLocked(platform string, profile *schemas.InterfaceProfile) *usageCounter {
	c, ok := s.counters[platform]
	if !ok {
		c = &usageCounter{
			LastReset: s.now(),
			NextReset: nextReset(s.now(), profile.Limits.ResetTime),
		}
		s.counters[platform] = c
	}
	if c.limiter == nil && profile.Limits.CooldownPeriod > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(1/profile.Limits.CooldownPeriod), 1)
	}
	return c
}

// maybeResetLocked zeroes the counters when the daily reset moment has
// passed. Callers must hold s.mu.
func (s *UsageScheduler) maybeResetLocked(c *usageCounter, profile *schemas.InterfaceProfile) {
	if c.NextReset.IsZero() || s.now().Before(c.NextReset) {
		return
	}
	c.Prompts = 0
	c.Tokens = 0
	c.LastReset = s.now()
	c.NextReset = nextReset(s.now(), profile.Limits.ResetTime)
	s.logger.Info("Usage counters reset", zap.Time("next_reset", c.NextReset))
}

// nextReset computes the next occurrence of the profile's HH:MM:SS reset
// time, defaulting to midnight when unset or malformed.
func nextReset(now time.Time, resetTime string) time.Time {
	t, err := time.Parse("15:04:05", resetTime)
	if err != nil {
		t = time.Time{} // midnight
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
