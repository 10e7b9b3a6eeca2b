package scheduling

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// stubProfiles serves a fixed profile map.
type stubProfiles struct {
	profiles map[string]*schemas.InterfaceProfile
}

func (s *stubProfiles) GetProfile(_ context.Context, platform string) (*schemas.InterfaceProfile, error) {
	p, ok := s.profiles[platform]
	if !ok {
		return nil, schemas.NewProfileNotFound(platform)
	}
	return p, nil
}

func (s *stubProfiles) ListPlatforms(_ context.Context) ([]string, error) {
	var names []string
	for name := range s.profiles {
		names = append(names, name)
	}
	return names, nil
}

func (s *stubProfiles) SavePositions(context.Context, string, schemas.PositionSet) error {
	return nil
}

func schedulerFixture(limits schemas.UsageLimits) (*UsageScheduler, *time.Time) {
	profiles := &stubProfiles{profiles: map[string]*schemas.InterfaceProfile{
		"claude": {Name: "claude", Limits: limits},
	}}
	s := NewUsageScheduler(zap.NewNop(), profiles)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestUsageSchedulerUnknownPlatform(t *testing.T) {
	s, _ := schedulerFixture(schemas.UsageLimits{})
	usable, reason := s.CanUse("nope")
	assert.False(t, usable)
	assert.Contains(t, reason, "profile not found")
}

func TestUsageSchedulerDailyQuota(t *testing.T) {
	s, _ := schedulerFixture(schemas.UsageLimits{PromptsPerDay: 2})

	usable, _ := s.CanUse("claude")
	require.True(t, usable)

	s.RegisterUsage("claude", 10)
	usable, _ = s.CanUse("claude")
	assert.True(t, usable, "one prompt left")

	s.RegisterUsage("claude", 10)
	usable, reason := s.CanUse("claude")
	assert.False(t, usable)
	assert.Contains(t, reason, "daily prompt limit reached")
}

func TestUsageSchedulerDailyReset(t *testing.T) {
	s, now := schedulerFixture(schemas.UsageLimits{PromptsPerDay: 1, ResetTime: "14:00:00"})

	s.RegisterUsage("claude", 5)
	usable, _ := s.CanUse("claude")
	require.False(t, usable)

	// Crossing the reset moment restores the quota.
	*now = now.Add(6 * time.Hour) // 15:00
	usable, _ = s.CanUse("claude")
	assert.True(t, usable)
}

func TestUsageSchedulerUnlimitedWhenZero(t *testing.T) {
	s, _ := schedulerFixture(schemas.UsageLimits{})
	for i := 0; i < 50; i++ {
		s.RegisterUsage("claude", 1)
	}
	usable, _ := s.CanUse("claude")
	assert.True(t, usable)
}

func TestUsageSchedulerCooldown(t *testing.T) {
	s, _ := schedulerFixture(schemas.UsageLimits{CooldownPeriod: 3600})

	usable, _ := s.CanUse("claude")
	require.True(t, usable, "a fresh platform has a full burst available")

	s.RegisterUsage("claude", 1)
	usable, reason := s.CanUse("claude")
	assert.False(t, usable)
	assert.Contains(t, reason, "cooldown in progress")

	assert.Equal(t, time.Hour, s.Cooldown("claude"))
	assert.Equal(t, time.Duration(0), s.Cooldown("nope"))
}

func TestUsageSchedulerAvailability(t *testing.T) {
	s, _ := schedulerFixture(schemas.UsageLimits{PromptsPerDay: 5})
	s.RegisterUsage("claude", 12)

	report := s.Availability(context.Background())
	require.Contains(t, report, "claude")
	a := report["claude"]
	assert.True(t, a.Available)
	assert.Equal(t, 1, a.UsedPrompts)
	assert.Equal(t, 5, a.MaxPrompts)
	assert.Equal(t, 12, a.UsedTokens)
	assert.False(t, a.NextReset.IsZero())
}

func TestUsageSchedulerStatsRoundtrip(t *testing.T) {
	s, _ := schedulerFixture(schemas.UsageLimits{PromptsPerDay: 5})
	s.RegisterUsage("claude", 7)
	s.RegisterUsage("claude", 3)

	path := filepath.Join(t.TempDir(), "usage.json")
	require.NoError(t, s.SaveStats(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"prompt_count": 2`)

	restored, _ := schedulerFixture(schemas.UsageLimits{PromptsPerDay: 5})
	require.NoError(t, restored.LoadStats(path))
	report := restored.Availability(context.Background())
	assert.Equal(t, 2, report["claude"].UsedPrompts)
	assert.Equal(t, 10, report["claude"].UsedTokens)
}

func TestNextReset(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("later today", func(t *testing.T) {
		next := nextReset(base, "14:30:00")
		assert.Equal(t, time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC), next)
	})

	t.Run("already passed rolls to tomorrow", func(t *testing.T) {
		next := nextReset(base, "03:00:00")
		assert.Equal(t, time.Date(2026, 3, 11, 3, 0, 0, 0, time.UTC), next)
	})

	t.Run("malformed defaults to midnight tomorrow", func(t *testing.T) {
		next := nextReset(base, "not-a-time")
		assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), next)
	})
}
