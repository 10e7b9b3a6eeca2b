package profiles

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// Chain composes profile backends in a fixed priority order: reads try each
// backend in turn until one answers, writes go to every backend so the
// flat-file copy stays usable when the database is down.
type Chain struct {
	logger   *zap.Logger
	backends []schemas.ProfileStore
}

func NewChain(logger *zap.Logger, backends ...schemas.ProfileStore) *Chain {
	return &Chain{logger: logger.Named("profile_chain"), backends: backends}
}

func (c *Chain) GetProfile(ctx context.Context, platform string) (*schemas.InterfaceProfile, error) {
	var lastErr error = schemas.NewProfileNotFound(platform)
	for _, b := range c.backends {
		profile, err := b.GetProfile(ctx, platform)
		if err == nil {
			return profile, nil
		}
		if !schemas.IsProfileNotFound(err) {
			c.logger.Warn("Profile backend error, trying next",
				zap.String("platform", platform), zap.Error(err))
		}
		lastErr = err
	}
	return nil, lastErr
}

// ListPlatforms unions every backend's platforms.
func (c *Chain) ListPlatforms(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, b := range c.backends {
		names, err := b.ListPlatforms(ctx)
		if err != nil {
			c.logger.Warn("Profile backend list failed", zap.Error(err))
			continue
		}
		for _, n := range names {
			seen[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// SavePositions writes to all backends; the first error is returned but the
// remaining backends are still attempted.
func (c *Chain) SavePositions(ctx context.Context, platform string, positions schemas.PositionSet) error {
	var firstErr error
	for _, b := range c.backends {
		if err := b.SavePositions(ctx, platform, positions); err != nil {
			c.logger.Error("Profile backend save failed",
				zap.String("platform", platform), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
