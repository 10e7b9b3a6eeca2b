package vision

import (
	"context"
	"image"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// Grounder runs the detector over a full interface profile and aggregates
// per-element results into a PositionSet.
type Grounder struct {
	logger   *zap.Logger
	detector *Detector
}

func NewGrounder(logger *zap.Logger, detector *Detector) *Grounder {
	return &Grounder{
		logger:   logger.Named("grounding"),
		detector: detector,
	}
}

// Ground detects every configured element of the profile in the given frame.
// Individual element failures are non-fatal: the element is simply absent
// from the returned set and reported by Validate. The error return is
// reserved for ctx cancellation.
func (g *Grounder) Ground(ctx context.Context, img image.Image, profile *schemas.InterfaceProfile) (schemas.PositionSet, error) {
	// One id per grounding pass so all element logs correlate.
	logger := g.logger.With(
		zap.String("grounding_id", uuid.New().String()),
		zap.String("platform", profile.Name))

	positions := make(schemas.PositionSet, len(profile.Elements))
	for name, cfg := range profile.Elements {
		if err := ctx.Err(); err != nil {
			return positions, err
		}
		el, err := g.detector.Detect(ctx, img, cfg)
		if err != nil {
			logger.Warn("Element detection failed",
				zap.String("element", name),
				zap.Error(err))
			continue
		}
		if el == nil {
			logger.Debug("Element not found",
				zap.String("element", name),
				zap.String("method", string(cfg.Method)))
			continue
		}
		positions[name] = *el
	}

	complete, missing := positions.Validate()
	logger.Info("Grounding finished",
		zap.Int("found", len(positions)),
		zap.Bool("complete", complete),
		zap.Strings("missing", missing))
	return positions, nil
}
