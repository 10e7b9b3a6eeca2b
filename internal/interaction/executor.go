// Package interaction turns grounded positions into synthetic input
// sequences. The raw mouse/keyboard primitives and the response-extraction
// mechanism are injected capabilities; this package owns only the
// composition.
package interaction

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// SessionProvider hands out the input synthesizer bound to a platform's live
// browser session, opening one when needed.
type SessionProvider interface {
	Input(ctx context.Context, platform string) (schemas.InputSynthesizer, error)
}

// PromptExecutor implements schemas.InteractionExecutor: click the prompt
// field, type the text, click submit, let the reply render, then hand off to
// the response extractor.
type PromptExecutor struct {
	logger    *zap.Logger
	sessions  SessionProvider
	extractor schemas.ResponseExtractor

	// settleWait is the fixed pause after submission before extraction
	// begins.
	settleWait time.Duration

	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration)
}

func NewPromptExecutor(logger *zap.Logger, sessions SessionProvider, extractor schemas.ResponseExtractor, settleWait time.Duration) (*PromptExecutor, error) {
	if sessions == nil || extractor == nil {
		return nil, &schemas.OrchestrationError{Op: "prompt executor requires a session provider and an extractor"}
	}
	if settleWait <= 0 {
		settleWait = 2 * time.Second
	}
	return &PromptExecutor{
		logger:     logger.With(zap.String("component", "prompt_executor")),
		sessions:   sessions,
		extractor:  extractor,
		settleWait: settleWait,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// SendPrompt performs the full submission sequence against the position
// snapshot. All failures from the synthesis layer surface as
// InteractionError with the step that broke.
func (e *PromptExecutor) SendPrompt(ctx context.Context, platform, prompt string, positions schemas.PositionSet, timeout time.Duration) (*schemas.PromptResult, error) {
	start := time.Now()

	if complete, missing := positions.Validate(); !complete {
		return nil, &schemas.OrchestrationError{
			Op: fmt.Sprintf("platform %s has incomplete positions, missing %v", platform, missing),
		}
	}

	input, err := e.sessions.Input(ctx, platform)
	if err != nil {
		return nil, &schemas.InteractionError{Step: "acquire session", Err: err}
	}

	field := positions[schemas.ElementPromptField]
	submit := positions[schemas.ElementSubmitButton]

	if err := input.Click(ctx, field.CenterX, field.CenterY); err != nil {
		return nil, &schemas.InteractionError{Step: "click prompt field", Err: err}
	}
	e.pause(ctx, 300*time.Millisecond)

	if err := input.TypeText(ctx, prompt); err != nil {
		return nil, &schemas.InteractionError{Step: "type prompt", Err: err}
	}
	e.pause(ctx, 200*time.Millisecond)

	if err := input.Click(ctx, submit.CenterX, submit.CenterY); err != nil {
		return nil, &schemas.InteractionError{Step: "click submit", Err: err}
	}

	e.sleep(ctx, e.settleWait)

	response, err := e.extractor.Extract(ctx, positions, timeout-time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("response extraction: %w", err)
	}

	result := &schemas.PromptResult{
		Response:      response,
		TokenEstimate: estimateTokens(response),
		Duration:      time.Since(start),
	}
	e.logger.Debug("Prompt delivered",
		zap.String("platform", platform),
		zap.Int("response_length", len(response)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// pause sleeps around the base with +-20% jitter so the input cadence does
// not look mechanical.
func (e *PromptExecutor) pause(ctx context.Context, base time.Duration) {
	jitter := 0.8 + 0.4*e.rng.Float64()
	e.sleep(ctx, time.Duration(float64(base)*jitter))
}

// estimateTokens approximates token count at four characters per token.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
