package agent

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jglaspey/supplement-cli/internal/model"
)

// Execute runs a stage through its full plan/act/validate lifecycle with
// bounded retry. Semantics:
//
//   - A result passing validation at or above the stage's confidence
//     threshold is returned immediately.
//   - A result failing validation consumes a retry after exponential
//     backoff; when retries are exhausted the last result is returned with
//     a nil error so the caller can inspect Validation and decide.
//   - An Act error is logged and consumes a retry like a failed validation;
//     if every attempt errored, a terminal error naming the attempt count
//     and wrapping the last error is returned.
//
// The loop is explicit and bounded; the attempt counter is part of the
// returned result's validation context via tc.RetryCount.
func Execute[I, O any](ctx context.Context, stage Stage[I, O], input I, tc model.TaskContext) (Result[O], error) {
	cfg := stage.Config().withDefaults()
	log := zap.L().With(
		zap.String("stage", cfg.Name),
		zap.String("job", tc.JobID),
		zap.String("task", tc.TaskID),
	)

	maxRetries := cfg.MaxRetries
	if tc.MaxRetries > 0 {
		maxRetries = tc.MaxRetries
	}
	timeout := cfg.Timeout
	if tc.Timeout > 0 {
		timeout = tc.Timeout
	}

	plan, err := stage.Plan(ctx, input, tc)
	if err != nil {
		log.Warn("agent: plan failed, continuing without plan", zap.Error(err))
	} else {
		log.Debug("agent: planned", zap.Int("subtasks", len(plan.Subtasks)))
	}

	var (
		last      Result[O]
		lastErr   error
		haveValue bool
	)

	attempts := maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		tc.RetryCount = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		res, actErr := stage.Act(attemptCtx, input, tc)
		cancel()

		if actErr != nil {
			lastErr = actErr
			log.Warn("agent: act failed",
				zap.Int("attempt", attempt+1),
				zap.Error(actErr),
			)
		} else {
			res.Validation = stage.Validate(ctx, res, tc)
			last = res
			haveValue = true
			lastErr = nil

			if res.Validation.IsValid && res.Validation.Confidence >= cfg.ConfidenceThreshold {
				log.Info("agent: stage complete",
					zap.Int("attempt", attempt+1),
					zap.Float64("confidence", res.Validation.Confidence),
				)
				return res, nil
			}
			log.Warn("agent: validation below threshold",
				zap.Int("attempt", attempt+1),
				zap.Bool("is_valid", res.Validation.IsValid),
				zap.Float64("confidence", res.Validation.Confidence),
				zap.Float64("threshold", cfg.ConfidenceThreshold),
				zap.Strings("errors", res.Validation.Errors),
			)
		}

		if ctx.Err() != nil {
			break
		}
		if attempt >= attempts-1 {
			break
		}

		delay := backoff(attempt, cfg.BaseDelay, cfg.MaxDelay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			if haveValue {
				return last, nil
			}
			return last, eris.Wrapf(ctx.Err(), "agent: %s canceled after %d attempts", cfg.Name, attempt+1)
		case <-timer.C:
		}
	}

	// Retries exhausted. Never drop data: a below-threshold result is still
	// returned for the caller to judge.
	if haveValue {
		return last, nil
	}
	return last, eris.Wrapf(lastErr, "agent: %s failed after %d attempts", cfg.Name, attempts)
}

// backoff computes min(base * 2^attempt, max).
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
