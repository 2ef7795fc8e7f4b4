package service

import (
	"context"
	"time"

	"commerce-core/internal/config"
	"commerce-core/internal/model"
	"commerce-core/internal/repository"

	"github.com/labstack/gommon/log"
)

// RetryScheduler polls the FailedOperation ledger and re-executes due
// operations through the same handlers the synchronous path uses.
type RetryScheduler struct {
	repo     repository.FailedOperationRepository
	handlers map[string]SideEffectHandler
	interval time.Duration
	batch    int
}

func NewRetryScheduler(repo repository.FailedOperationRepository, cfg *config.Retry, handlers ...SideEffectHandler) *RetryScheduler {
	byType := make(map[string]SideEffectHandler, len(handlers))
	for _, h := range handlers {
		byType[h.Type()] = h
	}
	return &RetryScheduler{
		repo:     repo,
		handlers: byType,
		interval: cfg.PollInterval,
		batch:    cfg.BatchSize,
	}
}

func (s *RetryScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one polling pass. Exported so operators (and tests) can trigger
// a pass without waiting for the ticker.
func (s *RetryScheduler) Sweep(ctx context.Context) {
	ops, err := s.repo.Due(ctx, time.Now(), s.batch)
	if err != nil {
		log.Errorf("retry poll: %v", err)
		return
	}

	for _, op := range ops {
		if ctx.Err() != nil {
			return
		}
		runOperation(ctx, s.repo, s.handlers, op)
	}
}

// runOperation claims one ledger operation, executes it and records the
// outcome. The claim is guarded on the PENDING status, so the scheduler and
// the post-commit fulfillment path never run the same operation twice.
func runOperation(ctx context.Context, repo repository.FailedOperationRepository, handlers map[string]SideEffectHandler, op *model.FailedOperation) {
	claimed, err := repo.ClaimForRetry(ctx, op.ID)
	if err != nil {
		log.Errorf("claim operation %s: %v", op.ID, err)
		return
	}
	if !claimed {
		// another runner got there first
		return
	}

	op.Attempts++

	handler := handlers[op.Type]
	if handler == nil {
		op.Status = model.FailedOpStatusFailed
		op.LastError = "no handler registered for " + op.Type
		if err := repo.Reschedule(ctx, op); err != nil {
			log.Errorf("mark operation %s failed: %v", op.ID, err)
		}
		return
	}

	execErr := handler.Execute(ctx, []byte(op.Payload))
	if execErr == nil {
		if err := repo.MarkSucceeded(ctx, op.ID); err != nil {
			log.Errorf("mark operation %s succeeded: %v", op.ID, err)
		}
		return
	}

	op.LastError = execErr.Error()
	if op.Attempts >= op.MaxAttempts {
		// terminal; operational alerting picks this up
		op.Status = model.FailedOpStatusFailed
		log.Errorf("operation %s (%s) permanently failed after %d attempts: %v",
			op.ID, op.Type, op.Attempts, execErr)
	} else {
		op.Status = model.FailedOpStatusPending
		op.NextRetryAt = time.Now().Add(backoffDelay(op.Attempts))
		log.Warnf("operation %s (%s) attempt %d failed, retrying at %s: %v",
			op.ID, op.Type, op.Attempts, op.NextRetryAt.Format(time.RFC3339), execErr)
	}

	if err := repo.Reschedule(ctx, op); err != nil {
		log.Errorf("reschedule operation %s: %v", op.ID, err)
	}
}
