package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/brlaw-ai/evidence-pipeline/internal/observability/logging"
)

func TestExecuteRetriesRecoverableStoreFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}, logging.Discard())

	attempts := 0
	errTemp := errors.New("connection reset")
	err := exec.Execute(context.Background(), "qdrant.search", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}, logging.Discard())

	attempts := 0
	errPermanent := errors.New("malformed cypher")
	err := exec.Execute(context.Background(), "neo4j.traverse", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterRepeatedFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, logging.Discard())

	errTemp := errors.New("opensearch unavailable")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "opensearch.search", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected failure on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "opensearch.search", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestBreakersAreScopedPerOperation(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	}, logging.Discard())

	errDown := errors.New("model not loaded")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}
	for i := 0; i < 2; i++ {
		_ = exec.Execute(context.Background(), "ollama.generate", func(context.Context) error {
			return errDown
		}, classifier)
	}

	// generate tripping must not block embed.
	err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		return nil
	}, classifier)
	if err != nil {
		t.Fatalf("embed operation affected by generate breaker: %v", err)
	}
}

func TestBackendProfiles(t *testing.T) {
	store := EvidenceStoreConfig()
	model := ModelConfig()

	if model.RetryMaxAttempts >= store.RetryMaxAttempts {
		t.Fatalf("model calls must retry less than store lookups: %d vs %d",
			model.RetryMaxAttempts, store.RetryMaxAttempts)
	}
	if model.BreakerOpenTimeout <= store.BreakerOpenTimeout {
		t.Fatalf("model breaker must stay open longer: %v vs %v",
			model.BreakerOpenTimeout, store.BreakerOpenTimeout)
	}
	if !store.BreakerEnabled || !model.BreakerEnabled {
		t.Fatalf("both profiles must keep the breaker on")
	}

	normalized := Config{}.normalize()
	if normalized.RetryMaxAttempts != DefaultConfig().RetryMaxAttempts {
		t.Fatalf("zero config must normalize to defaults, got %+v", normalized)
	}
}
