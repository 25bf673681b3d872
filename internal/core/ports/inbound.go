package ports

import (
	"context"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
)

// PassService runs one full evidence pass: theme activation, dual retrieval,
// generation, verification and the bounded rethink loop.
type PassService interface {
	RunPass(ctx context.Context, req domain.PassRequest) (*domain.PassResult, error)
}

// PassQueue receives pass requests from the external orchestrator.
type PassQueue interface {
	SubscribePassRequests(ctx context.Context, handler func(context.Context, domain.PassRequest) error) error
}
