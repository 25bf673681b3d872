package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
	"github.com/brlaw-ai/evidence-pipeline/internal/core/ports"
	"github.com/brlaw-ai/evidence-pipeline/internal/observability/metrics"
)

const themeMatchLimit = 5

// ThemeActivator resolves macro themes into graph theme nodes before
// fine-grained retrieval. It is an optional enrichment: it degrades to
// placeholder nodes instead of failing the pass.
type ThemeActivator struct {
	graph   ports.GraphStore
	metrics *metrics.PipelineMetrics
	logger  *slog.Logger
}

func NewThemeActivator(graph ports.GraphStore, m *metrics.PipelineMetrics, logger *slog.Logger) *ThemeActivator {
	return &ThemeActivator{graph: graph, metrics: m, logger: logger}
}

func (a *ThemeActivator) Activate(ctx context.Context, in domain.ThemeInput) domain.ThemeResult {
	if !in.Enabled || len(in.Themes) == 0 {
		// No-op fast path: previous node list passes through untouched.
		a.metrics.ObserveStage(metrics.StageThemes, 0)
		return domain.ThemeResult{Nodes: in.PreviousNodes}
	}

	start := time.Now()
	nodes := make([]domain.ThemeNode, 0, len(in.Themes)*themeMatchLimit)
	for _, theme := range in.Themes {
		matched, err := a.matchTheme(ctx, in.TenantID, theme)
		if err != nil {
			a.logger.Warn("theme activation degraded to placeholder",
				"theme", theme, "tenant_id", in.TenantID, "error", err)
			nodes = append(nodes, domain.ThemeNode{
				Name:         theme,
				RelatedCount: 0,
				Placeholder:  true,
			})
			continue
		}
		nodes = append(nodes, matched...)
	}

	elapsed := time.Since(start)
	a.metrics.ObserveStage(metrics.StageThemes, elapsed)
	return domain.ThemeResult{Nodes: nodes, Elapsed: elapsed}
}

func (a *ThemeActivator) matchTheme(ctx context.Context, tenantID, theme string) ([]domain.ThemeNode, error) {
	if a.graph == nil {
		return nil, domain.ErrStoreUnavailable
	}
	return a.graph.MatchThemeNodes(ctx, tenantID, theme, themeMatchLimit)
}
