package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/naka-gawa/github-leaderboard/internal/domain"
	"github.com/naka-gawa/github-leaderboard/internal/gateway"
	"github.com/naka-gawa/github-leaderboard/internal/telemetry"
	"github.com/naka-gawa/github-leaderboard/internal/workerpool"
)

// EnricherOptions configures an Enricher.
type EnricherOptions struct {
	Org    string
	Window domain.TimeWindow
	// OrgDelay and RepoDelay are waited after every search request, to stay
	// under the search API's secondary rate limits.
	OrgDelay  time.Duration
	RepoDelay time.Duration
}

type metricsKey struct {
	login string
	scope domain.Scope
}

// Enricher attaches issue and pull request counts to ranked entries.
// Requests are issued one at a time, and each (login, scope) pair is fetched at most once.
type Enricher struct {
	fetcher gateway.Fetcher
	logger  *zap.Logger
	metrics *telemetry.RunMetrics
	opts    EnricherOptions
	cache   map[metricsKey]domain.ActivityMetrics
	// Sleep is injected for testability.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewEnricher creates a new Enricher instance.
func NewEnricher(fetcher gateway.Fetcher, logger *zap.Logger, metrics *telemetry.RunMetrics, opts EnricherOptions) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
		cache:   make(map[metricsKey]domain.ActivityMetrics),
		Sleep:   workerpool.Sleep,
	}
}

// EnrichOrg returns copies of entries carrying organization-wide metrics.
func (e *Enricher) EnrichOrg(ctx context.Context, entries []domain.RankedEntry) ([]domain.RankedEntry, error) {
	e.logger.Info("enriching overall leaderboard", zap.Int("logins", len(entries)))
	return e.enrich(ctx, domain.OrgScope(e.opts.Org), entries, e.opts.OrgDelay)
}

// EnrichRepo returns copies of entries carrying metrics scoped to repo.
func (e *Enricher) EnrichRepo(ctx context.Context, repo domain.RepositoryRef, entries []domain.RankedEntry) ([]domain.RankedEntry, error) {
	e.logger.Info("enriching repository leaderboard",
		zap.String("repo", repo.FullName),
		zap.Int("logins", len(entries)),
	)
	return e.enrich(ctx, domain.RepoScope(e.opts.Org, repo.FullName), entries, e.opts.RepoDelay)
}

func (e *Enricher) enrich(ctx context.Context, scope domain.Scope, entries []domain.RankedEntry, delay time.Duration) ([]domain.RankedEntry, error) {
	enriched := make([]domain.RankedEntry, len(entries))
	for i, entry := range entries {
		metrics, err := e.metricsFor(ctx, entry.Login, scope, delay)
		if err != nil {
			return nil, err
		}
		entry.Metrics = &metrics
		enriched[i] = entry
	}
	return enriched, nil
}

func (e *Enricher) metricsFor(ctx context.Context, login string, scope domain.Scope, delay time.Duration) (domain.ActivityMetrics, error) {
	key := metricsKey{login: login, scope: scope}
	if cached, ok := e.cache[key]; ok {
		return cached, nil
	}

	kind := "repo"
	if scope.IsOrg() {
		kind = "org"
	}
	e.metrics.SearchQuery(kind)

	metrics, err := e.fetcher.FetchActivityMetrics(ctx, login, scope, e.opts.Window)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ActivityMetrics{}, ctxErr
		}
		e.logger.Warn("failed to fetch activity metrics, using zeros",
			zap.String("login", login),
			zap.String("scope", scope.String()),
			zap.Error(err),
		)
		e.metrics.EnrichFailure(kind)
		metrics = domain.ActivityMetrics{}
	}
	e.cache[key] = metrics

	if err := e.Sleep(ctx, delay); err != nil {
		return domain.ActivityMetrics{}, err
	}
	return metrics, nil
}
