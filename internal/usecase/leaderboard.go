package usecase

import (
	"context"
	"time"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-leaderboard/internal/domain"
	"github.com/naka-gawa/github-leaderboard/internal/gateway"
	"github.com/naka-gawa/github-leaderboard/internal/telemetry"
	"github.com/naka-gawa/github-leaderboard/internal/workerpool"
)

// Options configures one leaderboard run.
type Options struct {
	Org            string
	Window         domain.TimeWindow
	OverallTopN    int
	PerRepoTopN    int
	EnrichTopRepos int
	Parallelism    int
	OrgQueryDelay  time.Duration
	RepoQueryDelay time.Duration
}

// Leaderboard runs the whole pipeline: credential check, commit aggregation and enrichment.
type Leaderboard struct {
	fetcher gateway.Fetcher
	logger  *zap.Logger
	metrics *telemetry.RunMetrics
	// Now and Sleep are injected for testability.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewLeaderboard creates a new Leaderboard instance.
func NewLeaderboard(fetcher gateway.Fetcher, logger *zap.Logger, metrics *telemetry.RunMetrics) *Leaderboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Leaderboard{
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
		Now:     time.Now,
		Sleep:   workerpool.Sleep,
	}
}

// Build produces the enriched leaderboard. A rejected credential or a failed
// repository listing aborts the run; everything else degrades to zeros.
func (l *Leaderboard) Build(ctx context.Context, opts Options) (*domain.Leaderboard, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "usecase.build_leaderboard")
	defer span.End()

	login, err := l.fetcher.ValidateCredentials(ctx)
	if err != nil {
		return nil, err
	}
	l.logger.Info("authenticated", zap.String("login", login))

	agg, err := NewAggregator(l.fetcher, l.logger, l.metrics).Aggregate(ctx, AggregateOptions{
		Org:            opts.Org,
		Window:         opts.Window,
		OverallTopN:    opts.OverallTopN,
		PerRepoTopN:    opts.PerRepoTopN,
		EnrichTopRepos: opts.EnrichTopRepos,
		Parallelism:    opts.Parallelism,
	})
	if err != nil {
		return nil, err
	}

	enricher := NewEnricher(l.fetcher, l.logger, l.metrics, EnricherOptions{
		Org:       opts.Org,
		Window:    opts.Window,
		OrgDelay:  opts.OrgQueryDelay,
		RepoDelay: opts.RepoQueryDelay,
	})
	enricher.Sleep = l.Sleep

	overall, err := enricher.EnrichOrg(ctx, agg.Overall)
	if err != nil {
		return nil, err
	}

	repos := make([]domain.RepoLeaderboard, 0, len(agg.Active))
	for i, result := range agg.Active {
		board := domain.RepoLeaderboard{
			Repo:  result.Repo,
			Total: result.Total,
			Top:   result.Top,
		}
		if i < len(agg.TopRepos) {
			board.Top, err = enricher.EnrichRepo(ctx, result.Repo, result.Top)
			if err != nil {
				return nil, err
			}
			board.Enriched = true
		}
		repos = append(repos, board)
	}

	summary := summarize(agg)
	l.metrics.Contributors(summary.Contributors)

	return &domain.Leaderboard{
		Org:         opts.Org,
		Window:      opts.Window,
		GeneratedAt: l.Now().UTC(),
		Overall:     overall,
		Repos:       repos,
		Summary:     summary,
	}, nil
}

func summarize(agg *Aggregation) domain.Summary {
	summary := domain.Summary{
		ReposScanned: len(agg.Repos),
		ReposActive:  len(agg.Active),
		Contributors: agg.Totals.Len(),
		TotalCommits: agg.Totals.Total(),
	}
	for _, result := range agg.Repos {
		switch result.Outcome {
		case OutcomePending:
			summary.ReposPending++
		case OutcomeFailed:
			summary.ReposFailed++
		}
	}

	counts := stats.LoadRawData(agg.Totals.Counts())
	if median, err := stats.Median(counts); err == nil {
		summary.MedianCommits = median
	}
	if p90, err := stats.Percentile(counts, 90); err == nil {
		summary.P90Commits = p90
	} else if highest, err := stats.Max(counts); err == nil {
		// Percentile needs enough samples to place the 90th; fall back to the maximum.
		summary.P90Commits = highest
	}
	return summary
}
