// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-leaderboard/internal/domain"
	"github.com/naka-gawa/github-leaderboard/internal/gateway"
	"github.com/naka-gawa/github-leaderboard/internal/telemetry"
	"github.com/naka-gawa/github-leaderboard/internal/workerpool"
)

// RepoOutcome describes how a repository's statistics fetch ended.
type RepoOutcome string

const (
	OutcomeOK      RepoOutcome = "ok"
	OutcomePending RepoOutcome = "pending"
	OutcomeFailed  RepoOutcome = "failed"
)

// RepoResult is the commit view of one repository. PerLogin is never nil and
// is not modified once the result is returned.
type RepoResult struct {
	Repo     domain.RepositoryRef
	PerLogin *domain.CommitTally
	Total    int
	Outcome  RepoOutcome
	Top      []domain.RankedEntry
}

// AggregateOptions configures one aggregation pass.
type AggregateOptions struct {
	Org            string
	Window         domain.TimeWindow
	OverallTopN    int
	PerRepoTopN    int
	EnrichTopRepos int
	Parallelism    int
}

// Aggregation is the result of the commit aggregation pass.
type Aggregation struct {
	// Repos is in listing order.
	Repos []RepoResult
	// Totals sums every repository's PerLogin; logins keep the order in which
	// they were first seen while walking Repos.
	Totals  *domain.CommitTally
	Overall []domain.RankedEntry
	// Active holds the repositories with commits, by Total descending.
	Active []RepoResult
	// TopRepos is the prefix of Active selected for enrichment.
	TopRepos []RepoResult
}

// Aggregator is the use case for aggregating commit activity across an organization.
// It orchestrates the fetching and combining of data.
type Aggregator struct {
	fetcher gateway.Fetcher
	logger  *zap.Logger
	metrics *telemetry.RunMetrics
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(fetcher gateway.Fetcher, logger *zap.Logger, metrics *telemetry.RunMetrics) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
	}
}

// Aggregate lists the organization's repositories, fetches every repository's
// contributor statistics with bounded parallelism and folds them into global totals.
// Per-repository failures count as zero; only listing failures and context
// cancellation are returned.
func (a *Aggregator) Aggregate(ctx context.Context, opts AggregateOptions) (*Aggregation, error) {
	a.logger.Info("listing repositories", zap.String("org", opts.Org))
	repos, err := a.fetcher.ListOrgRepositories(ctx, opts.Org)
	if err != nil {
		return nil, err
	}
	a.metrics.ReposListed(len(repos))
	a.logger.Info("repositories listed", zap.Int("count", len(repos)))

	results, err := workerpool.Map(ctx, repos, opts.Parallelism, func(ctx context.Context, _ int, repo domain.RepositoryRef) (RepoResult, error) {
		return a.collectRepo(ctx, opts.Org, repo, opts.Window)
	})
	if err != nil {
		return nil, err
	}

	// Every worker has settled; fold the immutable per-repository tallies one at a time.
	totals := domain.NewCommitTally()
	for i := range results {
		totals.Merge(results[i].PerLogin)
		results[i].Top = results[i].PerLogin.TopN(opts.PerRepoTopN)
	}

	active := make([]RepoResult, 0, len(results))
	for _, result := range results {
		if result.Total > 0 {
			active = append(active, result)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Total > active[j].Total
	})

	topRepos := active
	if opts.EnrichTopRepos < len(topRepos) {
		topRepos = topRepos[:max(opts.EnrichTopRepos, 0)]
	}

	a.logger.Info("aggregation complete",
		zap.Int("repositories", len(results)),
		zap.Int("active_repositories", len(active)),
		zap.Int("contributors", totals.Len()),
		zap.Int("commits", totals.Total()),
	)

	return &Aggregation{
		Repos:    results,
		Totals:   totals,
		Overall:  totals.TopN(opts.OverallTopN),
		Active:   active,
		TopRepos: topRepos,
	}, nil
}

func (a *Aggregator) collectRepo(ctx context.Context, org string, repo domain.RepositoryRef, window domain.TimeWindow) (RepoResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "usecase.collect_repo",
		trace.WithAttributes(attribute.String("github.repo", repo.FullName)))
	defer span.End()

	result := RepoResult{
		Repo:     repo,
		PerLogin: domain.NewCommitTally(),
		Outcome:  OutcomeOK,
	}

	owner, name := splitFullName(org, repo)
	activity, ok, err := a.fetcher.FetchContributorActivity(ctx, owner, name)
	switch {
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RepoResult{}, ctxErr
		}
		a.logger.Warn("failed to fetch contributor stats, counting repository as zero",
			zap.String("repo", repo.FullName),
			zap.Error(err),
		)
		result.Outcome = OutcomeFailed
	case !ok:
		a.logger.Warn("contributor stats not computed yet, counting repository as zero",
			zap.String("repo", repo.FullName),
		)
		result.Outcome = OutcomePending
	default:
		result.PerLogin, result.Total = SummarizeContributors(activity, window.StartEpochSeconds())
		a.logger.Debug("repository processed",
			zap.String("repo", repo.FullName),
			zap.Int("contributors", result.PerLogin.Len()),
			zap.Int("commits", result.Total),
		)
	}

	span.SetAttributes(attribute.String("leaderboard.outcome", string(result.Outcome)))
	a.metrics.RepoFetch(string(result.Outcome))
	return result, nil
}

func splitFullName(org string, repo domain.RepositoryRef) (string, string) {
	if owner, name, found := strings.Cut(repo.FullName, "/"); found {
		return owner, name
	}
	return org, repo.Name
}
