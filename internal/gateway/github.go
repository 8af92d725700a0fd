// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/naka-gawa/github-leaderboard/internal/domain"
	"github.com/naka-gawa/github-leaderboard/internal/telemetry"
	"github.com/naka-gawa/github-leaderboard/internal/workerpool"
)

const repoPageSize = 100

// Fetcher defines the behavior of a gateway for fetching information from GitHub.
type Fetcher interface {
	ValidateCredentials(ctx context.Context) (string, error)
	ListOrgRepositories(ctx context.Context, org string) ([]domain.RepositoryRef, error)
	// FetchContributorActivity returns ok=false when GitHub is still computing
	// the statistics after every retry. That is not an error.
	FetchContributorActivity(ctx context.Context, owner, repo string) (activity []domain.ContributorActivity, ok bool, err error)
	FetchActivityMetrics(ctx context.Context, login string, scope domain.Scope, window domain.TimeWindow) (domain.ActivityMetrics, error)
}

// PendingRetryConfig controls how long a 202 "still computing" response is retried.
type PendingRetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPendingRetry waits 2s, 4s, 8s ... capped at 60s, over at most 7 attempts.
func DefaultPendingRetry() PendingRetryConfig {
	return PendingRetryConfig{
		MaxAttempts:    7,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     60 * time.Second,
	}
}

// Options configures NewGitHubGateway.
type Options struct {
	Token        string
	APIBaseURL   string
	GraphQLURL   string
	PendingRetry PendingRetryConfig
	Metrics      *telemetry.RunMetrics
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *zap.Logger
	pending       PendingRetryConfig
	metrics       *telemetry.RunMetrics
	// Sleep is injected for testability.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway.
func NewGitHubGateway(opts Options, logger *zap.Logger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}

	restClient := github.NewClient(httpClient)
	if opts.APIBaseURL != "" {
		baseURL, err := url.Parse(opts.APIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github api base url: %w", err)
		}
		if !strings.HasSuffix(baseURL.Path, "/") {
			baseURL.Path += "/"
		}
		restClient.BaseURL = baseURL
	}

	graphqlClient := githubv4.NewClient(httpClient)
	if opts.GraphQLURL != "" {
		graphqlClient = githubv4.NewEnterpriseClient(opts.GraphQLURL, httpClient)
	}

	return newGitHubGateway(restClient, graphqlClient, logger, opts.PendingRetry, opts.Metrics), nil
}

func newGitHubGateway(restClient *github.Client, graphqlClient *githubv4.Client, logger *zap.Logger, pending PendingRetryConfig, metrics *telemetry.RunMetrics) *GitHubGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pending.MaxAttempts <= 0 {
		pending.MaxAttempts = 1
	}
	return &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		logger:        logger,
		pending:       pending,
		metrics:       metrics,
		Sleep:         workerpool.Sleep,
	}
}

// FetchResource GETs path (relative to the REST base URL) and decodes the JSON body into v.
// 401 and 403 become *AuthError; other non-2xx statuses become *HTTPError.
func (g *GitHubGateway) FetchResource(ctx context.Context, path string, v any) error {
	ctx, span := telemetry.Tracer().Start(ctx, "gateway.fetch_resource",
		trace.WithAttributes(attribute.String("github.path", path)))
	defer span.End()

	req, err := g.restClient.NewRequest(http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}

	resp, err := g.restClient.Do(ctx, req, v)
	if resp != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	}
	if err != nil {
		classified := classifyError(path, resp, err)
		if !errors.Is(classified, errPendingUnavailable) {
			span.RecordError(classified)
			span.SetStatus(codes.Error, classified.Error())
		}
		return classified
	}
	return nil
}

// FetchResourceWithPendingRetry behaves like FetchResource but waits and retries
// while GitHub answers 202 Accepted. When the resource is still pending after
// MaxAttempts it returns ok=false and a nil error.
func (g *GitHubGateway) FetchResourceWithPendingRetry(ctx context.Context, path string, v any) (bool, error) {
	for attempt := 1; ; attempt++ {
		err := g.FetchResource(ctx, path, v)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, errPendingUnavailable) {
			return false, err
		}
		if attempt >= g.pending.MaxAttempts {
			g.logger.Warn("statistics still being computed, giving up",
				zap.String("path", path),
				zap.Int("attempts", attempt),
			)
			return false, nil
		}

		wait := g.pending.backoff(attempt)
		g.metrics.PendingRetry()
		g.logger.Debug("statistics being computed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
		)
		if err := g.Sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}

// RunQuery sends one GraphQL request. Transport failures, non-2xx statuses and
// error payloads are all reported as *QueryError.
func (g *GitHubGateway) RunQuery(ctx context.Context, q any, variables map[string]any) error {
	if err := g.graphqlClient.Query(ctx, q, variables); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &QueryError{Payload: err.Error(), Err: err}
	}
	return nil
}

// ValidateCredentials resolves the login the token belongs to.
func (g *GitHubGateway) ValidateCredentials(ctx context.Context) (string, error) {
	var user github.User
	if err := g.FetchResource(ctx, "user", &user); err != nil {
		return "", fmt.Errorf("failed to validate credentials: %w", err)
	}
	return user.GetLogin(), nil
}

// ListOrgRepositories lists every non-archived repository of org, most recently pushed first.
func (g *GitHubGateway) ListOrgRepositories(ctx context.Context, org string) ([]domain.RepositoryRef, error) {
	var refs []domain.RepositoryRef
	for page := 1; ; page++ {
		path := fmt.Sprintf("orgs/%s/repos?type=all&sort=pushed&direction=desc&per_page=%d&page=%d",
			url.PathEscape(org), repoPageSize, page)

		var repos []*github.Repository
		if err := g.FetchResource(ctx, path, &repos); err != nil {
			return nil, fmt.Errorf("failed to list repositories of %s: %w", org, err)
		}
		for _, repo := range repos {
			if repo.GetArchived() {
				continue
			}
			refs = append(refs, domain.RepositoryRef{
				Name:     repo.GetName(),
				FullName: repo.GetFullName(),
				Private:  repo.GetPrivate(),
				Fork:     repo.GetFork(),
			})
		}
		if len(repos) < repoPageSize {
			break
		}
		g.logger.Debug("fetching next page of repositories", zap.Int("page", page+1))
	}
	return refs, nil
}

// FetchContributorActivity reads the weekly commit histograms of every contributor of owner/repo.
func (g *GitHubGateway) FetchContributorActivity(ctx context.Context, owner, repo string) ([]domain.ContributorActivity, bool, error) {
	path := fmt.Sprintf("repos/%s/%s/stats/contributors", url.PathEscape(owner), url.PathEscape(repo))

	var stats []*github.ContributorStats
	ok, err := g.FetchResourceWithPendingRetry(ctx, path, &stats)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch contributor stats for %s/%s: %w", owner, repo, err)
	}
	if !ok {
		return nil, false, nil
	}

	activity := make([]domain.ContributorActivity, 0, len(stats))
	for _, contributor := range stats {
		if contributor == nil {
			continue
		}
		weeks := make([]domain.WeeklyCommitSample, 0, len(contributor.Weeks))
		for _, week := range contributor.Weeks {
			if week == nil {
				continue
			}
			weeks = append(weeks, domain.WeeklyCommitSample{
				WeekStart: week.GetWeek().Unix(),
				Commits:   week.GetCommits(),
			})
		}
		activity = append(activity, domain.ContributorActivity{
			Login: contributor.GetAuthor().GetLogin(),
			Weeks: weeks,
		})
	}
	return activity, true, nil
}

// FetchActivityMetrics counts issues opened, PRs opened and PRs merged by login in scope.
func (g *GitHubGateway) FetchActivityMetrics(ctx context.Context, login string, scope domain.Scope, window domain.TimeWindow) (domain.ActivityMetrics, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "gateway.fetch_activity_metrics",
		trace.WithAttributes(
			attribute.String("github.login", login),
			attribute.String("github.scope", scope.String()),
		))
	defer span.End()

	request := NewMetricsRequest(login, scope, window)
	var q activityMetricsQuery
	if err := g.RunQuery(ctx, &q, request.Variables()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.ActivityMetrics{}, fmt.Errorf("failed to fetch activity metrics for %s in %s: %w", login, scope, err)
	}
	return q.metrics(), nil
}

func classifyError(path string, resp *github.Response, err error) error {
	var acceptedErr *github.AcceptedError
	if errors.As(err, &acceptedErr) {
		return fmt.Errorf("%s: %w", path, errPendingUnavailable)
	}

	statusCode := 0
	if resp != nil && resp.Response != nil {
		statusCode = resp.StatusCode
	}

	// Primary and secondary rate limits also answer 403 but say nothing about the credential.
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return &HTTPError{StatusCode: statusCode, Path: path, Err: err}
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &AuthError{StatusCode: statusCode, Path: path, Detail: responseDetail(resp, err)}
	case statusCode != 0 && (statusCode < 200 || statusCode > 299):
		return &HTTPError{StatusCode: statusCode, Path: path, Err: err}
	}
	return fmt.Errorf("github request %s: %w", path, err)
}

// maxDetailBytes bounds how much of a rejected response body ends up in an AuthError.
const maxDetailBytes = 2048

// responseDetail returns the raw body of a failed response, falling back to
// err when the body is empty or already consumed.
func responseDetail(resp *github.Response, err error) string {
	if resp == nil || resp.Response == nil || resp.Body == nil {
		return err.Error()
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	if readErr != nil || len(bytes.TrimSpace(body)) == 0 {
		return err.Error()
	}
	return string(bytes.TrimSpace(body))
}

// backoff returns the wait after the given 1-based attempt: InitialBackoff
// doubled per earlier attempt, capped at MaxBackoff.
func (c PendingRetryConfig) backoff(attempt int) time.Duration {
	if c.MaxAttempts > 0 && attempt > c.MaxAttempts {
		attempt = c.MaxAttempts
	}
	wait := c.InitialBackoff
	for n := 1; n < attempt; n++ {
		if c.MaxBackoff > 0 && wait >= c.MaxBackoff {
			break
		}
		wait *= 2
	}
	if c.MaxBackoff > 0 && wait > c.MaxBackoff {
		return c.MaxBackoff
	}
	return wait
}
