package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/naka-gawa/github-leaderboard/internal/domain"
	"github.com/naka-gawa/github-leaderboard/internal/gateway"
	"github.com/naka-gawa/github-leaderboard/internal/telemetry"
)

var fixedNow = time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)

func newTestLeaderboard(fetcher *mockFetcher) (*Leaderboard, *[]time.Duration) {
	board := NewLeaderboard(fetcher, zap.NewNop(), telemetry.NewRunMetrics())
	board.Now = func() time.Time { return fixedNow }
	var sleeps []time.Duration
	board.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return board, &sleeps
}

func testOptions() Options {
	return Options{
		Org:            "acme",
		Window:         testWindow(),
		OverallTopN:    10,
		PerRepoTopN:    10,
		EnrichTopRepos: 1,
		Parallelism:    2,
		OrgQueryDelay:  150 * time.Millisecond,
		RepoQueryDelay: 120 * time.Millisecond,
	}
}

func TestLeaderboard_Build(t *testing.T) {
	// --- Arrange ---
	fetcher := new(mockFetcher)
	fetcher.On("ValidateCredentials", mock.Anything).Return("octocat", nil)
	fetcher.On("ListOrgRepositories", mock.Anything, "acme").
		Return([]domain.RepositoryRef{repoRef("a"), repoRef("b"), repoRef("c")}, nil)
	fetcher.On("FetchContributorActivity", mock.Anything, "acme", "a").
		Return([]domain.ContributorActivity{contributor("alice", 5), contributor("bob", 2)}, true, nil)
	fetcher.On("FetchContributorActivity", mock.Anything, "acme", "b").
		Return([]domain.ContributorActivity{contributor("alice", 3), contributor("carol", 1)}, true, nil)
	fetcher.On("FetchContributorActivity", mock.Anything, "acme", "c").
		Return(nil, false, nil)
	fetcher.On("FetchActivityMetrics", mock.Anything, "alice", domain.OrgScope("acme"), testWindow()).
		Return(domain.ActivityMetrics{IssuesOpened: 1, PRsOpened: 4, PRsMerged: 3}, nil)
	fetcher.On("FetchActivityMetrics", mock.Anything, mock.Anything, mock.Anything, testWindow()).
		Return(domain.ActivityMetrics{}, nil)

	board, sleeps := newTestLeaderboard(fetcher)

	// --- Act ---
	result, err := board.Build(context.Background(), testOptions())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "acme", result.Org)
	assert.Equal(t, fixedNow, result.GeneratedAt)

	require.Len(t, result.Overall, 3)
	assert.Equal(t, "alice", result.Overall[0].Login)
	assert.Equal(t, 8, result.Overall[0].Commits)
	assert.Equal(t, &domain.ActivityMetrics{IssuesOpened: 1, PRsOpened: 4, PRsMerged: 3}, result.Overall[0].Metrics)
	for _, entry := range result.Overall {
		assert.NotNil(t, entry.Metrics, entry.Login)
	}

	require.Len(t, result.Repos, 2, "repositories without commits are left out")
	assert.Equal(t, "acme/a", result.Repos[0].Repo.FullName)
	assert.Equal(t, 7, result.Repos[0].Total)
	assert.True(t, result.Repos[0].Enriched)
	for _, entry := range result.Repos[0].Top {
		assert.NotNil(t, entry.Metrics, entry.Login)
	}
	assert.Equal(t, "acme/b", result.Repos[1].Repo.FullName)
	assert.False(t, result.Repos[1].Enriched)
	for _, entry := range result.Repos[1].Top {
		assert.Nil(t, entry.Metrics, entry.Login)
	}

	// Three org lookups, then two for the enriched repository.
	assert.Equal(t, []time.Duration{
		150 * time.Millisecond, 150 * time.Millisecond, 150 * time.Millisecond,
		120 * time.Millisecond, 120 * time.Millisecond,
	}, *sleeps)

	assert.Equal(t, 3, result.Summary.ReposScanned)
	assert.Equal(t, 2, result.Summary.ReposActive)
	assert.Equal(t, 1, result.Summary.ReposPending)
	assert.Equal(t, 0, result.Summary.ReposFailed)
	assert.Equal(t, 3, result.Summary.Contributors)
	assert.Equal(t, 11, result.Summary.TotalCommits)
	assert.Equal(t, 2.0, result.Summary.MedianCommits)
	// Linear interpolation over [1 2 8]: rank 1.8 lands 80% of the way from 2 to 8.
	assert.InDelta(t, 6.8, result.Summary.P90Commits, 1e-9)

	fetcher.AssertExpectations(t)
}

func TestLeaderboard_Build_AuthFailureAborts(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("ValidateCredentials", mock.Anything).
		Return("", &gateway.AuthError{StatusCode: 401, Path: "user", Detail: "Bad credentials"})

	board, _ := newTestLeaderboard(fetcher)

	result, err := board.Build(context.Background(), testOptions())

	assert.Nil(t, result)
	assert.True(t, gateway.IsAuthError(err))
	fetcher.AssertNotCalled(t, "ListOrgRepositories", mock.Anything, mock.Anything)
}

func TestLeaderboard_Build_EmptyOrganization(t *testing.T) {
	fetcher := new(mockFetcher)
	fetcher.On("ValidateCredentials", mock.Anything).Return("octocat", nil)
	fetcher.On("ListOrgRepositories", mock.Anything, "acme").Return([]domain.RepositoryRef{}, nil)

	board, sleeps := newTestLeaderboard(fetcher)

	result, err := board.Build(context.Background(), testOptions())

	require.NoError(t, err)
	assert.Empty(t, result.Overall)
	assert.Empty(t, result.Repos)
	assert.Empty(t, *sleeps)
	assert.Equal(t, domain.Summary{}, result.Summary)
	fetcher.AssertNotCalled(t, "FetchActivityMetrics", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSummarize_SingleContributor(t *testing.T) {
	totals := domain.NewCommitTally()
	totals.Add("alice", 12)

	summary := summarize(&Aggregation{
		Repos:  []RepoResult{{Outcome: OutcomeOK, Total: 12}, {Outcome: OutcomeFailed}},
		Active: []RepoResult{{Outcome: OutcomeOK, Total: 12}},
		Totals: totals,
	})

	assert.Equal(t, domain.Summary{
		ReposScanned:  2,
		ReposActive:   1,
		ReposFailed:   1,
		Contributors:  1,
		TotalCommits:  12,
		MedianCommits: 12,
		P90Commits:    12,
	}, summary)
}
