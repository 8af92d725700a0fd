package usecase

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/naka-gawa/github-leaderboard/internal/domain"
)

// mockFetcher is a mock implementation of the gateway.Fetcher interface.
// It allows us to simulate the behavior of the GitHub gateway without making real API calls.
type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) ValidateCredentials(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockFetcher) ListOrgRepositories(ctx context.Context, org string) ([]domain.RepositoryRef, error) {
	args := m.Called(ctx, org)
	// We need to handle the case where the returned slice is nil (e.g., when an error occurs).
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RepositoryRef), args.Error(1)
}

func (m *mockFetcher) FetchContributorActivity(ctx context.Context, owner, repo string) ([]domain.ContributorActivity, bool, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]domain.ContributorActivity), args.Bool(1), args.Error(2)
}

func (m *mockFetcher) FetchActivityMetrics(ctx context.Context, login string, scope domain.Scope, window domain.TimeWindow) (domain.ActivityMetrics, error) {
	args := m.Called(ctx, login, scope, window)
	return args.Get(0).(domain.ActivityMetrics), args.Error(1)
}

func repoRef(name string) domain.RepositoryRef {
	return domain.RepositoryRef{Name: name, FullName: "acme/" + name}
}

// contributor builds activity whose in-window weeks sum to commits. Weeks at
// testWindowStart count; the week before it must never be counted.
func contributor(login string, commits int) domain.ContributorActivity {
	return domain.ContributorActivity{
		Login: login,
		Weeks: []domain.WeeklyCommitSample{
			{WeekStart: testWindowStart - 604800, Commits: 100},
			{WeekStart: testWindowStart, Commits: commits},
		},
	}
}
