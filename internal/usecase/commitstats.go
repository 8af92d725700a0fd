package usecase

import "github.com/naka-gawa/github-leaderboard/internal/domain"

// SummarizeContributors reduces raw weekly histograms of one repository to a
// per-login commit count over the window. Only weeks starting at or after
// windowStart count. Contributors without a login, or whose windowed sum is not
// positive, are left out. It also returns the sum of the retained counts.
func SummarizeContributors(contributors []domain.ContributorActivity, windowStart int64) (*domain.CommitTally, int) {
	tally := domain.NewCommitTally()
	for _, contributor := range contributors {
		if contributor.Login == "" {
			continue
		}
		sum := 0
		for _, week := range contributor.Weeks {
			if week.WeekStart >= windowStart {
				sum += week.Commits
			}
		}
		if sum <= 0 {
			continue
		}
		tally.Add(contributor.Login, sum)
	}
	return tally, tally.Total()
}
