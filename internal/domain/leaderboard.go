package domain

import "time"

// RepoLeaderboard is the ranked view of a single repository.
type RepoLeaderboard struct {
	Repo     RepositoryRef `json:"repo"`
	Total    int           `json:"total"`
	Top      []RankedEntry `json:"top"`
	Enriched bool          `json:"enriched"`
}

// Summary holds run-wide figures shown under the tables.
type Summary struct {
	ReposScanned  int     `json:"repos_scanned"`
	ReposActive   int     `json:"repos_active"`
	ReposPending  int     `json:"repos_pending"`
	ReposFailed   int     `json:"repos_failed"`
	Contributors  int     `json:"contributors"`
	TotalCommits  int     `json:"total_commits"`
	MedianCommits float64 `json:"median_commits"`
	P90Commits    float64 `json:"p90_commits"`
}

// Leaderboard is the fully aggregated and enriched dataset handed to rendering.
// Repos is ordered by total commits descending.
type Leaderboard struct {
	Org         string            `json:"org"`
	Window      TimeWindow        `json:"window"`
	GeneratedAt time.Time         `json:"generated_at"`
	Overall     []RankedEntry     `json:"overall"`
	Repos       []RepoLeaderboard `json:"repos"`
	Summary     Summary           `json:"summary"`
}
