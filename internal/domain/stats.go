package domain

import (
	"fmt"
	"sort"
)

// RepositoryRef identifies one non-archived repository of the organization.
type RepositoryRef struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	Fork     bool   `json:"fork"`
}

// WeeklyCommitSample is one week of a contributor's commit histogram.
type WeeklyCommitSample struct {
	WeekStart int64
	Commits   int
}

// ContributorActivity is the raw weekly history of one contributor in one repository.
// Login is empty for commits GitHub could not attribute to an account.
type ContributorActivity struct {
	Login string
	Weeks []WeeklyCommitSample
}

// ActivityMetrics holds issue and pull request counts for a login within a scope.
type ActivityMetrics struct {
	IssuesOpened int `json:"issues_opened"`
	PRsOpened    int `json:"prs_opened"`
	PRsMerged    int `json:"prs_merged"`
}

// Scope is either the whole organization or a single repository.
type Scope struct {
	Org  string
	Repo string
}

// OrgScope returns the organization-wide scope.
func OrgScope(org string) Scope {
	return Scope{Org: org}
}

// RepoScope returns the scope of a single repository given its full name (owner/name).
func RepoScope(org, fullName string) Scope {
	return Scope{Org: org, Repo: fullName}
}

// IsOrg reports whether the scope covers the whole organization.
func (s Scope) IsOrg() bool {
	return s.Repo == ""
}

func (s Scope) String() string {
	if s.IsOrg() {
		return "org:" + s.Org
	}
	return "repo:" + s.Repo
}

// RankedEntry is one leaderboard row. Metrics is nil when the row was not enriched.
type RankedEntry struct {
	Rank    int              `json:"rank"`
	Login   string           `json:"login"`
	Commits int              `json:"commits"`
	Metrics *ActivityMetrics `json:"metrics,omitempty"`
}

// CommitTally maps logins to commit counts and remembers the order in which
// logins were first observed, which is the tie order used by TopN.
type CommitTally struct {
	order  []string
	counts map[string]int
}

// NewCommitTally returns an empty tally.
func NewCommitTally() *CommitTally {
	return &CommitTally{counts: make(map[string]int)}
}

// Add adds n commits to login.
func (t *CommitTally) Add(login string, n int) {
	if _, ok := t.counts[login]; !ok {
		t.order = append(t.order, login)
	}
	t.counts[login] += n
}

// Merge folds every entry of other into t, visiting other in its first-observed order.
func (t *CommitTally) Merge(other *CommitTally) {
	if other == nil {
		return
	}
	for _, login := range other.order {
		t.Add(login, other.counts[login])
	}
}

// Count returns the commits recorded for login, or zero.
func (t *CommitTally) Count(login string) int {
	if t == nil {
		return 0
	}
	return t.counts[login]
}

// Len returns the number of distinct logins.
func (t *CommitTally) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Logins returns the logins in first-observed order.
func (t *CommitTally) Logins() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.order...)
}

// Counts returns the commit counts in first-observed order.
func (t *CommitTally) Counts() []int {
	if t == nil {
		return nil
	}
	counts := make([]int, 0, len(t.order))
	for _, login := range t.order {
		counts = append(counts, t.counts[login])
	}
	return counts
}

// Total returns the sum of all counts.
func (t *CommitTally) Total() int {
	total := 0
	for _, c := range t.Counts() {
		total += c
	}
	return total
}

// TopN sorts logins by count descending, keeping first-observed order among
// equal counts, and returns at most n ranked entries.
func (t *CommitTally) TopN(n int) []RankedEntry {
	if t == nil || n <= 0 {
		return []RankedEntry{}
	}
	logins := t.Logins()
	sort.SliceStable(logins, func(i, j int) bool {
		return t.counts[logins[i]] > t.counts[logins[j]]
	})
	if len(logins) > n {
		logins = logins[:n]
	}
	entries := make([]RankedEntry, 0, len(logins))
	for i, login := range logins {
		entries = append(entries, RankedEntry{Rank: i + 1, Login: login, Commits: t.counts[login]})
	}
	return entries
}

func (t *CommitTally) String() string {
	return fmt.Sprintf("CommitTally(%d logins, %d commits)", t.Len(), t.Total())
}
