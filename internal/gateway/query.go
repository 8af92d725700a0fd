package gateway

import (
	"strings"

	"github.com/naka-gawa/github-leaderboard/internal/domain"
	"github.com/shurcooL/githubv4"
)

// SearchType is the entity filter of a search query.
type SearchType string

const (
	SearchIssue       SearchType = "issue"
	SearchPullRequest SearchType = "pr"
)

// DateField selects which timestamp the window is applied to.
type DateField string

const (
	DateCreated DateField = "created"
	DateMerged  DateField = "merged"
)

var literalEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// EscapeLiteral escapes backslashes and double quotes so s can be embedded in a quoted literal.
func EscapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

func quote(s string) string {
	return `"` + EscapeLiteral(s) + `"`
}

// SearchQuery is a structured GitHub search query.
// String renders it with every interpolated value quoted and escaped.
type SearchQuery struct {
	Scope      domain.Scope
	Author     string
	Type       SearchType
	MergedOnly bool
	DateField  DateField
	Window     domain.TimeWindow
}

func (q SearchQuery) String() string {
	parts := make([]string, 0, 5)
	if q.Scope.IsOrg() {
		parts = append(parts, "org:"+quote(q.Scope.Org))
	} else {
		parts = append(parts, "repo:"+quote(q.Scope.Repo))
	}
	parts = append(parts, "author:"+quote(q.Author), "is:"+string(q.Type))
	if q.MergedOnly {
		parts = append(parts, "is:merged")
	}
	parts = append(parts, string(q.DateField)+":"+q.Window.DateRange())
	return strings.Join(parts, " ")
}

// MetricsRequest bundles the three searches that make up ActivityMetrics
// so they travel in a single GraphQL request.
type MetricsRequest struct {
	Issues    SearchQuery
	PRsOpened SearchQuery
	PRsMerged SearchQuery
}

// NewMetricsRequest builds the issue, opened-PR and merged-PR searches for login within scope.
func NewMetricsRequest(login string, scope domain.Scope, window domain.TimeWindow) MetricsRequest {
	base := SearchQuery{Scope: scope, Author: login, Window: window}

	issues := base
	issues.Type = SearchIssue
	issues.DateField = DateCreated

	opened := base
	opened.Type = SearchPullRequest
	opened.DateField = DateCreated

	merged := base
	merged.Type = SearchPullRequest
	merged.MergedOnly = true
	merged.DateField = DateMerged

	return MetricsRequest{Issues: issues, PRsOpened: opened, PRsMerged: merged}
}

// Variables returns the GraphQL variables consumed by activityMetricsQuery.
func (r MetricsRequest) Variables() map[string]any {
	return map[string]any{
		"issuesQuery": githubv4.String(r.Issues.String()),
		"openedQuery": githubv4.String(r.PRsOpened.String()),
		"mergedQuery": githubv4.String(r.PRsMerged.String()),
	}
}

// activityMetricsQuery asks for three issue counts at once using aliased searches.
type activityMetricsQuery struct {
	Issues struct {
		IssueCount githubv4.Int
	} `graphql:"issues: search(query: $issuesQuery, type: ISSUE)"`
	Opened struct {
		IssueCount githubv4.Int
	} `graphql:"opened: search(query: $openedQuery, type: ISSUE)"`
	Merged struct {
		IssueCount githubv4.Int
	} `graphql:"merged: search(query: $mergedQuery, type: ISSUE)"`
}

func (q activityMetricsQuery) metrics() domain.ActivityMetrics {
	return domain.ActivityMetrics{
		IssuesOpened: int(q.Issues.IssueCount),
		PRsOpened:    int(q.Opened.IssueCount),
		PRsMerged:    int(q.Merged.IssueCount),
	}
}
