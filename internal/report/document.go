// Package report turns an aggregated leaderboard into fixed-width text lines
// and renders those lines as an SVG image.
package report

import (
	"fmt"
	"strings"

	"github.com/naka-gawa/github-leaderboard/internal/domain"
)

// LoginWidth is the width of the login column. Longer logins are truncated.
const LoginWidth = 22

const (
	enrichedRowFormat = "%2d %-22s %7d %5d %5d %6d"
	plainRowFormat    = "%2d %-22s %7d"
)

var (
	enrichedHeader = fmt.Sprintf("%2s %-22s %7s %5s %5s %6s", "#", "login", "commits", "mrgd", "prs", "issues")
	plainHeader    = fmt.Sprintf("%2s %-22s %7s", "#", "login", "commits")
	enrichedRule   = strings.Repeat("-", len(enrichedHeader))
	plainRule      = strings.Repeat("-", len(plainHeader))
)

// Document is the ordered list of text lines handed to rendering.
// It cannot be modified once built.
type Document struct {
	lines []string
}

// Lines returns a copy of the document's lines.
func (d Document) Lines() []string {
	return append([]string(nil), d.lines...)
}

// Len returns the number of lines.
func (d Document) Len() int {
	return len(d.lines)
}

// BuildDocument lays out the leaderboard as text. Entries are written in the
// order they already have; nothing is re-sorted here.
func BuildDocument(lb *domain.Leaderboard) Document {
	var b builder

	b.add("GitHub leaderboard: %s", lb.Org)
	b.add("Window %s | generated %s", lb.Window.DateRange(), lb.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	b.blank()

	b.add("Overall top %d", len(lb.Overall))
	b.enrichedTable(lb.Overall)

	for _, repo := range lb.Repos {
		b.blank()
		b.add("%s (%d commits)", repo.Repo.FullName, repo.Total)
		if repo.Enriched {
			b.enrichedTable(repo.Top)
		} else {
			b.plainTable(repo.Top)
		}
	}

	s := lb.Summary
	b.blank()
	b.add("Repositories: %d scanned, %d with commits, %d pending, %d failed",
		s.ReposScanned, s.ReposActive, s.ReposPending, s.ReposFailed)
	b.add("Contributors: %d active, %d commits, median %.1f, p90 %.1f",
		s.Contributors, s.TotalCommits, s.MedianCommits, s.P90Commits)

	return Document{lines: b.lines}
}

// EnrichedRow formats a full leaderboard row. A missing Metrics renders as zeros.
func EnrichedRow(entry domain.RankedEntry) string {
	var m domain.ActivityMetrics
	if entry.Metrics != nil {
		m = *entry.Metrics
	}
	return fmt.Sprintf(enrichedRowFormat, entry.Rank, truncateLogin(entry.Login), entry.Commits, m.PRsMerged, m.PRsOpened, m.IssuesOpened)
}

// PlainRow formats a commits-only row.
func PlainRow(entry domain.RankedEntry) string {
	return fmt.Sprintf(plainRowFormat, entry.Rank, truncateLogin(entry.Login), entry.Commits)
}

func truncateLogin(login string) string {
	runes := []rune(login)
	if len(runes) <= LoginWidth {
		return login
	}
	return string(runes[:LoginWidth])
}

type builder struct {
	lines []string
}

func (b *builder) add(format string, args ...any) {
	b.lines = append(b.lines, fmt.Sprintf(format, args...))
}

func (b *builder) blank() {
	b.lines = append(b.lines, "")
}

func (b *builder) enrichedTable(entries []domain.RankedEntry) {
	b.lines = append(b.lines, enrichedHeader, enrichedRule)
	if len(entries) == 0 {
		b.lines = append(b.lines, "   (no commits in window)")
		return
	}
	for _, entry := range entries {
		b.lines = append(b.lines, EnrichedRow(entry))
	}
}

func (b *builder) plainTable(entries []domain.RankedEntry) {
	b.lines = append(b.lines, plainHeader, plainRule)
	for _, entry := range entries {
		b.lines = append(b.lines, PlainRow(entry))
	}
}
