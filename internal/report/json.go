package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/naka-gawa/github-leaderboard/internal/domain"
)

// WriteJSON writes the leaderboard dataset as indented JSON.
func WriteJSON(w io.Writer, lb *domain.Leaderboard) error {
	jsonData, err := json.MarshalIndent(lb, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal leaderboard to JSON: %w", err)
	}
	if _, err := fmt.Fprintln(w, string(jsonData)); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}
