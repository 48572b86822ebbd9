// Package view holds the read-only projections of the ticket collection:
// the filtered history list and the CSV export.
package view

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/godilite/aiticket/internal/api/models"
)

// AllPriorities matches tickets of any priority.
const AllPriorities = "all"

var ErrNothingToExport = errors.New("there are no tickets to export")

var csvHeader = []string{"ID", "Title", "Category", "Priority", "Status", "Created At"}

// Criteria narrows the history list. Zero value matches everything.
type Criteria struct {
	Query    string
	Priority string
}

// Matches reports whether t satisfies both the query and the priority
// filter. The query is a case-insensitive substring of title, category or
// id.
func (c Criteria) Matches(t models.Ticket) bool {
	return c.matchesPriority(t) && c.matchesQuery(t)
}

func (c Criteria) matchesQuery(t models.Ticket) bool {
	query := strings.ToLower(strings.TrimSpace(c.Query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(t.Title), query) {
		return true
	}
	if strings.Contains(strings.ToLower(t.Category), query) {
		return true
	}
	return strings.Contains(strconv.FormatInt(t.ID, 10), query)
}

func (c Criteria) matchesPriority(t models.Ticket) bool {
	p := strings.ToLower(strings.TrimSpace(c.Priority))
	if p == "" || p == AllPriorities {
		return true
	}
	return strings.ToLower(string(t.Priority)) == p
}

// Filter returns the tickets matching c, preserving input order.
func Filter(tickets []models.Ticket, c Criteria) []models.Ticket {
	out := make([]models.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if c.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// WriteCSV writes tickets as RFC 4180 CSV with a header row.
func WriteCSV(w io.Writer, tickets []models.Ticket) error {
	if len(tickets) == 0 {
		return ErrNothingToExport
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, t := range tickets {
		record := []string{
			strconv.FormatInt(t.ID, 10),
			t.Title,
			t.Category,
			string(t.Priority),
			t.Status,
			formatDate(t.CreatedAt),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write ticket %d: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFileName is the conventional name of an export written on day now.
func ExportFileName(now time.Time) string {
	return fmt.Sprintf("aiticket-export-%s.csv", now.Format("2006-01-02"))
}

func formatDate(ts models.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format("2006-01-02")
}
