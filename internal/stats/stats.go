// Package stats derives dashboard figures from a ticket collection.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/godilite/aiticket/internal/api/models"
)

// Undefined is shown in place of a figure that has no data behind it.
const Undefined = "–"

// Summary holds the dashboard figures for one ticket collection.
// Nil pointers mean the figure is undefined.
type Summary struct {
	Total                 int
	Rated                 int
	AverageRating         *float64
	MedianResponseSeconds *float64
	AutomationRate        int
	ByCategory            []Count
	ByPriority            []Count
}

// Count is the number of tickets sharing one key.
type Count struct {
	Key   string
	Count int
}

// Compute is a pure function of tickets; it never mutates its input.
func Compute(tickets []models.Ticket) Summary {
	s := Summary{Total: len(tickets)}

	var ratingSum int
	responses := make([]float64, 0, len(tickets))
	categories := make(map[string]int)
	priorities := make(map[string]int)

	for _, t := range tickets {
		if t.Rating != nil {
			s.Rated++
			ratingSum += *t.Rating
		}
		if t.FirstResponseSeconds != nil && *t.FirstResponseSeconds >= 0 {
			responses = append(responses, *t.FirstResponseSeconds)
		}
		categories[t.Category]++
		priorities[string(t.Priority)]++
	}

	if s.Rated > 0 {
		avg := float64(ratingSum) / float64(s.Rated)
		s.AverageRating = &avg
	}
	s.MedianResponseSeconds = lowerMedian(responses)
	if s.Total > 0 {
		s.AutomationRate = int(math.Round(float64(s.Rated) * 100 / float64(s.Total)))
	}
	s.ByCategory = sortedCounts(categories)
	s.ByPriority = sortedCounts(priorities)
	return s
}

// lowerMedian sorts values in place and returns the element at (n-1)/2.
func lowerMedian(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sort.Float64s(values)
	m := values[(len(values)-1)/2]
	return &m
}

func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}

// FormatAverage renders the average rating with one decimal.
func FormatAverage(avg *float64) string {
	if avg == nil {
		return Undefined
	}
	return fmt.Sprintf("%.1f", *avg)
}

// FormatResponseTime renders a response time in seconds for the dashboard.
func FormatResponseTime(seconds *float64) string {
	if seconds == nil {
		return Undefined
	}
	s := *seconds
	switch {
	case s < 60:
		return "< 1 min"
	case s < 3600:
		return fmt.Sprintf("%d min", int(s/60))
	default:
		return fmt.Sprintf("%.1f h", s/3600)
	}
}

// FormatAutomationRate renders the automation rate as a percentage.
func FormatAutomationRate(rate int) string {
	return fmt.Sprintf("%d%%", rate)
}
