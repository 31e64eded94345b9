package services

import (
	"strings"

	"github.com/visionary-ai/go-report-backend/internal/domain"
)

// MapAPIPriority folds the analysis service's severity vocabulary onto the
// internal three-level scale. The mapping is case-insensitive and total:
// "severe" and "safety critical" become High, "moderate" becomes Medium, and
// anything else, including an absent or unknown value, becomes Low. It never
// fails to produce a value.
func MapAPIPriority(apiPriority string) string {
	switch strings.ToLower(strings.TrimSpace(apiPriority)) {
	case "severe", "safety critical":
		return domain.PriorityHigh
	case "moderate":
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}
