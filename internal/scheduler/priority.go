package scheduler

import (
	"fmt"
	"strings"
)

// Priority orders pending tasks. Higher values run first.
type Priority int32

const (
	PriorityLow      Priority = -4
	PriorityNormal   Priority = 0
	PriorityHigh     Priority = 4
	PriorityVeryHigh Priority = 8
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "very_high"
	default:
		return fmt.Sprintf("priority(%d)", int32(p))
	}
}

// ParsePriority parses the names produced by Priority.String.
// An empty string is PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	case "high":
		return PriorityHigh, nil
	case "very_high", "veryhigh":
		return PriorityVeryHigh, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority: %s (supported: low, normal, high, very_high)", s)
	}
}
