package model

import "fmt"

// Status is the outcome code of one simulation run. The numeric values are
// part of the persisted run index.
type Status int

const (
	StatusSuccessful Status = 0
	StatusError      Status = -1
	StatusSkipped    Status = -2
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusError:
		return "error"
	case StatusSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Description returns the human readable meaning of the status.
func (s Status) Description() string {
	switch s {
	case StatusSuccessful:
		return "successfully completed"
	case StatusError:
		return "an error occured"
	case StatusSkipped:
		return "skipped to avoid overwriting existing files"
	default:
		return "unknown status"
	}
}

// ParseStatus accepts either the short name or the numeric code.
func ParseStatus(value string) (Status, error) {
	switch value {
	case "successful", "0":
		return StatusSuccessful, nil
	case "error", "-1":
		return StatusError, nil
	case "skipped", "-2":
		return StatusSkipped, nil
	default:
		return 0, fmt.Errorf("unknown run status: %s", value)
	}
}

// CountStatuses tallies outcome statuses by value.
func CountStatuses(statuses []Status) map[Status]int {
	counts := make(map[Status]int, 3)
	for _, s := range statuses {
		counts[s]++
	}
	return counts
}
