package domain

import "strings"

// Status is the canonical tri-state of a participant in a stage
type Status string

const (
	StatusPending   Status = "pending"
	StatusQualified Status = "qualified"
	StatusRejected  Status = "rejected"
)

var (
	qualifiedTokens = map[string]struct{}{
		"qualified": {}, "pass": {}, "yes": {}, "next": {}, "promote": {},
	}
	rejectedTokens = map[string]struct{}{
		"rejected": {}, "fail": {}, "no": {}, "drop": {},
	}
)

// NormalizeStatus maps any free-text token to a canonical Status.
// Unrecognized and empty input become StatusPending.
func NormalizeStatus(raw string) Status {
	token := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := qualifiedTokens[token]; ok {
		return StatusQualified
	}
	if _, ok := rejectedTokens[token]; ok {
		return StatusRejected
	}
	return StatusPending
}

// Valid reports whether s is one of the three canonical values
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusQualified, StatusRejected:
		return true
	}
	return false
}

// StatusCounts tallies participants per status
type StatusCounts struct {
	Pending   int `json:"pending"`
	Qualified int `json:"qualified"`
	Rejected  int `json:"rejected"`
}

// Add counts one participant with the given status
func (c *StatusCounts) Add(s Status) {
	switch s {
	case StatusQualified:
		c.Qualified++
	case StatusRejected:
		c.Rejected++
	default:
		c.Pending++
	}
}

// Total returns the number of participants counted
func (c StatusCounts) Total() int {
	return c.Pending + c.Qualified + c.Rejected
}
