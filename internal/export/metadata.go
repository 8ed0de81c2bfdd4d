package export

import (
	"math"
	"time"
)

// Counters accumulates issue and attachment totals for one project run.
type Counters struct {
	Resolved    int
	Unresolved  int
	Attachments int
}

// Total is the number of issues seen.
func (c Counters) Total() int {
	return c.Resolved + c.Unresolved
}

// Metadata is the summary written to metadata.json after a successful run.
type Metadata struct {
	ExportDate       time.Time `json:"export_date"`
	TotalIssues      int       `json:"total_issues"`
	ResolvedCount    int       `json:"resolved_count"`
	UnresolvedCount  int       `json:"unresolved_count"`
	ResolutionRate   float64   `json:"resolution_rate"`
	TotalAttachments int       `json:"total_attachments"`
}

// NewMetadata finalizes counters into a metadata record.
func NewMetadata(c Counters, at time.Time) Metadata {
	return Metadata{
		ExportDate:       at,
		TotalIssues:      c.Total(),
		ResolvedCount:    c.Resolved,
		UnresolvedCount:  c.Unresolved,
		ResolutionRate:   ResolutionRate(c.Resolved, c.Total()),
		TotalAttachments: c.Attachments,
	}
}

// ResolutionRate is resolved/total rounded to four decimals, 0 when total is 0.
func ResolutionRate(resolved, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(resolved)/float64(total)*10000) / 10000
}
