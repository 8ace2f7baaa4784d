// Package checklist parses per-host checklist files (legacy CKL XML and
// modern CKLB JSON) into one normalized import tuple.
package checklist

import (
	"bytes"
	"errors"
	"strings"

	"github.com/amccray/stigward/internal/database"
)

// ErrMalformed reports a document that cannot be parsed as well-formed
// XML or JSON at all. Missing fields never trigger it.
var ErrMalformed = errors.New("malformed checklist")

// Result is one normalized per-rule outcome from a checklist.
type Result struct {
	RuleID         string
	Title          string
	Severity       string
	Status         string
	FindingDetails string
	Comments       string
}

// Parsed is the normalized output shared by both checklist formats.
type Parsed struct {
	TargetName     string
	TargetAddress  string
	BenchmarkID    string
	BenchmarkTitle string
	ReleaseInfo    string
	Results        []Result
}

// Parse dispatches on file extension, falling back to content sniffing,
// and runs the matching format parser.
func Parse(data []byte, filename string) (*Parsed, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".cklb"), strings.HasSuffix(lower, ".json"):
		return ParseCKLB(data)
	case strings.HasSuffix(lower, ".ckl"), strings.HasSuffix(lower, ".xml"):
		return ParseCKL(data)
	}

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return ParseCKLB(data)
	}
	return ParseCKL(data)
}

// statusMap collapses the status vocabularies of both formats onto the
// five canonical check statuses.
var statusMap = map[string]string{
	"notafinding":    database.CheckPass,
	"not_a_finding":  database.CheckPass,
	"pass":           database.CheckPass,
	"open":           database.CheckFail,
	"fail":           database.CheckFail,
	"not_applicable": database.CheckNotApplicable,
	"notapplicable":  database.CheckNotApplicable,
	"not_reviewed":   database.CheckNotReviewed,
	"notreviewed":    database.CheckNotReviewed,
	"error":          database.CheckError,
}

// normalizeStatus maps a raw finding status onto the canonical set.
// Unrecognized labels are treated as not reviewed.
func normalizeStatus(raw string) string {
	if s, ok := statusMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return database.CheckNotReviewed
}
