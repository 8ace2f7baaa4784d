// Package benchmark parses XCCDF benchmark definitions and the archives
// that carry them into the canonical definition/rule model.
package benchmark

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/amccray/stigward/internal/database"
)

// ErrInvalidFormat reports a document with no recognizable benchmark
// structure. User-correctable, not transient.
var ErrInvalidFormat = errors.New("invalid benchmark format")

const maxDescriptionLen = 500

// xmlNode is a generic element tree. Matching on Name.Local makes the
// parser indifferent to how the producer spelled the XCCDF namespace
// prefix (xccdf:, cdf:, or none).
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (n *xmlNode) child(local string) *xmlNode {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == local {
			return &n.Children[i]
		}
	}
	return nil
}

// flatText joins the element's own text with that of all descendants.
// Benchmark titles and descriptions sometimes carry mixed XHTML content.
func (n *xmlNode) flatText() string {
	if n == nil {
		return ""
	}
	var parts []string
	var walk func(*xmlNode)
	walk = func(e *xmlNode) {
		if t := strings.TrimSpace(e.Text); t != "" {
			parts = append(parts, t)
		}
		for i := range e.Children {
			walk(&e.Children[i])
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

// findFirst walks the tree depth-first for the first element with the
// given local name.
func (n *xmlNode) findFirst(local string) *xmlNode {
	if n.XMLName.Local == local {
		return n
	}
	for i := range n.Children {
		if found := n.Children[i].findFirst(local); found != nil {
			return found
		}
	}
	return nil
}

func (n *xmlNode) findAll(local string, out *[]*xmlNode) {
	if n.XMLName.Local == local {
		*out = append(*out, n)
	}
	for i := range n.Children {
		n.Children[i].findAll(local, out)
	}
}

// ParseBenchmark extracts a benchmark definition and its rules from raw
// XCCDF XML. The filename is only used to derive a fallback identifier
// when the benchmark element has no id attribute.
func ParseBenchmark(data []byte, filename string) (*database.Definition, []database.Rule, error) {
	var root xmlNode
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	bench := root.findFirst("Benchmark")
	if bench == nil {
		// Some producers rename the root; take the first top-level
		// element and let field extraction fall back from there.
		bench = &root
	}
	if bench.XMLName.Local == "" {
		return nil, nil, fmt.Errorf("%w: empty document", ErrInvalidFormat)
	}

	benchmarkID := bench.attr("id")
	if benchmarkID == "" {
		benchmarkID = idFromFilename(filename)
	}
	if benchmarkID == "" {
		return nil, nil, fmt.Errorf("%w: no benchmark id and no filename to derive one from", ErrInvalidFormat)
	}

	title := bench.child("title").flatText()
	version := bench.child("version").flatText()
	description := bench.child("description").flatText()
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}

	def := &database.Definition{
		BenchmarkID: benchmarkID,
		Title:       title,
		Version:     version,
		ReleaseDate: releaseDate(bench),
		Platform:    DetectPlatform(title),
		Description: description,
		Source:      string(data),
	}

	return def, extractRules(bench), nil
}

// extractRules collects every Rule nested under a Group, at any depth.
func extractRules(bench *xmlNode) []database.Rule {
	var groups []*xmlNode
	bench.findAll("Group", &groups)

	var rules []database.Rule
	for _, group := range groups {
		for i := range group.Children {
			ruleElem := &group.Children[i]
			if ruleElem.XMLName.Local != "Rule" {
				continue
			}
			rules = append(rules, database.Rule{
				RuleID:      ruleElem.attr("id"),
				Title:       ruleElem.child("title").flatText(),
				Severity:    NormalizeSeverity(ruleElem.attr("severity")),
				Description: ruleElem.child("description").flatText(),
				FixText:     ruleElem.child("fixtext").flatText(),
				CheckText:   ruleElem.findFirst("check-content").flatText(),
			})
		}
	}
	return rules
}

var (
	releaseDateRe = regexp.MustCompile(`Benchmark Date:\s*(\d{1,2}\s+\w{3}\s+\d{4})`)
	isoDateRe     = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// releaseDate pulls the benchmark date out of the release-info plain-text
// element and normalizes it to ISO form where possible.
func releaseDate(bench *xmlNode) string {
	var plains []*xmlNode
	bench.findAll("plain-text", &plains)

	var info string
	for _, p := range plains {
		if p.attr("id") == "release-info" {
			info = p.flatText()
			break
		}
	}
	if info == "" {
		if status := bench.child("status"); status != nil {
			return status.attr("date")
		}
		return ""
	}

	if m := releaseDateRe.FindStringSubmatch(info); m != nil {
		if t, err := time.Parse("2 Jan 2006", m[1]); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if m := isoDateRe.FindString(info); m != "" {
		return m
	}
	return info
}

// idFromFilename derives a benchmark identifier from the uploaded file
// name when the XML carries none.
func idFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSuffix(base, "-xccdf")
	base = strings.TrimSuffix(base, "_xccdf")
	return strings.ReplaceAll(strings.TrimSpace(base), " ", "_")
}
