package checklist

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/amccray/stigward/internal/benchmark"
)

// Legacy STIG Viewer CKL layout. Per-vulnerability fields arrive as
// repeated VULN_ATTRIBUTE/ATTRIBUTE_DATA pairs that get pivoted into
// fixed fields below.
type cklDocument struct {
	XMLName xml.Name `xml:"CHECKLIST"`
	Asset   struct {
		HostName string `xml:"HOST_NAME"`
		HostIP   string `xml:"HOST_IP"`
	} `xml:"ASSET"`
	Stigs []cklStig `xml:"STIGS>iSTIG"`
}

type cklStig struct {
	Info  []cklSIData `xml:"STIG_INFO>SI_DATA"`
	Vulns []cklVuln   `xml:"VULN"`
}

type cklSIData struct {
	Name string `xml:"SID_NAME"`
	Data string `xml:"SID_DATA"`
}

type cklVuln struct {
	Data           []cklStigData `xml:"STIG_DATA"`
	Status         string        `xml:"STATUS"`
	FindingDetails string        `xml:"FINDING_DETAILS"`
	Comments       string        `xml:"COMMENTS"`
}

type cklStigData struct {
	Attribute string `xml:"VULN_ATTRIBUTE"`
	Data      string `xml:"ATTRIBUTE_DATA"`
}

// ParseCKL parses a legacy XML checklist. Missing optional fields default
// rather than fail; only an unparsable document is an error.
func ParseCKL(data []byte) (*Parsed, error) {
	var doc cklDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	p := &Parsed{
		TargetName:     strings.TrimSpace(doc.Asset.HostName),
		TargetAddress:  strings.TrimSpace(doc.Asset.HostIP),
		BenchmarkTitle: "Unknown",
	}

	if len(doc.Stigs) == 0 {
		return p, nil
	}
	stig := doc.Stigs[0]

	for _, si := range stig.Info {
		switch strings.ToLower(si.Name) {
		case "stigid":
			p.BenchmarkID = strings.TrimSpace(si.Data)
		case "title":
			if si.Data != "" {
				p.BenchmarkTitle = strings.TrimSpace(si.Data)
			}
		case "releaseinfo":
			p.ReleaseInfo = strings.TrimSpace(si.Data)
		}
	}

	for _, vuln := range stig.Vulns {
		attrs := make(map[string]string, len(vuln.Data))
		for _, sd := range vuln.Data {
			if sd.Attribute != "" {
				attrs[sd.Attribute] = sd.Data
			}
		}

		p.Results = append(p.Results, Result{
			RuleID:         strings.TrimSpace(attrs["Rule_ID"]),
			Title:          strings.TrimSpace(attrs["Rule_Title"]),
			Severity:       benchmark.NormalizeSeverity(attrs["Severity"]),
			Status:         normalizeStatus(vuln.Status),
			FindingDetails: vuln.FindingDetails,
			Comments:       vuln.Comments,
		})
	}

	return p, nil
}
