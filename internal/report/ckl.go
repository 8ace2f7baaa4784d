package report

import (
	"encoding/xml"
	"fmt"

	"github.com/amccray/stigward/internal/audit"
	"github.com/amccray/stigward/internal/database"
)

// cklStatusLabels maps canonical check statuses back onto the STIG Viewer
// vocabulary.
var cklStatusLabels = map[string]string{
	database.CheckPass:          "NotAFinding",
	database.CheckFail:          "Open",
	database.CheckNotApplicable: "Not_Applicable",
	database.CheckNotReviewed:   "Not_Reviewed",
	database.CheckError:         "Not_Reviewed",
}

type cklChecklist struct {
	XMLName xml.Name `xml:"CHECKLIST"`
	Asset   cklAsset `xml:"ASSET"`
	Stigs   cklStigs `xml:"STIGS"`
}

type cklAsset struct {
	AssetType string `xml:"ASSET_TYPE"`
	HostName  string `xml:"HOST_NAME"`
	HostIP    string `xml:"HOST_IP"`
}

type cklStigs struct {
	IStig cklIStig `xml:"iSTIG"`
}

type cklIStig struct {
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

// ExportCKL regenerates a STIG Viewer checklist for one completed job
// from the stored results.
func (g *Generator) ExportCKL(jobID int64) ([]byte, error) {
	job, err := g.db.GetAuditJob(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %d", audit.ErrJobNotFound, jobID)
	}

	target, err := g.db.GetTarget(job.TargetID)
	if err != nil {
		return nil, err
	}
	def, err := g.db.GetDefinition(job.DefinitionID)
	if err != nil {
		return nil, err
	}
	results, err := g.db.ListResultsByJob(jobID)
	if err != nil {
		return nil, err
	}

	doc := cklChecklist{
		Asset: cklAsset{AssetType: "Computing"},
	}
	if target != nil {
		doc.Asset.HostName = target.Name
		doc.Asset.HostIP = target.Address
	}
	if def != nil {
		doc.Stigs.IStig.Info = []cklSIData{
			{Name: "stigid", Data: def.BenchmarkID},
			{Name: "title", Data: def.Title},
			{Name: "version", Data: def.Version},
			{Name: "releaseinfo", Data: def.ReleaseDate},
		}
	}

	for _, r := range results {
		status, ok := cklStatusLabels[r.Status]
		if !ok {
			status = "Not_Reviewed"
		}
		doc.Stigs.IStig.Vulns = append(doc.Stigs.IStig.Vulns, cklVuln{
			Data: []cklStigData{
				{Attribute: "Rule_ID", Data: r.RuleID},
				{Attribute: "Rule_Title", Data: r.Title},
				{Attribute: "Severity", Data: r.Severity},
			},
			Status:         status,
			FindingDetails: r.FindingDetails,
			Comments:       r.Comments,
		})
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding ckl: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
