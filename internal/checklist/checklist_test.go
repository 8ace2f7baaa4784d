package checklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amccray/stigward/internal/database"
)

const sampleCKL = `<?xml version="1.0" encoding="UTF-8"?>
<CHECKLIST>
  <ASSET>
    <HOST_NAME>web01</HOST_NAME>
    <HOST_IP>10.0.0.5</HOST_IP>
  </ASSET>
  <STIGS>
    <iSTIG>
      <STIG_INFO>
        <SI_DATA><SID_NAME>stigid</SID_NAME><SID_DATA>RHEL_9_STIG</SID_DATA></SI_DATA>
        <SI_DATA><SID_NAME>title</SID_NAME><SID_DATA>Red Hat Enterprise Linux 9 STIG</SID_DATA></SI_DATA>
        <SI_DATA><SID_NAME>releaseinfo</SID_NAME><SID_DATA>Release: 1 Benchmark Date: 24 Jan 2024</SID_DATA></SI_DATA>
      </STIG_INFO>
      <VULN>
        <STIG_DATA><VULN_ATTRIBUTE>Rule_ID</VULN_ATTRIBUTE><ATTRIBUTE_DATA>SV-1r1_rule</ATTRIBUTE_DATA></STIG_DATA>
        <STIG_DATA><VULN_ATTRIBUTE>Rule_Title</VULN_ATTRIBUTE><ATTRIBUTE_DATA>First rule</ATTRIBUTE_DATA></STIG_DATA>
        <STIG_DATA><VULN_ATTRIBUTE>Severity</VULN_ATTRIBUTE><ATTRIBUTE_DATA>high</ATTRIBUTE_DATA></STIG_DATA>
        <STATUS>NotAFinding</STATUS>
        <FINDING_DETAILS>looks fine</FINDING_DETAILS>
        <COMMENTS></COMMENTS>
      </VULN>
      <VULN>
        <STIG_DATA><VULN_ATTRIBUTE>Rule_ID</VULN_ATTRIBUTE><ATTRIBUTE_DATA>SV-2r1_rule</ATTRIBUTE_DATA></STIG_DATA>
        <STIG_DATA><VULN_ATTRIBUTE>Severity</VULN_ATTRIBUTE><ATTRIBUTE_DATA>CAT II</ATTRIBUTE_DATA></STIG_DATA>
        <STATUS>Open</STATUS>
      </VULN>
      <VULN>
        <STIG_DATA><VULN_ATTRIBUTE>Rule_ID</VULN_ATTRIBUTE><ATTRIBUTE_DATA>SV-3r1_rule</ATTRIBUTE_DATA></STIG_DATA>
        <STATUS>Not_Applicable</STATUS>
      </VULN>
      <VULN>
        <STIG_DATA><VULN_ATTRIBUTE>Rule_ID</VULN_ATTRIBUTE><ATTRIBUTE_DATA>SV-4r1_rule</ATTRIBUTE_DATA></STIG_DATA>
        <STATUS>Not_Reviewed</STATUS>
      </VULN>
    </iSTIG>
  </STIGS>
</CHECKLIST>`

func TestParseCKL(t *testing.T) {
	p, err := ParseCKL([]byte(sampleCKL))
	require.NoError(t, err)

	assert.Equal(t, "web01", p.TargetName)
	assert.Equal(t, "10.0.0.5", p.TargetAddress)
	assert.Equal(t, "RHEL_9_STIG", p.BenchmarkID)
	assert.Equal(t, "Red Hat Enterprise Linux 9 STIG", p.BenchmarkTitle)
	assert.Contains(t, p.ReleaseInfo, "24 Jan 2024")

	require.Len(t, p.Results, 4)
	assert.Equal(t, database.CheckPass, p.Results[0].Status)
	assert.Equal(t, "high", p.Results[0].Severity)
	assert.Equal(t, "looks fine", p.Results[0].FindingDetails)
	assert.Equal(t, database.CheckFail, p.Results[1].Status)
	assert.Equal(t, "medium", p.Results[1].Severity)
	assert.Equal(t, database.CheckNotApplicable, p.Results[2].Status)
	assert.Equal(t, database.CheckNotReviewed, p.Results[3].Status)
}

func TestParseCKLMissingFields(t *testing.T) {
	doc := `<CHECKLIST><ASSET></ASSET><STIGS><iSTIG>
		<VULN><STATUS>Bogus</STATUS></VULN>
	</iSTIG></STIGS></CHECKLIST>`

	p, err := ParseCKL([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "Unknown", p.BenchmarkTitle)
	require.Len(t, p.Results, 1)
	assert.Empty(t, p.Results[0].RuleID)
	assert.Equal(t, database.CheckNotReviewed, p.Results[0].Status)
	assert.Equal(t, "medium", p.Results[0].Severity)
}

func TestParseCKLMalformed(t *testing.T) {
	_, err := ParseCKL([]byte("<CHECKLIST><unclosed"))
	assert.ErrorIs(t, err, ErrMalformed)
}

const sampleCKLB = `{
  "title": "host checklist",
  "target_data": {
    "host_name": "db02",
    "ip_address": "10.0.0.9"
  },
  "stigs": [
    {
      "stig_id": "MS_SQL_Server_2022_STIG",
      "display_name": "Microsoft SQL Server 2022 STIG",
      "release_info": "Release: 2",
      "rules": [
        {"rule_id": "SV-10r2_rule", "rule_title": "First", "severity": "low", "status": "not_a_finding", "finding_details": "ok"},
        {"rule_id": "SV-11r2_rule", "rule_title": "Second", "severity": "high", "status": "open", "comments": "bad"},
        {"group_id": "V-12", "status": "not_reviewed"}
      ]
    }
  ]
}`

func TestParseCKLB(t *testing.T) {
	p, err := ParseCKLB([]byte(sampleCKLB))
	require.NoError(t, err)

	assert.Equal(t, "db02", p.TargetName)
	assert.Equal(t, "10.0.0.9", p.TargetAddress)
	assert.Equal(t, "MS_SQL_Server_2022_STIG", p.BenchmarkID)
	assert.Equal(t, "Microsoft SQL Server 2022 STIG", p.BenchmarkTitle)

	require.Len(t, p.Results, 3)
	assert.Equal(t, database.CheckPass, p.Results[0].Status)
	assert.Equal(t, "low", p.Results[0].Severity)
	assert.Equal(t, database.CheckFail, p.Results[1].Status)
	assert.Equal(t, "bad", p.Results[1].Comments)

	// rule_id absent: falls back to group_id.
	assert.Equal(t, "V-12", p.Results[2].RuleID)
	assert.Equal(t, database.CheckNotReviewed, p.Results[2].Status)
}

func TestParseCKLBAlternateKeys(t *testing.T) {
	doc := `{
	  "target_data": {"hostname": "alt01", "host_ip": "192.168.1.3"},
	  "stigs": [{"benchmark_id": "ALT_STIG", "stig_name": "Alt STIG", "rules": []}]
	}`
	p, err := ParseCKLB([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "alt01", p.TargetName)
	assert.Equal(t, "192.168.1.3", p.TargetAddress)
	assert.Equal(t, "ALT_STIG", p.BenchmarkID)
	assert.Equal(t, "Alt STIG", p.BenchmarkTitle)
}

func TestParseCKLBMalformed(t *testing.T) {
	_, err := ParseCKLB([]byte("{not json"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseDispatch(t *testing.T) {
	byExt := map[string][]byte{
		"host.ckl":  []byte(sampleCKL),
		"host.cklb": []byte(sampleCKLB),
		"host.json": []byte(sampleCKLB),
		"host.xml":  []byte(sampleCKL),
	}
	for name, data := range byExt {
		p, err := Parse(data, name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, p.BenchmarkID, name)
	}

	// Unknown extension: sniff the leading byte.
	p, err := Parse([]byte(sampleCKLB), "upload.bin")
	require.NoError(t, err)
	assert.Equal(t, "MS_SQL_Server_2022_STIG", p.BenchmarkID)

	p, err = Parse([]byte(sampleCKL), "upload.bin")
	require.NoError(t, err)
	assert.Equal(t, "RHEL_9_STIG", p.BenchmarkID)
}
