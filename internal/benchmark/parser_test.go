package benchmark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXCCDF = `<?xml version="1.0" encoding="UTF-8"?>
<xccdf:Benchmark xmlns:xccdf="http://checklists.nist.gov/xccdf/1.2" id="xccdf_mil.disa.stig_benchmark_RHEL_9_STIG">
  <xccdf:status date="2024-01-10">accepted</xccdf:status>
  <xccdf:title>Red Hat Enterprise Linux 9 Security Technical Implementation Guide</xccdf:title>
  <xccdf:description>This guide covers RHEL 9.</xccdf:description>
  <xccdf:plain-text id="release-info">Release: 1 Benchmark Date: 24 Jan 2024</xccdf:plain-text>
  <xccdf:version>V1R1</xccdf:version>
  <xccdf:Group id="V-257777">
    <xccdf:title>SRG-OS-000480</xccdf:title>
    <xccdf:Rule id="SV-257777r925318_rule" severity="high">
      <xccdf:title>RHEL 9 must be a vendor-supported release.</xccdf:title>
      <xccdf:description>An operating system release is considered supported...</xccdf:description>
      <xccdf:fixtext>Upgrade to a supported version.</xccdf:fixtext>
      <xccdf:check system="C-61518r925317_chk">
        <xccdf:check-content>Verify the version: cat /etc/redhat-release</xccdf:check-content>
      </xccdf:check>
    </xccdf:Rule>
    <xccdf:Group id="V-257778">
      <xccdf:Rule id="SV-257778r925321_rule" severity="CAT II">
        <xccdf:title>RHEL 9 vendor packaged system security patches must be installed.</xccdf:title>
      </xccdf:Rule>
    </xccdf:Group>
  </xccdf:Group>
</xccdf:Benchmark>`

func TestParseBenchmark(t *testing.T) {
	def, rules, err := ParseBenchmark([]byte(sampleXCCDF), "rhel9-xccdf.xml")
	require.NoError(t, err)

	assert.Equal(t, "xccdf_mil.disa.stig_benchmark_RHEL_9_STIG", def.BenchmarkID)
	assert.Equal(t, "Red Hat Enterprise Linux 9 Security Technical Implementation Guide", def.Title)
	assert.Equal(t, "V1R1", def.Version)
	assert.Equal(t, "2024-01-24", def.ReleaseDate)
	assert.Equal(t, "rhel", def.Platform)
	assert.Equal(t, sampleXCCDF, def.Source)

	require.Len(t, rules, 2)
	assert.Equal(t, "SV-257777r925318_rule", rules[0].RuleID)
	assert.Equal(t, "high", rules[0].Severity)
	assert.Contains(t, rules[0].CheckText, "cat /etc/redhat-release")
	assert.Equal(t, "Upgrade to a supported version.", rules[0].FixText)

	// Nested groups still yield their rules, and CAT codes normalize.
	assert.Equal(t, "SV-257778r925321_rule", rules[1].RuleID)
	assert.Equal(t, "medium", rules[1].Severity)
}

func TestParseBenchmarkNamespaceVariants(t *testing.T) {
	// Same document, different or absent namespace prefixes.
	variants := map[string]string{
		"no prefix": `<Benchmark id="bench-1"><title>Ubuntu 22.04 STIG</title>
			<Group id="g1"><Rule id="r1" severity="low"><title>A rule</title></Rule></Group></Benchmark>`,
		"cdf prefix": `<cdf:Benchmark xmlns:cdf="http://checklists.nist.gov/xccdf/1.1" id="bench-1">
			<cdf:title>Ubuntu 22.04 STIG</cdf:title>
			<cdf:Group id="g1"><cdf:Rule id="r1" severity="low"><cdf:title>A rule</cdf:title></cdf:Rule></cdf:Group>
			</cdf:Benchmark>`,
	}

	for name, doc := range variants {
		t.Run(name, func(t *testing.T) {
			def, rules, err := ParseBenchmark([]byte(doc), "upload.xml")
			require.NoError(t, err)
			assert.Equal(t, "bench-1", def.BenchmarkID)
			assert.Equal(t, "Ubuntu 22.04 STIG", def.Title)
			assert.Equal(t, "ubuntu", def.Platform)
			require.Len(t, rules, 1)
			assert.Equal(t, "low", rules[0].Severity)
		})
	}
}

func TestParseBenchmarkIDFromFilename(t *testing.T) {
	doc := `<Benchmark><title>Something</title></Benchmark>`
	def, _, err := ParseBenchmark([]byte(doc), "U_MS_Windows_11_STIG_V1R5_Manual-xccdf.xml")
	require.NoError(t, err)
	assert.Equal(t, "U_MS_Windows_11_STIG_V1R5_Manual", def.BenchmarkID)
}

func TestParseBenchmarkInvalid(t *testing.T) {
	_, _, err := ParseBenchmark([]byte("not xml at all"), "junk.xml")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestParseBenchmarkStatusDateFallback(t *testing.T) {
	doc := `<Benchmark id="b1"><status date="2023-06-08">accepted</status><title>T</title></Benchmark>`
	def, _, err := ParseBenchmark([]byte(doc), "b.xml")
	require.NoError(t, err)
	assert.Equal(t, "2023-06-08", def.ReleaseDate)
}

func TestParseBenchmarkTruncatesDescription(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	doc := `<Benchmark id="b1"><title>T</title><description>` + string(long) + `</description></Benchmark>`
	def, _, err := ParseBenchmark([]byte(doc), "b.xml")
	require.NoError(t, err)
	assert.Len(t, def.Description, maxDescriptionLen)
}
