package importer

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amccray/stigward/internal/benchmark"
	"github.com/amccray/stigward/internal/database"
)

func newTestImporter(t *testing.T) (*Importer, *database.DB) {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, benchmark.Limits{}), db
}

const benchmarkDoc = `<Benchmark id="RHEL_9_STIG">
  <title>Red Hat Enterprise Linux 9 STIG</title>
  <version>V1R1</version>
  <Group id="g1">
    <Rule id="SV-1r1_rule" severity="high"><title>one</title></Rule>
    <Rule id="SV-2r1_rule" severity="low"><title>two</title></Rule>
  </Group>
</Benchmark>`

const checklistDoc = `<CHECKLIST>
  <ASSET><HOST_NAME>web01</HOST_NAME><HOST_IP>10.0.0.5</HOST_IP></ASSET>
  <STIGS><iSTIG>
    <STIG_INFO>
      <SI_DATA><SID_NAME>stigid</SID_NAME><SID_DATA>RHEL_9_STIG</SID_DATA></SI_DATA>
      <SI_DATA><SID_NAME>title</SID_NAME><SID_DATA>Red Hat Enterprise Linux 9 STIG</SID_DATA></SI_DATA>
    </STIG_INFO>
    <VULN>
      <STIG_DATA><VULN_ATTRIBUTE>Rule_ID</VULN_ATTRIBUTE><ATTRIBUTE_DATA>SV-1r1_rule</ATTRIBUTE_DATA></STIG_DATA>
      <STATUS>NotAFinding</STATUS>
    </VULN>
    <VULN>
      <STIG_DATA><VULN_ATTRIBUTE>Rule_ID</VULN_ATTRIBUTE><ATTRIBUTE_DATA>SV-2r1_rule</ATTRIBUTE_DATA></STIG_DATA>
      <STATUS>Open</STATUS>
    </VULN>
    <VULN>
      <STIG_DATA><VULN_ATTRIBUTE>Rule_ID</VULN_ATTRIBUTE><ATTRIBUTE_DATA></ATTRIBUTE_DATA></STIG_DATA>
      <STATUS>Open</STATUS>
    </VULN>
  </iSTIG></STIGS>
</CHECKLIST>`

func TestImportBenchmarkBareXML(t *testing.T) {
	im, db := newTestImporter(t)

	summary, err := im.ImportBenchmark([]byte(benchmarkDoc), "rhel9-xccdf.xml")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Zero(t, summary.ErrorCount)
	require.Len(t, summary.Entries, 1)
	assert.Equal(t, "RHEL_9_STIG", summary.Entries[0].BenchmarkID)
	assert.Equal(t, 2, summary.Entries[0].RuleCount)

	def, err := db.GetDefinitionByBenchmarkID("RHEL_9_STIG")
	require.NoError(t, err)
	require.NotNil(t, def)
	n, err := db.CountRulesByDefinition(def.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImportBenchmarkReimportReplaces(t *testing.T) {
	im, db := newTestImporter(t)

	_, err := im.ImportBenchmark([]byte(benchmarkDoc), "rhel9-xccdf.xml")
	require.NoError(t, err)
	def, err := db.GetDefinitionByBenchmarkID("RHEL_9_STIG")
	require.NoError(t, err)

	updated := `<Benchmark id="RHEL_9_STIG">
	  <title>Red Hat Enterprise Linux 9 STIG</title>
	  <version>V1R2</version>
	  <Group id="g1"><Rule id="SV-3r1_rule" severity="medium"><title>three</title></Rule></Group>
	</Benchmark>`
	_, err = im.ImportBenchmark([]byte(updated), "rhel9-xccdf.xml")
	require.NoError(t, err)

	// Same definition row, fully replaced rule set.
	def2, err := db.GetDefinitionByBenchmarkID("RHEL_9_STIG")
	require.NoError(t, err)
	assert.Equal(t, def.ID, def2.ID)
	assert.Equal(t, "V1R2", def2.Version)

	rules, err := db.GetRulesByDefinition(def.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "SV-3r1_rule", rules[0].RuleID)
}

func TestImportBenchmarkZip(t *testing.T) {
	im, _ := newTestImporter(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("rhel9-xccdf.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(benchmarkDoc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	summary, err := im.ImportBenchmark(buf.Bytes(), "rhel9.zip")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)
}

func TestImportBenchmarkLibraryPartialFailure(t *testing.T) {
	im, db := newTestImporter(t)

	inner := func(id string) []byte {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		w, err := zw.Create(id + "-xccdf.xml")
		require.NoError(t, err)
		doc := `<Benchmark id="` + id + `"><title>Bench ` + id + `</title></Benchmark>`
		_, err = w.Write([]byte(doc))
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		return buf.Bytes()
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range map[string][]byte{
		"a.zip": inner("bench-a"),
		"b.zip": inner("bench-b"),
		"c.zip": []byte("not a zip at all"),
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	summary, err := im.ImportBenchmark(buf.Bytes(), "library.zip")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 1, summary.ErrorCount)
	assert.Len(t, summary.Entries, 3)

	defs, err := db.ListDefinitions()
	require.NoError(t, err)
	assert.Len(t, defs, 2)
}

func TestImportBenchmarkInvalid(t *testing.T) {
	im, _ := newTestImporter(t)
	_, err := im.ImportBenchmark([]byte("garbage"), "junk.xml")
	assert.ErrorIs(t, err, benchmark.ErrInvalidFormat)
}

func TestImportBenchmarkDocumentLimit(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	im := New(db, benchmark.Limits{MaxDocumentBytes: 16})

	_, err = im.ImportBenchmark([]byte(benchmarkDoc), "rhel9-xccdf.xml")
	assert.ErrorIs(t, err, benchmark.ErrResourceLimit)
}

func TestImportChecklistCreatesTargetAndStub(t *testing.T) {
	im, db := newTestImporter(t)

	summary, err := im.ImportChecklist([]byte(checklistDoc), "web01.ckl")
	require.NoError(t, err)

	assert.True(t, summary.TargetCreated)
	assert.True(t, summary.DefinitionCreated)
	assert.Equal(t, "RHEL_9_STIG", summary.BenchmarkID)
	assert.Equal(t, 3, summary.TotalResults)
	// The empty Rule_ID row is skipped.
	assert.Equal(t, 2, summary.ImportedCount)

	target, err := db.GetTarget(summary.TargetID)
	require.NoError(t, err)
	assert.Equal(t, "web01", target.Name)
	assert.Equal(t, "10.0.0.5", target.Address)
	assert.NotNil(t, target.LastAuditAt)

	// Stub definition carries checklist metadata but no rules.
	def, err := db.GetDefinition(summary.DefinitionID)
	require.NoError(t, err)
	assert.Equal(t, stubDescription, def.Description)
	n, err := db.CountRulesByDefinition(def.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	job, err := db.GetAuditJob(summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCompleted, job.Status)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
}

func TestImportChecklistReusesExisting(t *testing.T) {
	im, db := newTestImporter(t)

	// Benchmark first, then the checklist references it.
	_, err := im.ImportBenchmark([]byte(benchmarkDoc), "rhel9-xccdf.xml")
	require.NoError(t, err)

	tgt := &database.Target{Name: "web01", Address: "10.0.0.5", ConnMeta: "{}", Active: true}
	require.NoError(t, db.CreateTarget(tgt))

	summary, err := im.ImportChecklist([]byte(checklistDoc), "web01.ckl")
	require.NoError(t, err)
	assert.False(t, summary.TargetCreated)
	assert.False(t, summary.DefinitionCreated)
	assert.Equal(t, tgt.ID, summary.TargetID)
}

func TestImportChecklistEmptyResultsStillTouchesTarget(t *testing.T) {
	im, db := newTestImporter(t)

	doc := `<CHECKLIST><ASSET><HOST_NAME>web01</HOST_NAME></ASSET>
	  <STIGS><iSTIG><STIG_INFO>
	    <SI_DATA><SID_NAME>stigid</SID_NAME><SID_DATA>EMPTY_STIG</SID_DATA></SI_DATA>
	  </STIG_INFO></iSTIG></STIGS></CHECKLIST>`

	summary, err := im.ImportChecklist([]byte(doc), "web01.ckl")
	require.NoError(t, err)
	assert.Zero(t, summary.TotalResults)
	assert.Zero(t, summary.ImportedCount)

	target, err := db.GetTarget(summary.TargetID)
	require.NoError(t, err)
	assert.NotNil(t, target.LastAuditAt)
}

func TestImportChecklistDerivesBenchmarkIDFromFilename(t *testing.T) {
	im, _ := newTestImporter(t)

	doc := `<CHECKLIST><ASSET><HOST_NAME>web01</HOST_NAME></ASSET></CHECKLIST>`
	summary, err := im.ImportChecklist([]byte(doc), "legacy_host.ckl")
	require.NoError(t, err)
	assert.Equal(t, "legacy_host", summary.BenchmarkID)
}
