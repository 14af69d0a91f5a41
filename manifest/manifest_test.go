package manifest

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `<?xml version="1.0" encoding="UTF-8"?>
<dataSetManifest timestamp="2024-01-01T00:00:00.123456Z" sequenceId="5">
  <entry name="beneficiaries.rif" type="BENEFICIARY"/>
  <entry name="carrier.rif" type="CARRIER"/>
  <entry name="pde.rif" type="PDE"/>
</dataSetManifest>`

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleManifest), PrefixPendingManifests)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01T00:00:00.123456Z", m.Id.TimestampText)
	assert.Equal(t, 5, m.Id.SequenceId)
	assert.False(t, m.SyntheticData)
	assert.Nil(t, m.EndState)
	require.Len(t, m.Entries, 3)
	assert.Equal(t, Entry{Name: "beneficiaries.rif", Type: FileTypeBeneficiary}, m.Entries[0])
	assert.Equal(t, Entry{Name: "carrier.rif", Type: FileTypeCarrier}, m.Entries[1])
	assert.Equal(t, Entry{Name: "pde.rif", Type: FileTypePDE}, m.Entries[2])
}

func TestParsePreservesTimestampText(t *testing.T) {
	// The text must survive verbatim, including sub-second precision that
	// time.Time formatting would alter.
	m, err := Parse(strings.NewReader(sampleManifest), PrefixPendingManifests)
	require.NoError(t, err)
	assert.Equal(t, "Incoming/2024-01-01T00:00:00.123456Z/5_manifest.xml", m.ManifestKey())
}

func TestParseRejectsUnknownFileType(t *testing.T) {
	doc := `<dataSetManifest timestamp="2024-01-01T00:00:00Z" sequenceId="1">
  <entry name="x.rif" type="NOT_A_TYPE"/>
</dataSetManifest>`
	_, err := Parse(strings.NewReader(doc), PrefixPendingManifests)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown file type")
}

func TestParseSyntheticWithEndState(t *testing.T) {
	doc := `<dataSetManifest timestamp="2024-02-02T10:30:00Z" sequenceId="0" syntheticData="true">
  <entry name="bene.rif" type="BENEFICIARY"/>
  <preValidationProperties>
    <clm_grp_id_start>-100</clm_grp_id_start>
    <pde_id_start>-200</pde_id_start>
    <carr_clm_cntl_num_start>-300</carr_clm_cntl_num_start>
    <fi_doc_cntl_num_start>-400</fi_doc_cntl_num_start>
    <hicn_start>T01000000A</hicn_start>
    <bene_id_start>-500</bene_id_start>
    <clm_id_start>-600</clm_id_start>
    <mbi_start>1S00E00AA00</mbi_start>
    <bene_id_end>-550</bene_id_end>
    <clm_id_end>-650</clm_id_end>
    <pde_id_end>-250</pde_id_end>
    <generated>2024-02-01T00:00:00Z</generated>
  </preValidationProperties>
</dataSetManifest>`
	m, err := Parse(strings.NewReader(doc), PrefixPendingSyntheticManifests)
	require.NoError(t, err)
	assert.True(t, m.SyntheticData)
	require.NotNil(t, m.EndState)
	assert.True(t, m.EndState.Valid())
	assert.Equal(t, int64(-500), m.EndState.BeneIdStart)
}

func TestSyntheaEndStateValidity(t *testing.T) {
	valid := &SyntheaEndState{
		ClmGrpIdStart:       -1,
		PdeIdStart:          -1,
		CarrClmCntlNumStart: -1,
		HicnStart:           "T01000000A",
		BeneIdStart:         -1,
		ClmIdStart:          -1,
		MbiStart:            "1S00E00AA00",
		BeneIdEnd:           -2,
		ClmIdEnd:            -2,
		PdeIdEnd:            -2,
	}
	assert.True(t, valid.Valid())

	nonNegative := *valid
	nonNegative.BeneIdStart = 1
	assert.False(t, nonNegative.Valid())

	missingHash := *valid
	missingHash.MbiStart = ""
	assert.False(t, missingHash.Valid())

	var nilState *SyntheaEndState
	assert.False(t, nilState.Valid())
}

func TestParseManifestKey(t *testing.T) {
	id, prefix, err := ParseManifestKey("Incoming/2024-01-01T00:00:00Z/5_manifest.xml")
	require.NoError(t, err)
	assert.Equal(t, PrefixPendingManifests, prefix)
	assert.Equal(t, "2024-01-01T00:00:00Z", id.TimestampText)
	assert.Equal(t, 5, id.SequenceId)

	id, prefix, err = ParseManifestKey("Synthetic/Incoming/2024-03-01T12:00:00Z/0_manifest.xml")
	require.NoError(t, err)
	assert.Equal(t, PrefixPendingSyntheticManifests, prefix)
	assert.Equal(t, 0, id.SequenceId)

	_, _, err = ParseManifestKey("Incoming/2024-01-01T00:00:00Z/manifest.xml")
	assert.Error(t, err)
	_, _, err = ParseManifestKey("Done/2024-01-01T00:00:00Z/5_manifest.xml")
	assert.Error(t, err)
	_, _, err = ParseManifestKey("Incoming/2024-01-01T00:00:00Z/5_manifest.xml.bak")
	assert.Error(t, err)
}

func TestIDOrdering(t *testing.T) {
	mustID := func(ts string, seq int) ID {
		id, err := NewID(ts, seq)
		require.NoError(t, err)
		return id
	}

	ids := []ID{
		mustID("2024-01-02T00:00:00Z", 1),
		mustID("2024-01-01T00:00:00Z", 9),
		mustID("2024-01-01T00:00:00Z", 2),
		mustID("2023-12-31T23:59:59Z", 100),
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	assert.Equal(t, "2023-12-31T23:59:59Z", ids[0].TimestampText)
	assert.Equal(t, 2, ids[1].SequenceId)
	assert.Equal(t, 9, ids[2].SequenceId)
	assert.Equal(t, "2024-01-02T00:00:00Z", ids[3].TimestampText)
}

func TestEntryKeys(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleManifest), PrefixPendingManifests)
	require.NoError(t, err)

	e := m.Entries[0]
	assert.Equal(t, "Incoming/2024-01-01T00:00:00.123456Z/beneficiaries.rif", m.EntryKey(e))
	assert.Equal(t, "Done/2024-01-01T00:00:00.123456Z/beneficiaries.rif", m.CompletedEntryKey(e))
	assert.Equal(t, "Done/2024-01-01T00:00:00.123456Z/5_manifest.xml", m.CompletedManifestKey())
}

func TestCompletedPrefix(t *testing.T) {
	assert.Equal(t, PrefixCompletedManifests, CompletedPrefix(PrefixPendingManifests))
	assert.Equal(t, PrefixCompletedSyntheticManifests, CompletedPrefix(PrefixPendingSyntheticManifests))
}
