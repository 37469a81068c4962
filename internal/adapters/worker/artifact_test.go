package worker

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locushq/catchment-api/internal/domain/model"
)

const artifactInput = "snp_id,provider_id,location_id,location_gps,drive_distance,drive_time\n" +
	`s1,p1,L1,"12.3456,65.4321",100,` + "\n" +
	`s2,p2,L2,"13.3456,66.4321",,20` + "\n"

func parseArtifact(t *testing.T, artifact []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(artifact)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestBuildArtifactAppendsColumns(t *testing.T) {
	enriched := []model.EnrichedRow{
		{Row: model.Row{Number: 1}, GeoJSON: `{"type":"FeatureCollection"}`},
		{Row: model.Row{Number: 2}, GeoJSON: `{"type":"FeatureCollection"}`},
	}

	artifact, err := BuildArtifact([]byte(artifactInput), enriched, nil)
	require.NoError(t, err)

	records := parseArtifact(t, artifact)
	require.Len(t, records, 3)

	header := records[0]
	require.Len(t, header, 8)
	assert.Equal(t, "geojson", header[6])
	assert.Equal(t, "errors", header[7])

	assert.Equal(t, "s1", records[1][0])
	assert.Equal(t, `{"type":"FeatureCollection"}`, records[1][6])
	assert.Empty(t, records[1][7])
}

func TestBuildArtifactKeepsFailedRows(t *testing.T) {
	enriched := []model.EnrichedRow{
		{Row: model.Row{Number: 1}, GeoJSON: `{"ok":true}`},
		{}, // row 2 failed, no geometry
	}
	rowErrors := []model.RowError{
		{Row: 2, Message: "provider timeout"},
		{Row: 2, Message: "retry exhausted"},
	}

	artifact, err := BuildArtifact([]byte(artifactInput), enriched, rowErrors)
	require.NoError(t, err)

	records := parseArtifact(t, artifact)
	require.Len(t, records, 3)

	// Failed row keeps its input fields and gets the empty geometry marker.
	assert.Equal(t, "s2", records[2][0])
	assert.Equal(t, "{}", records[2][6])
	assert.Equal(t, "provider timeout; retry exhausted", records[2][7])

	assert.Equal(t, `{"ok":true}`, records[1][6])
	assert.Empty(t, records[1][7])
}

func TestBuildArtifactPreservesRowOrder(t *testing.T) {
	input := "a,b\n" + "r1,x\n" + "r2,x\n" + "r3,x\n"
	enriched := []model.EnrichedRow{
		{GeoJSON: "g1"},
		{GeoJSON: "g2"},
		{GeoJSON: "g3"},
	}

	artifact, err := BuildArtifact([]byte(input), enriched, nil)
	require.NoError(t, err)

	records := parseArtifact(t, artifact)
	require.Len(t, records, 4)
	for i, want := range []string{"g1", "g2", "g3"} {
		assert.Equal(t, want, records[i+1][2])
	}
}

func TestBuildArtifactUnreadableInput(t *testing.T) {
	_, err := BuildArtifact([]byte(""), nil, nil)
	require.Error(t, err)
}
