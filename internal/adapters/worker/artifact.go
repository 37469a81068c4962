package worker

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/locushq/catchment-api/internal/domain/model"
)

// emptyGeoJSON marks rows that produced no geometry.
const emptyGeoJSON = "{}"

// BuildArtifact produces the result CSV: the input file in its original row
// order with two appended columns, geojson and errors. Failed rows keep
// their input fields, carry an empty geojson object and their failure
// messages, so row counts stay stable for the caller.
func BuildArtifact(content []byte, enriched []model.EnrichedRow, rowErrors []model.RowError) ([]byte, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	messages := make(map[int][]string, len(rowErrors))
	for _, re := range rowErrors {
		messages[re.Row] = append(messages[re.Row], re.Message)
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(append(header, "geojson", "errors")); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	rowNum := 0
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read row %d: %w", rowNum+1, readErr)
		}
		rowNum++

		geojson := emptyGeoJSON
		if rowNum <= len(enriched) && enriched[rowNum-1].GeoJSON != "" {
			geojson = enriched[rowNum-1].GeoJSON
		}

		if err := writer.Write(append(record, geojson, strings.Join(messages[rowNum], "; "))); err != nil {
			return nil, fmt.Errorf("write row %d: %w", rowNum, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush artifact: %w", err)
	}
	return buf.Bytes(), nil
}
