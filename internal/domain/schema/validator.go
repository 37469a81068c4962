// Package schema implements the pure CSV schema validator for catchment
// uploads. It performs no I/O: raw bytes in, ordered rows or an ordered,
// exhaustive list of row errors out.
package schema

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/locushq/catchment-api/internal/domain/model"
)

// Limits carries the file-level caps applied during validation. The gateway
// enforces the same caps before a job is created; the validator re-checks so
// the worker never trusts the transport layer.
type Limits struct {
	MaxFileBytes int64
	MaxRows      int
}

// DefaultLimits mirrors the upload gate defaults.
func DefaultLimits() Limits {
	return Limits{MaxFileBytes: 2 * 1024 * 1024, MaxRows: 1000}
}

const (
	maxIDLength      = 255
	minGPSDecimals   = 4
	maxDriveDistance = 100000
	maxDriveTime     = 10000
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]+$`)

// Result is the outcome of one validation pass. Errors is ordered by row
// number then rule order; any entry at all means the whole file is rejected.
type Result struct {
	Rows   []model.Row
	Errors []model.RowError

	// RowCount is the number of data records parsed, zero when the file
	// never parsed far enough to count.
	RowCount int
}

// OK reports whether the file passed with no violations.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Validate parses and validates raw CSV bytes. All violations are collected,
// not short-circuited, so the caller gets a complete error report in one
// pass. File-level violations are reported against row 0.
func Validate(raw []byte, limits Limits) Result {
	var res Result

	if limits.MaxFileBytes > 0 && int64(len(raw)) > limits.MaxFileBytes {
		res.fileError("file exceeds %d bytes", limits.MaxFileBytes)
		return res
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		res.fileError("CSV file is empty")
		return res
	}

	header, records, err := parseCSV(raw)
	if err != nil {
		res.fileError("failed to parse CSV: %v", err)
		return res
	}

	res.RowCount = len(records)

	colIdx, missing := mapColumns(header)
	if len(missing) > 0 {
		res.fileError("missing columns: %s", strings.Join(missing, ", "))
		return res
	}

	if limits.MaxRows > 0 && len(records) > limits.MaxRows {
		res.fileError("CSV file has too many rows (max %d)", limits.MaxRows)
		return res
	}
	if len(records) == 0 {
		res.fileError("CSV file has no data rows")
		return res
	}

	res.Rows = make([]model.Row, 0, len(records))
	for i, record := range records {
		row, rowErrs := validateRecord(i+1, record, colIdx)
		if len(rowErrs) > 0 {
			res.Errors = append(res.Errors, rowErrs...)
			continue
		}
		res.Rows = append(res.Rows, row)
	}

	res.Errors = append(res.Errors, checkDuplicates(records, colIdx)...)
	sortRowErrors(res.Errors)

	if len(res.Errors) > 0 {
		res.Rows = nil
	}
	return res
}

func (r *Result) fileError(format string, args ...any) {
	r.Errors = append(r.Errors, model.RowError{Row: 0, Message: fmt.Sprintf(format, args...)})
}

func parseCSV(raw []byte) ([]string, [][]string, error) {
	reader := csv.NewReader(bytes.NewReader(raw))
	reader.TrimLeadingSpace = false
	// Ragged rows are a parse failure, not a row error: the column mapping
	// below is meaningless once field counts disagree with the header.
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var records [][]string
	for {
		record, readErr := reader.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, nil, readErr
		}
		records = append(records, record)
	}
	return header, records, nil
}

// mapColumns resolves header names to field indexes and reports any of the
// six required columns that are absent. Extra columns are tolerated and
// ignored, matching the provider template's behaviour.
func mapColumns(header []string) (map[string]int, []string) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}

	var missing []string
	for _, col := range model.Columns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	return idx, missing
}

func field(record []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func validateRecord(number int, record []string, colIdx map[string]int) (model.Row, []model.RowError) {
	var errs []model.RowError
	addErr := func(format string, args ...any) {
		errs = append(errs, model.RowError{Row: number, Message: fmt.Sprintf(format, args...)})
	}

	row := model.Row{Number: number}

	row.SnpID = validateID("snp_id", field(record, colIdx, "snp_id"), addErr)
	row.ProviderID = validateID("provider_id", field(record, colIdx, "provider_id"), addErr)
	row.LocationID = validateID("location_id", field(record, colIdx, "location_id"), addErr)

	row.GPSRaw = strings.TrimSpace(field(record, colIdx, "location_gps"))
	lat, lon, gpsErrs := validateGPS(row.GPSRaw)
	for _, msg := range gpsErrs {
		addErr("%s", msg)
	}
	row.Latitude, row.Longitude = lat, lon

	row.DriveDistance, row.DriveTime = validateDrive(
		field(record, colIdx, "drive_distance"),
		field(record, colIdx, "drive_time"),
		addErr,
	)

	return row, errs
}

func validateID(name, raw string, addErr func(string, ...any)) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		addErr("%s must be a non-empty string", name)
		return ""
	}
	if raw != trimmed {
		addErr("%s must not have leading/trailing whitespace", name)
	}
	if len(trimmed) > maxIDLength {
		addErr("%s must be at most %d characters", name, maxIDLength)
		return trimmed
	}
	if !idPattern.MatchString(trimmed) {
		addErr("%s contains invalid characters", name)
	}
	return trimmed
}

// validateGPS checks "lat,lon" with at least four decimal digits per
// component and inclusive range bounds. Decimal precision is checked on the
// textual form, before parsing, so out-of-range values with short decimals
// still report the precision violation.
func validateGPS(raw string) (float64, float64, []string) {
	const formatMsg = "location_gps must be two comma-separated decimals, each with at least 4 decimal places"

	if raw == "" {
		return 0, 0, []string{"location_gps must be a non-empty string"}
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, []string{formatMsg}
	}

	latStr := strings.TrimSpace(parts[0])
	lonStr := strings.TrimSpace(parts[1])

	var msgs []string
	if decimalDigits(latStr) < minGPSDecimals || decimalDigits(lonStr) < minGPSDecimals {
		msgs = append(msgs, formatMsg)
	}

	lat, latErr := strconv.ParseFloat(latStr, 64)
	lon, lonErr := strconv.ParseFloat(lonStr, 64)
	if latErr != nil || lonErr != nil {
		return 0, 0, append(msgs, formatMsg)
	}

	if lat < -90 || lat > 90 {
		msgs = append(msgs, "latitude in location_gps must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		msgs = append(msgs, "longitude in location_gps must be between -180 and 180")
	}
	return lat, lon, msgs
}

func decimalDigits(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}

// validateDrive enforces the presence and bounds rules for the two drive
// fields and returns the parsed values. Both may come back non-nil; the
// row's Mode() gives drive_distance precedence.
func validateDrive(distRaw, timeRaw string, addErr func(string, ...any)) (*int, *int) {
	distPresent := strings.TrimSpace(distRaw) != ""
	timePresent := strings.TrimSpace(timeRaw) != ""

	if !distPresent && !timePresent {
		addErr("either drive_distance or drive_time must be provided and non-empty")
		return nil, nil
	}

	var dist, driveTime *int
	if distPresent {
		dist = validatePositiveInt("drive_distance", distRaw, maxDriveDistance, addErr)
	}
	if timePresent {
		driveTime = validatePositiveInt("drive_time", timeRaw, maxDriveTime, addErr)
	}
	return dist, driveTime
}

// validatePositiveInt accepts integers and decimals ("500.0", "500.5"),
// truncating the fractional part, per the upload template's tolerance.
func validatePositiveInt(name, raw string, maxValue int, addErr func(string, ...any)) *int {
	trimmed := strings.TrimSpace(raw)

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		f, ferr := strconv.ParseFloat(trimmed, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			addErr("%s must be an integer if present", name)
			return nil
		}
		value = int(math.Trunc(f))
	}

	if value <= 0 {
		addErr("%s must be a positive integer", name)
		return nil
	}
	if value > maxValue {
		addErr("%s is unreasonably large (max %d)", name, maxValue)
		return nil
	}
	return &value
}

// checkDuplicates reports byte-identical rows (after per-field trimming) and
// duplicate location_id values. Every offending row number is reported, the
// first occurrence included, so callers see the full collision set.
func checkDuplicates(records [][]string, colIdx map[string]int) []model.RowError {
	rowKey := func(record []string) string {
		parts := make([]string, 0, len(model.Columns))
		for _, col := range model.Columns {
			parts = append(parts, strings.TrimSpace(field(record, colIdx, col)))
		}
		return strings.Join(parts, "\x1f")
	}

	byContent := make(map[string][]int)
	byLocation := make(map[string][]int)
	for i, record := range records {
		number := i + 1
		key := rowKey(record)
		byContent[key] = append(byContent[key], number)
		if loc := strings.TrimSpace(field(record, colIdx, "location_id")); loc != "" {
			byLocation[loc] = append(byLocation[loc], number)
		}
	}

	var errs []model.RowError
	for _, numbers := range byContent {
		if len(numbers) < 2 {
			continue
		}
		for _, n := range numbers {
			errs = append(errs, model.RowError{Row: n, Message: "duplicate row"})
		}
	}
	for loc, numbers := range byLocation {
		if len(numbers) < 2 {
			continue
		}
		for _, n := range numbers {
			errs = append(errs, model.RowError{
				Row:     n,
				Message: fmt.Sprintf("duplicate location_id %q", loc),
			})
		}
	}

	sortRowErrors(errs)
	return errs
}

func sortRowErrors(errs []model.RowError) {
	// insertion sort keeps equal-row errors in rule order without pulling
	// in a comparator helper for a handful of entries
	for i := 1; i < len(errs); i++ {
		for j := i; j > 0 && errs[j].Row < errs[j-1].Row; j-- {
			errs[j], errs[j-1] = errs[j-1], errs[j]
		}
	}
}
