package model

// Columns is the fixed input column set, in order.
var Columns = []string{"snp_id", "provider_id", "location_id", "location_gps", "drive_distance", "drive_time"}

// CatchmentMode selects which authoritative measure drives an enrichment call.
type CatchmentMode string

const (
	// ModeDriveDistance requests a drive-distance catchment.
	ModeDriveDistance CatchmentMode = "DRIVE_DISTANCE"
	// ModeDriveTime requests a drive-time catchment.
	ModeDriveTime CatchmentMode = "DRIVE_TIME"
)

// Row is one validated record of the uploaded table. Rows are transient:
// they are materialized by the validator, consumed by enrichment, and folded
// into the artifact or the error report within a single worker pass.
type Row struct {
	Number     int // 1-based data row number
	SnpID      string
	ProviderID string
	LocationID string

	// Latitude/Longitude are parsed from location_gps; the raw string is
	// kept so the artifact echoes the caller's input verbatim.
	GPSRaw    string
	Latitude  float64
	Longitude float64

	// Exactly one of these is authoritative; DriveDistance wins when both
	// are present and valid.
	DriveDistance *int
	DriveTime     *int
}

// Mode returns the authoritative catchment mode for the row.
func (r *Row) Mode() CatchmentMode {
	if r.DriveDistance != nil {
		return ModeDriveDistance
	}
	return ModeDriveTime
}

// ModeValue returns the integer value backing Mode.
func (r *Row) ModeValue() int {
	if r.DriveDistance != nil {
		return *r.DriveDistance
	}
	if r.DriveTime != nil {
		return *r.DriveTime
	}
	return 0
}

// EnrichedRow is a Row plus the geometry produced by the provider.
// It is owned by the worker for the duration of one job, written once to
// the artifact, and then released.
type EnrichedRow struct {
	Row
	GeoJSON string
}
