// Package domain models the NOAA StormEvents details dataset.
//
// # Data Source
//
// Rows originate from the NCEI StormEvents details CSV files, published at
// https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles as
// StormEvents_details-ftp_v1.0_d<year>_c<compiled>.csv.gz. The ETL downloads
// the latest compilation per year, normalizes the columns it needs, and
// writes a Parquet dataset partitioned by (year, event_type_part).
//
// # Conventions
//
// Timestamps:
//
//	BEGIN_DATE_TIME / END_DATE_TIME use "02-Jan-06 15:04:05" style values
//	(e.g. "01-Apr-23 14:30:00"). Times are local to the reporting zone;
//	the dataset stores them as naive timestamps, and the API compares them
//	as such.
//
// Magnitude:
//
//	Meaning depends on EVENT_TYPE (hail inches, wind knots/mph, EF number
//	embedded in TOR_F_SCALE). Unparseable or absent values become NULL,
//	never zero: zero is a measured value.
//
// Damage:
//
//	DAMAGE_PROPERTY keeps NOAA's suffix encoding ("10.00K", "1.2M") verbatim.
//
// Coordinates:
//
//	BEGIN_LAT/BEGIN_LON in WGS84 degrees. Many zone-level events carry no
//	coordinates; those rows have NULL latitude/longitude and are excluded by
//	bounding-box predicates but included otherwise.
//
// # Partitioning
//
// event_type_part is EVENT_TYPE lowercased with every non-alphanumeric run
// collapsed to "_" ("Thunderstorm Wind" -> "thunderstorm_wind"), so partition
// directories stay filesystem- and Hive-safe. Partitioning exists purely for
// file pruning; it carries no behavioral contract.
package domain
