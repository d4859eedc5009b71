// Package domain models railway temporary speed restriction (LTV) records and
// the statistics derived from them.
//
// # Data Source
//
// An upstream scraper observes the infrastructure manager's list of active
// speed restrictions on a schedule and merges every observation into a single
// JSON document keyed by line name:
//
//	{
//	  "L100": [ { "code": "A1", "speed": "30", "lastSeen": "2024-02-01", ... } ],
//	  "L200": [ ... ]
//	}
//
// The key order of that document is significant: it is the order the
// dashboards list lines in, so [Dataset] decodes it token by token instead of
// into a map.
//
// # Field Conventions
//
// Numeric fields arrive as strings and are not always clean:
//
//	speed:   "30", "30 km/h", "N/A", ""
//	startKm: "10", "12.5", "12.500 (var.)"
//
// Parsing takes the leading decimal literal of the string and degrades to 0
// when there is none, so one malformed record never fails a load. See
// [parseNumber].
//
// Dates are ISO-8601 calendar dates ("2006-01-02") and are compared as
// strings, which orders them chronologically.
//
//	firstAppearanceDate: the snapshot date the restriction was first observed.
//	lastSeen:            the most recent snapshot date it was still listed.
//
// # Activity
//
// A record is active when its lastSeen equals the newest lastSeen anywhere in
// the dataset: it was still listed in the most recent snapshot. Every other
// record has been lifted. Because the reference date is global, [Flatten]
// computes it in a dedicated pass ([MaxLastSeen]) before deriving any record.
//
// # Speed Categories
//
//	<=30 km/h critical | <=60 low | <=80 medium | <=120 high | else reduced
//
// A record with no parseable speed has speedNum 0 and therefore counts as
// critical, matching how the dashboards have always reported it.
//
// # Timeline
//
// The first snapshot date contains the whole historical backlog rather than
// restrictions that were new that day, so it is excluded from the timeline but
// still serves as the previous date when counting restrictions resolved before
// the second snapshot. See [ComputeStats].
package domain
