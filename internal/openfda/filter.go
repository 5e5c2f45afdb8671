package openfda

import "time"

// FilterByWindow trims a table to records whose canonical date falls within
// the last months*30 days, inclusive of the cutoff instant. Sources without
// a date field pass through unchanged; records with missing or unparseable
// dates are excluded. Idempotent: filtering a filtered table by the same
// window is a no-op.
func FilterByWindow(table SourceTable, kind SourceKind, months int) SourceTable {
	return filterByWindowAt(table, kind, months, time.Now())
}

func filterByWindowAt(table SourceTable, kind SourceKind, months int, now time.Time) SourceTable {
	field := DateField(kind)
	if field == "" || months <= 0 {
		return table
	}
	cutoff := now.Add(-time.Duration(months) * 30 * 24 * time.Hour)

	out := table
	out.Records = make([]RawRecord, 0, len(table.Records))
	for _, rec := range table.Records {
		ts, ok := ParseDate(rec.String(field))
		if !ok {
			continue
		}
		if !ts.Before(cutoff) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}
