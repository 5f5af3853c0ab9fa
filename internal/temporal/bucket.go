package temporal

import (
	"slices"
	"time"

	"cloud.google.com/go/civil"

	"github.com/sakif/attendance-ledger/internal/model"
)

// Bucket groups events by the local date of their EventTime in loc.
//
// Every date of r gets a bucket, empty or not, so callers can render a
// calendar without filling gaps. Events outside r are dropped. Within a
// bucket events are ascending in model.CompareEvents order.
//
// Bucketing classifies single events only. A clockOut just after midnight
// lands in the next date's bucket even when its clockIn was the day before;
// attributing the session is the reconciler's job.
func Bucket(events []model.AttendanceEvent, loc *time.Location, r DateRange) []model.DayBucket {
	sorted := slices.Clone(events)
	slices.SortFunc(sorted, model.CompareEvents)

	buckets := make([]model.DayBucket, 0, r.Days())
	index := make(map[civil.Date]int, r.Days())
	for _, d := range r.Dates() {
		index[d] = len(buckets)
		buckets = append(buckets, model.DayBucket{Date: d, Events: []model.AttendanceEvent{}})
	}

	for _, e := range sorted {
		i, ok := index[LocalDate(e.EventTime, loc)]
		if !ok {
			continue
		}
		buckets[i].Events = append(buckets[i].Events, e)
	}
	return buckets
}
