package temporal

import (
	"testing"
	"time"
	_ "time/tzdata"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/model"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

// =========================================================================
// ZONE REGISTRY
// =========================================================================

func TestZoneRegistry(t *testing.T) {
	r, err := NewZoneRegistry("America/New_York", []string{"UTC", " Asia/Kolkata ", "UTC"})
	require.NoError(t, err)

	assert.Equal(t, []string{"America/New_York", "Asia/Kolkata", "UTC"}, r.Names())

	name, loc := r.Organization()
	assert.Equal(t, "America/New_York", name)
	assert.Equal(t, "America/New_York", loc.String())

	got, err := r.Lookup("Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", got.String())

	_, err = r.Lookup("Europe/Paris")
	assert.ErrorIs(t, err, apperror.ErrValidation, "loadable but unregistered zones are rejected")
}

func TestNewZoneRegistry_Errors(t *testing.T) {
	tests := []struct {
		name    string
		org     string
		allowed []string
	}{
		{"missing org zone", "", []string{"UTC"}},
		{"unknown zone", "UTC", []string{"Mars/Olympus_Mons"}},
		{"local zone", "UTC", []string{"Local"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewZoneRegistry(tt.org, tt.allowed)
			assert.Error(t, err)
		})
	}
}

// =========================================================================
// DATE RANGES AND BOUNDS
// =========================================================================

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("2024-03-01", "2024-03-03")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Days())
	assert.Equal(t, []civil.Date{date(2024, 3, 1), date(2024, 3, 2), date(2024, 3, 3)}, r.Dates())
	assert.True(t, r.Contains(date(2024, 3, 2)))
	assert.False(t, r.Contains(date(2024, 3, 4)))

	single, err := ParseDateRange("2024-03-01", "")
	require.NoError(t, err)
	assert.Equal(t, SingleDay(date(2024, 3, 1)), single)
}

func TestParseDateRange_Invalid(t *testing.T) {
	for _, tc := range [][2]string{
		{"yesterday", ""},
		{"2024-03-01", "2024-13-01"},
		{"2024-03-02", "2024-03-01"},
		{"2024-01-01", "2025-06-01"},
	} {
		_, err := ParseDateRange(tc[0], tc[1])
		assert.ErrorIs(t, err, apperror.ErrValidation, "%v", tc)
	}
}

func TestBounds_FollowDST(t *testing.T) {
	ny := mustLoad(t, "America/New_York")

	tests := []struct {
		name string
		day  civil.Date
		want time.Duration
	}{
		{"ordinary day", date(2024, 3, 1), 24 * time.Hour},
		{"spring forward", date(2024, 3, 10), 23 * time.Hour},
		{"fall back", date(2024, 11, 3), 25 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := Bounds(ny, SingleDay(tt.day))
			assert.Equal(t, tt.want, to.Sub(from))
			assert.Equal(t, 0, from.In(ny).Hour())
			assert.Equal(t, tt.day, LocalDate(from, ny))
		})
	}
}

func TestMidnight_NonexistentMidnight(t *testing.T) {
	// Chile moved clocks from 00:00 to 01:00 on 2024-09-08.
	santiago := mustLoad(t, "America/Santiago")
	d := date(2024, 9, 8)

	m := Midnight(d, santiago)
	assert.Equal(t, d, LocalDate(m, santiago))
	assert.Equal(t, 1, m.In(santiago).Hour())
	assert.Equal(t, date(2024, 9, 7), LocalDate(m.Add(-time.Nanosecond), santiago))
}

func TestLocalDate_DependsOnZoneNotOffset(t *testing.T) {
	instant := time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)
	assert.Equal(t, date(2024, 2, 29), LocalDate(instant, mustLoad(t, "America/New_York")))
	assert.Equal(t, date(2024, 3, 1), LocalDate(instant, mustLoad(t, "Asia/Kolkata")))

	// Same instant with a different submitted offset maps to the same date.
	shifted := instant.In(time.FixedZone("", 9*3600))
	assert.Equal(t, LocalDate(instant, time.UTC), LocalDate(shifted, time.UTC))
}

// =========================================================================
// BUCKETING
// =========================================================================

func ev(id string, at time.Time) model.AttendanceEvent {
	return model.AttendanceEvent{ID: id, EventType: model.EventClockIn, EventTime: at, RecordedAt: at, CreatedAt: at}
}

func TestBucket(t *testing.T) {
	ny := mustLoad(t, "America/New_York")
	r := DateRange{Start: date(2024, 2, 29), End: date(2024, 3, 2)}

	events := []model.AttendanceEvent{
		ev("late", time.Date(2024, 3, 1, 4, 30, 0, 0, time.UTC)),   // Feb 29 23:30 local
		ev("morning", time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)), // Mar 1 09:00 local
		ev("early", time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)),   // Mar 1 08:00 local
		ev("outside", time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)),
	}

	buckets := Bucket(events, ny, r)
	require.Len(t, buckets, 3)

	assert.Equal(t, date(2024, 2, 29), buckets[0].Date)
	require.Len(t, buckets[0].Events, 1)
	assert.Equal(t, "late", buckets[0].Events[0].ID)

	require.Len(t, buckets[1].Events, 2)
	assert.Equal(t, "early", buckets[1].Events[0].ID)
	assert.Equal(t, "morning", buckets[1].Events[1].ID)

	assert.NotNil(t, buckets[2].Events)
	assert.Empty(t, buckets[2].Events)
}

func TestBucket_Deterministic(t *testing.T) {
	kolkata := mustLoad(t, "Asia/Kolkata")
	e := ev("x", time.Date(2024, 3, 1, 18, 29, 59, 0, time.UTC)) // 23:59:59 IST
	r := DateRange{Start: date(2024, 3, 1), End: date(2024, 3, 2)}

	for range 5 {
		buckets := Bucket([]model.AttendanceEvent{e}, kolkata, r)
		assert.Len(t, buckets[0].Events, 1)
		assert.Empty(t, buckets[1].Events)
	}
}
