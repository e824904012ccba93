package generic_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dagm95/CXinas-bakery-system/generic"
)

func TestAddMonthsClamped(t *testing.T) {
	cases := []struct {
		from string
		n    int
		want string
	}{
		{"2024-01-31", 1, "2024-02-29"}, // leap year
		{"2023-01-31", 1, "2023-02-28"},
		{"2024-03-31", 1, "2024-04-30"},
		{"2024-01-15", 1, "2024-02-15"},
		{"2024-12-31", 1, "2025-01-31"},
		{"2024-08-31", 6, "2025-02-28"},
	}
	for _, tc := range cases {
		got := generic.MustParseDate(tc.from).AddMonthsClamped(tc.n)
		assert.Equal(t, tc.want, got.String(), "%s + %d months", tc.from, tc.n)
	}
}

func TestDateOf_UsesLocation(t *testing.T) {
	// GIVEN: 23:30 UTC on Jan 7
	instant := time.Date(2024, time.January, 7, 23, 30, 0, 0, time.UTC)

	// WHEN/THEN: the day depends on the viewer's zone
	assert.Equal(t, "2024-01-07", generic.DateOf(instant, nil).String())

	eat := time.FixedZone("EAT", 3*60*60)
	assert.Equal(t, "2024-01-08", generic.DateOf(instant, eat).String())
}

func TestDate_JSONRoundTrip(t *testing.T) {
	type doc struct {
		Day  generic.Date `json:"day"`
		None generic.Date `json:"none"`
	}

	data, err := json.Marshal(doc{Day: generic.NewDate(2024, time.February, 29)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"2024-02-29","none":null}`, string(data))

	var back doc
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Day.Equal(generic.NewDate(2024, time.February, 29)))
	assert.True(t, back.None.IsZero())
}

func TestDate_UnmarshalAcceptsTimestamps(t *testing.T) {
	var d generic.Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-01-08T00:00:00.000Z"`), &d))
	assert.Equal(t, "2024-01-08", d.String())

	assert.Error(t, json.Unmarshal([]byte(`"08/01/2024"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`20240108`), &d))
}

func TestPeriod_InclusiveAndElapsedDays(t *testing.T) {
	week := generic.Period{Start: generic.MustParseDate("2024-01-01"), End: generic.MustParseDate("2024-01-07")}

	assert.Equal(t, 7, week.InclusiveDays())
	assert.Equal(t, 1, week.ElapsedDays(generic.MustParseDate("2024-01-01")), "same day counts as one")
	assert.Equal(t, 4, week.ElapsedDays(generic.MustParseDate("2024-01-04")))
	assert.Equal(t, 1, week.ElapsedDays(generic.MustParseDate("2023-12-20")), "before start clamps to start")
	assert.Equal(t, 7, week.ElapsedDays(generic.MustParseDate("2024-02-01")), "after end clamps to end")

	single := generic.Period{Start: week.Start, End: week.Start}
	assert.Equal(t, 1, single.InclusiveDays())

	inverted := generic.Period{Start: week.End, End: week.Start}
	assert.Equal(t, 0, inverted.InclusiveDays())
	assert.ErrorIs(t, inverted.Validate(), generic.ErrInvalidPeriod)
	assert.NoError(t, week.Validate())
}

func TestDaysBetween_AcrossMonthEnd(t *testing.T) {
	assert.Equal(t, 29, generic.DaysBetween(generic.MustParseDate("2024-01-31"), generic.MustParseDate("2024-02-29")))
	assert.Equal(t, -1, generic.DaysBetween(generic.MustParseDate("2024-03-01"), generic.MustParseDate("2024-02-29")))
	assert.Equal(t, "2024-02-29", generic.MustParseDate("2024-02-10").EndOfMonth().String())
}
