package calendar

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
	_ "time/tzdata"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := LoadDisplayLocation(name)
	if err != nil {
		t.Fatalf("LoadDisplayLocation(%q): %v", name, err)
	}
	return loc
}

func at(t time.Time) *time.Time { return &t }

func intPtr(n int) *int { return &n }

// fixedNow pins IsToday for deterministic grids.
func fixedNow(t time.Time) Option {
	return WithNow(func() time.Time { return t })
}

// TestWeekRange_MondayFirst checks every weekday of a span of dates.
func TestWeekRange_MondayFirst(t *testing.T) {
	loc := mustLoc(t, "Asia/Singapore")
	start := time.Date(2023, 12, 20, 9, 0, 0, 0, loc)
	for i := 0; i < 800; i++ {
		ref := start.AddDate(0, 0, i)
		days := WeekRange(ref, loc)
		if len(days) != WeekCells {
			t.Fatalf("%s: got %d days, want 7", ref, len(days))
		}
		if days[0].Weekday() != time.Monday {
			t.Fatalf("%s: first day %s is %s, want Monday", ref, days[0], days[0].Weekday())
		}
		refDate := DateOf(ref, loc)
		found := false
		for j, d := range days {
			if j > 0 && d != days[j-1].AddDays(1) {
				t.Fatalf("%s: days not consecutive at %d", ref, j)
			}
			if d == refDate {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: reference date not in week %v", ref, days)
		}
	}
}

// TestWeekRange_SundayEndsWeek verifies Sunday maps to the end of the week.
func TestWeekRange_SundayEndsWeek(t *testing.T) {
	loc := mustLoc(t, "Asia/Singapore")
	sunday := time.Date(2026, 2, 1, 10, 0, 0, 0, loc)
	days := WeekRange(sunday, loc)
	if got := days[0].String(); got != "2026-01-26" {
		t.Errorf("first day = %s, want 2026-01-26", got)
	}
	if got := days[6].String(); got != "2026-02-01" {
		t.Errorf("last day = %s, want 2026-02-01", got)
	}
}

// TestWeekRange_UsesDisplayZone verifies the reference instant is read in loc.
func TestWeekRange_UsesDisplayZone(t *testing.T) {
	loc := mustLoc(t, "Asia/Singapore")
	// Sunday 2026-02-01 16:30 UTC is Monday 2026-02-02 00:30 in Singapore.
	ref := time.Date(2026, 2, 1, 16, 30, 0, 0, time.UTC)
	days := WeekRange(ref, loc)
	if got := days[0].String(); got != "2026-02-02" {
		t.Errorf("first day = %s, want 2026-02-02", got)
	}
}

// TestMonthRange_Shape checks 42 cells and current-period counts for many months.
func TestMonthRange_Shape(t *testing.T) {
	loc := mustLoc(t, "Asia/Singapore")
	for year := 2023; year <= 2029; year++ {
		for month := time.January; month <= time.December; month++ {
			ref := time.Date(year, month, 15, 12, 0, 0, 0, loc)
			days := MonthRange(ref, loc)
			if len(days) != MonthCells {
				t.Fatalf("%d-%02d: got %d cells, want 42", year, month, len(days))
			}
			if days[0].Date.Weekday() != time.Monday {
				t.Fatalf("%d-%02d: first cell is %s", year, month, days[0].Date.Weekday())
			}
			current := 0
			for _, d := range days {
				if d.IsCurrentPeriod {
					current++
					if d.Date.Month != month || d.Date.Year != year {
						t.Fatalf("%d-%02d: %s marked current", year, month, d.Date)
					}
				}
			}
			daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
			if current != daysInMonth {
				t.Fatalf("%d-%02d: %d current cells, want %d", year, month, current, daysInMonth)
			}
		}
	}
}

// TestMonthRange_FebruaryStartingSunday covers the 2026-02-01 boundary case.
func TestMonthRange_FebruaryStartingSunday(t *testing.T) {
	loc := mustLoc(t, "Asia/Singapore")
	days := MonthRange(time.Date(2026, 2, 1, 0, 0, 0, 0, loc), loc)

	if days[0].Date.String() != "2026-01-26" || days[0].IsCurrentPeriod {
		t.Errorf("first cell = %s current=%v, want 2026-01-26 current=false", days[0].Date, days[0].IsCurrentPeriod)
	}
	var lastCurrent Date
	for _, d := range days {
		if d.IsCurrentPeriod {
			lastCurrent = d.Date
		}
	}
	if lastCurrent.String() != "2026-02-28" {
		t.Errorf("last current cell = %s, want 2026-02-28", lastCurrent)
	}
	if got := days[41].Date.String(); got != "2026-03-08" {
		t.Errorf("last cell = %s, want 2026-03-08", got)
	}
}

// TestMonthRange_LeapYearAndYearBoundary covers February 2024 and January 2027.
func TestMonthRange_LeapYearAndYearBoundary(t *testing.T) {
	loc := mustLoc(t, "UTC")
	tests := []struct {
		name      string
		ref       time.Time
		wantFirst string
		wantLast  string
	}{
		{"leap february", time.Date(2024, 2, 10, 0, 0, 0, 0, loc), "2024-01-29", "2024-03-10"},
		{"january after year end", time.Date(2027, 1, 1, 0, 0, 0, 0, loc), "2026-12-28", "2027-02-07"},
		{"month starting monday", time.Date(2026, 6, 30, 0, 0, 0, 0, loc), "2026-06-01", "2026-07-12"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			days := MonthRange(tc.ref, loc)
			if got := days[0].Date.String(); got != tc.wantFirst {
				t.Errorf("first = %s, want %s", got, tc.wantFirst)
			}
			if got := days[41].Date.String(); got != tc.wantLast {
				t.Errorf("last = %s, want %s", got, tc.wantLast)
			}
		})
	}
}

// TestBucket_LocalDayNotUTCDay places a late-evening event on its local date.
func TestBucket_LocalDayNotUTCDay(t *testing.T) {
	loc := mustLoc(t, "Asia/Singapore")
	utcStart := time.Date(2026, 1, 14, 15, 30, 0, 0, time.UTC) // 23:30 +08:00
	offsetStart := time.Date(2026, 1, 14, 23, 30, 0, 0, time.FixedZone("SGT", 8*3600))

	days := WeekRange(utcStart, loc)
	for _, start := range []time.Time{utcStart, offsetStart} {
		buckets, skipped := Bucket([]EventRecord{{ID: "1", Start: at(start)}}, days, loc)
		if skipped != 0 {
			t.Fatalf("skipped = %d, want 0", skipped)
		}
		for i, d := range days {
			want := 0
			if d.String() == "2026-01-14" {
				want = 1
			}
			if len(buckets[i]) != want {
				t.Errorf("%s: %d events, want %d", d, len(buckets[i]), want)
			}
		}
	}
}

// TestBucket_OrderAndTies sorts by start then id.
func TestBucket_OrderAndTies(t *testing.T) {
	loc := mustLoc(t, "UTC")
	nine := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	ten := nine.Add(time.Hour)
	events := []EventRecord{
		{ID: "10", Start: at(nine)},
		{ID: "b", Start: at(ten)},
		{ID: "9", Start: at(nine)},
		{ID: "a", Start: at(ten)},
	}
	days := []Date{DateOf(nine, loc)}
	buckets, _ := Bucket(events, days, loc)

	var ids []string
	for _, ev := range buckets[0] {
		ids = append(ids, ev.ID)
	}
	want := []string{"9", "10", "a", "b"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
	if events[0].ID != "10" {
		t.Error("input slice was reordered")
	}
}

// TestBucket_MissingStartAndOutOfRange skips bad records without failing.
func TestBucket_MissingStartAndOutOfRange(t *testing.T) {
	loc := mustLoc(t, "UTC")
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	out := in.AddDate(0, 2, 0)
	events := []EventRecord{
		{ID: "ok", Start: at(in)},
		{ID: "nostart"},
		{ID: "zero", Start: &time.Time{}},
		{ID: "later", Start: at(out)},
	}
	buckets, skipped := Bucket(events, WeekRange(in, loc), loc)
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	total := 0
	for _, b := range buckets {
		total += len(b)
	}
	if total != 1 {
		t.Errorf("bucketed %d events, want 1", total)
	}
}

// TestBucket_AcrossDST uses a zone with daylight saving to check day equality.
func TestBucket_AcrossDST(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	// DST starts 2026-03-08 02:00 local.
	late := time.Date(2026, 3, 8, 23, 30, 0, 0, loc)
	early := time.Date(2026, 3, 9, 0, 15, 0, 0, loc)
	days := WeekRange(late, loc)
	buckets, _ := Bucket([]EventRecord{{ID: "late", Start: at(late)}, {ID: "early", Start: at(early)}}, days, loc)

	// The week of Sunday 2026-03-08 is Mon 2026-03-02 .. Sun 2026-03-08.
	if len(buckets[6]) != 1 || buckets[6][0].ID != "late" {
		t.Errorf("Sunday bucket = %+v, want [late]", buckets[6])
	}
	for i := 0; i < 6; i++ {
		if len(buckets[i]) != 0 {
			t.Errorf("day %d has %d events, want 0", i, len(buckets[i]))
		}
	}
}

// TestBuildGrid_Week builds a week grid with slots, today, and capacity flags.
func TestBuildGrid_Week(t *testing.T) {
	loc := mustLoc(t, "Asia/Singapore")
	ref := time.Date(2026, 1, 14, 10, 0, 0, 0, loc)
	events := []EventRecord{
		{ID: "lunch", Title: "Lunch Social", Start: at(time.Date(2026, 1, 14, 12, 0, 0, 0, loc))},
		{ID: "art", Title: "Art Class", Start: at(time.Date(2026, 1, 14, 13, 15, 0, 0, loc)), MaxParticipants: intPtr(10), RegisteredParticipants: 10},
		{ID: "late", Title: "Night Walk", Start: at(time.Date(2026, 1, 14, 23, 30, 0, 0, loc))},
	}

	grid, err := BuildGrid(events, ref, ViewWeek, loc, RoleParticipant, fixedNow(ref))
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}
	if len(grid.Cells) != WeekCells {
		t.Fatalf("cells = %d, want 7", len(grid.Cells))
	}
	if len(grid.Slots) != len(DefaultSlotLabels) {
		t.Fatalf("slots = %d, want %d", len(grid.Slots), len(DefaultSlotLabels))
	}

	wed := grid.Cells[2]
	if wed.Date.String() != "2026-01-14" || !wed.IsToday || !wed.IsCurrentPeriod {
		t.Fatalf("Wednesday cell = %+v", wed)
	}
	if len(wed.Events) != 3 {
		t.Fatalf("Wednesday events = %d, want 3", len(wed.Events))
	}

	slotEvents := map[string][]string{}
	for _, sc := range wed.Slots {
		for _, ev := range sc.Events {
			slotEvents[sc.Slot.Label] = append(slotEvents[sc.Slot.Label], ev.ID)
		}
	}
	if !reflect.DeepEqual(slotEvents["Noon"], []string{"lunch"}) {
		t.Errorf("Noon slot = %v, want [lunch]", slotEvents["Noon"])
	}
	if !reflect.DeepEqual(slotEvents["1 PM"], []string{"art"}) {
		t.Errorf("1 PM slot = %v, want [art]", slotEvents["1 PM"])
	}
	for label, ids := range slotEvents {
		for _, id := range ids {
			if id == "late" {
				t.Errorf("out-of-range event placed in slot %s", label)
			}
		}
	}

	art := wed.Events[1]
	if !art.IsFullParticipants || art.CapacityState != CapacityFull {
		t.Errorf("art flags = full:%v state:%s, want full:true state:full", art.IsFullParticipants, art.CapacityState)
	}
	if art.RegistrationGlyph != GlyphUnregistered {
		t.Errorf("glyph = %q, want %q", art.RegistrationGlyph, GlyphUnregistered)
	}
	if got := wed.Events[0].LocalEnd.Sub(wed.Events[0].LocalStart); got != time.Hour {
		t.Errorf("default duration = %s, want 1h", got)
	}
}

// TestBuildGrid_Month marks padding cells and today.
func TestBuildGrid_Month(t *testing.T) {
	loc := mustLoc(t, "Asia/Singapore")
	ref := time.Date(2026, 2, 1, 9, 0, 0, 0, loc)
	now := time.Date(2026, 2, 10, 8, 0, 0, 0, loc)

	grid, err := BuildGrid(nil, ref, ViewMonth, loc, RoleStaff, fixedNow(now))
	if err != nil {
		t.Fatalf("BuildGrid: %v", err)
	}
	if len(grid.Cells) != MonthCells {
		t.Fatalf("cells = %d, want 42", len(grid.Cells))
	}
	if grid.Slots != nil {
		t.Error("month grid should not carry slots")
	}
	if grid.Cells[0].IsCurrentPeriod {
		t.Error("first padding cell marked current")
	}
	todays := 0
	for _, c := range grid.Cells {
		if c.IsToday {
			todays++
			if c.Date.String() != "2026-02-10" {
				t.Errorf("today = %s, want 2026-02-10", c.Date)
			}
		}
		if c.Slots != nil {
			t.Errorf("%s: month cell carries slots", c.Date)
		}
	}
	if todays != 1 {
		t.Errorf("today cells = %d, want 1", todays)
	}
}

// TestBuildGrid_Idempotent builds twice from the same inputs.
func TestBuildGrid_Idempotent(t *testing.T) {
	loc := mustLoc(t, "Asia/Singapore")
	ref := time.Date(2026, 1, 14, 10, 0, 0, 0, loc)
	events := []EventRecord{
		{ID: "2", Start: at(ref.Add(time.Hour))},
		{ID: "1", Start: at(ref.Add(time.Hour)), MaxVolunteers: intPtr(2), RegisteredVolunteers: 1},
		{ID: "3"},
	}
	for _, mode := range []ViewMode{ViewWeek, ViewMonth} {
		a, err := BuildGrid(events, ref, mode, loc, RoleVolunteer, fixedNow(ref))
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		b, _ := BuildGrid(events, ref, mode, loc, RoleVolunteer, fixedNow(ref))
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		if string(ja) != string(jb) {
			t.Errorf("%s: grids differ between builds", mode)
		}
		if a.Skipped != 1 {
			t.Errorf("%s: skipped = %d, want 1", mode, a.Skipped)
		}
	}
}

// TestBuildGrid_Errors rejects a missing location and unknown mode.
func TestBuildGrid_Errors(t *testing.T) {
	if _, err := BuildGrid(nil, time.Now(), ViewWeek, nil, RoleNone); err != ErrNoLocation {
		t.Errorf("nil loc err = %v, want ErrNoLocation", err)
	}
	if _, err := BuildGrid(nil, time.Now(), ViewMode("year"), time.UTC, RoleNone); err == nil {
		t.Error("expected error for unknown view mode")
	}
}

// TestBuildGrid_CustomSlots narrows the week rows.
func TestBuildGrid_CustomSlots(t *testing.T) {
	loc := mustLoc(t, "UTC")
	ref := time.Date(2026, 3, 4, 0, 0, 0, 0, loc)
	slots, err := ParseSlots([]string{"Midnight", "1 AM"})
	if err != nil {
		t.Fatal(err)
	}
	events := []EventRecord{{ID: "x", Start: at(ref.Add(30 * time.Minute))}}
	grid, err := BuildGrid(events, ref, ViewWeek, loc, RoleNone, WithSlots(slots), fixedNow(ref))
	if err != nil {
		t.Fatal(err)
	}
	wed := grid.Cells[2]
	if len(wed.Slots) != 2 || len(wed.Slots[0].Events) != 1 {
		t.Errorf("midnight slot = %+v", wed.Slots)
	}
}
