package calendar

import (
	"fmt"
	"sort"
	"time"
)

// Day is one day of a display period.
type Day struct {
	Date            Date
	IsCurrentPeriod bool
}

// Cell is one day of grid data.
type Cell struct {
	Date            Date        `json:"date"`
	IsCurrentPeriod bool        `json:"isCurrentPeriod"`
	IsToday         bool        `json:"isToday"`
	Events          []EventView `json:"events"`
	Slots           []SlotCell  `json:"slots,omitempty"`
}

// SlotCell holds the events of one cell that start within one hourly slot.
type SlotCell struct {
	Slot   Slot        `json:"slot"`
	Events []EventView `json:"events"`
}

// Grid is the renderable view model for one period.
type Grid struct {
	Mode      ViewMode `json:"mode"`
	Reference Date     `json:"reference"`
	Timezone  string   `json:"timezone"`
	Cells     []Cell   `json:"cells"`
	Slots     []Slot   `json:"slots,omitempty"`
	// Skipped counts records excluded for having no start.
	Skipped int `json:"skipped"`
}

// WeekRange returns the Monday on or before ref, as seen in loc, and the six days after it.
// PRE: loc is non-nil
// POST: returns exactly 7 consecutive dates, the first a Monday, containing ref's date
func WeekRange(ref time.Time, loc *time.Location) []Date {
	d := DateOf(ref, loc)
	monday := d.AddDays(1 - isoWeekday(d.Weekday()))
	days := make([]Date, WeekCells)
	for i := range days {
		days[i] = monday.AddDays(i)
	}
	return days
}

// MonthRange returns the 42 days shown for ref's month in loc: leading days of
// the previous month, every day of the month, then days of the next month.
// PRE: loc is non-nil
// POST: returns exactly 42 days; IsCurrentPeriod is true only for ref's month
func MonthRange(ref time.Time, loc *time.Location) []Day {
	d := DateOf(ref, loc)
	first := Date{Year: d.Year, Month: d.Month, Day: 1}
	padding := isoWeekday(first.Weekday()) - 1
	start := first.AddDays(-padding)

	days := make([]Day, MonthCells)
	for i := range days {
		date := start.AddDays(i)
		days[i] = Day{
			Date:            date,
			IsCurrentPeriod: date.Year == d.Year && date.Month == d.Month,
		}
	}
	return days
}

// Bucket assigns each record to the day matching its start's calendar date in loc.
// Each bucket is ordered by start ascending, ties by id ascending. Records with
// no start are skipped and counted; records outside the period are dropped.
// PRE: loc is non-nil
// POST: len(buckets) == len(days); events is not modified
func Bucket(events []EventRecord, days []Date, loc *time.Location) (buckets [][]EventRecord, skipped int) {
	index := make(map[Date]int, len(days))
	for i, d := range days {
		index[d] = i
	}
	buckets = make([][]EventRecord, len(days))
	for _, ev := range events {
		if ev.Start == nil || ev.Start.IsZero() {
			skipped++
			continue
		}
		i, ok := index[DateOf(*ev.Start, loc)]
		if !ok {
			continue
		}
		buckets[i] = append(buckets[i], ev)
	}
	for _, b := range buckets {
		sortRecords(b)
	}
	return buckets, skipped
}

func sortRecords(recs []EventRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Start, recs[j].Start
		if !a.Equal(*b) {
			return a.Before(*b)
		}
		return lessID(recs[i].ID, recs[j].ID)
	})
}

// Option configures BuildGrid.
type Option func(*buildOptions)

type buildOptions struct {
	now   func() time.Time
	slots []Slot
}

// WithNow sets the clock used for IsToday.
func WithNow(now func() time.Time) Option {
	return func(o *buildOptions) { o.now = now }
}

// WithSlots sets the hourly rows used in week view.
func WithSlots(slots []Slot) Option {
	return func(o *buildOptions) { o.slots = slots }
}

// BuildGrid turns a flat list of records into a week or month grid in loc.
// PRE: loc is the display location resolved at startup
// POST: week grids have 7 cells with slot rows; month grids have 42 cells
// INVARIANT: same inputs (and clock) give the same grid; inputs are not modified
func BuildGrid(events []EventRecord, ref time.Time, mode ViewMode, loc *time.Location, role Role, opts ...Option) (Grid, error) {
	if loc == nil {
		return Grid{}, ErrNoLocation
	}
	o := buildOptions{now: time.Now, slots: DefaultSlots()}
	for _, opt := range opts {
		opt(&o)
	}

	var days []Day
	switch mode {
	case ViewWeek:
		for _, d := range WeekRange(ref, loc) {
			days = append(days, Day{Date: d, IsCurrentPeriod: true})
		}
	case ViewMonth:
		days = MonthRange(ref, loc)
	default:
		return Grid{}, fmt.Errorf("%w: %q", ErrInvalidViewMode, mode)
	}

	dates := make([]Date, len(days))
	for i, d := range days {
		dates[i] = d.Date
	}
	buckets, skipped := Bucket(events, dates, loc)
	today := DateOf(o.now(), loc)

	grid := Grid{
		Mode:      mode,
		Reference: DateOf(ref, loc),
		Timezone:  loc.String(),
		Cells:     make([]Cell, len(days)),
		Skipped:   skipped,
	}
	for i, d := range days {
		views := make([]EventView, 0, len(buckets[i]))
		for _, rec := range buckets[i] {
			views = append(views, Annotate(rec, role, loc))
		}
		cell := Cell{
			Date:            d.Date,
			IsCurrentPeriod: d.IsCurrentPeriod,
			IsToday:         d.Date == today,
			Events:          views,
		}
		if mode == ViewWeek {
			rows := MapSlots(views, o.slots)
			cell.Slots = make([]SlotCell, len(o.slots))
			for j, s := range o.slots {
				cell.Slots[j] = SlotCell{Slot: s, Events: rows[j]}
			}
		}
		grid.Cells[i] = cell
	}
	if mode == ViewWeek {
		grid.Slots = append([]Slot(nil), o.slots...)
	}
	return grid, nil
}
