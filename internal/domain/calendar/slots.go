package calendar

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Slot is one hourly row of the week view.
type Slot struct {
	Label string `json:"label"`
	Hour  int    `json:"hour"` // 0-23
}

// DefaultSlotLabels is the daytime range shown when none is configured.
var DefaultSlotLabels = []string{
	"8 AM", "9 AM", "10 AM", "11 AM", "Noon",
	"1 PM", "2 PM", "3 PM", "4 PM", "5 PM",
}

var defaultSlots = mustParseSlots(DefaultSlotLabels)

// DefaultSlots returns a fresh copy of the default slot rows.
func DefaultSlots() []Slot {
	return append([]Slot(nil), defaultSlots...)
}

// ParseSlotLabel converts a label into a slot.
// Accepted forms: "Noon", "Midnight", "1 PM", "11AM", "13", "13:00".
// "12 PM" is noon and "12 AM" is midnight; only 1-11 PM gain 12 hours.
// PRE: none
// POST: returns a slot with Hour in [0, 23] or an error wrapping ErrInvalidSlot
func ParseSlotLabel(label string) (Slot, error) {
	s := strings.TrimSpace(label)
	upper := strings.ToUpper(s)

	switch upper {
	case "NOON":
		return Slot{Label: s, Hour: 12}, nil
	case "MIDNIGHT":
		return Slot{Label: s, Hour: 0}, nil
	}

	if suffix := upper[max(len(upper)-2, 0):]; suffix == "AM" || suffix == "PM" {
		n, err := strconv.Atoi(strings.TrimSpace(upper[:len(upper)-2]))
		if err != nil || n < 1 || n > 12 {
			return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, label)
		}
		hour := n % 12
		if suffix == "PM" {
			hour += 12
		}
		return Slot{Label: s, Hour: hour}, nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(upper, ":00"))
	if err != nil || n < 0 || n > 23 {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, label)
	}
	return Slot{Label: s, Hour: n}, nil
}

// ParseSlots parses a list of labels, keeping their order.
// PRE: none
// POST: returns one slot per label; duplicate hours are rejected
func ParseSlots(labels []string) ([]Slot, error) {
	slots := make([]Slot, 0, len(labels))
	seen := make(map[int]string, len(labels))
	for _, l := range labels {
		s, err := ParseSlotLabel(l)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[s.Hour]; ok {
			return nil, fmt.Errorf("%w: %q and %q", ErrDuplicateSlot, prev, l)
		}
		seen[s.Hour] = l
		slots = append(slots, s)
	}
	return slots, nil
}

func mustParseSlots(labels []string) []Slot {
	slots, err := ParseSlots(labels)
	if err != nil {
		panic(err)
	}
	return slots
}

// MapSlots places each event into the slot whose hour equals the event's local
// start hour. Events with no matching slot are omitted.
// PRE: events carry LocalStart in the display location
// POST: len(result) == len(slots); each row is ordered by start, ties by id
func MapSlots(events []EventView, slots []Slot) [][]EventView {
	byHour := make(map[int]int, len(slots))
	for i, s := range slots {
		byHour[s.Hour] = i
	}
	rows := make([][]EventView, len(slots))
	for i := range rows {
		rows[i] = []EventView{}
	}
	for _, ev := range events {
		i, ok := byHour[ev.LocalStart.Hour()]
		if !ok {
			continue
		}
		rows[i] = append(rows[i], ev)
	}
	for _, row := range rows {
		sort.SliceStable(row, func(a, b int) bool {
			if !row[a].LocalStart.Equal(row[b].LocalStart) {
				return row[a].LocalStart.Before(row[b].LocalStart)
			}
			return lessID(row[a].ID, row[b].ID)
		})
	}
	return rows
}
