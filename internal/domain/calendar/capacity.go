package calendar

import "time"

// CapacityState is an informational triage of an event's capacity axes.
type CapacityState string

// Capacity states.
const (
	CapacityAvailable CapacityState = "available"
	CapacityPartial   CapacityState = "partial"
	CapacityFull      CapacityState = "full"
)

// Glyph is the registration marker shown to participants and volunteers.
type Glyph string

// Glyph values. GlyphNone is omitted from JSON.
const (
	GlyphNone         Glyph = ""
	GlyphRegistered   Glyph = "registered"
	GlyphUnregistered Glyph = "unregistered"
)

// EventView is a bucketed record with its presentation flags.
type EventView struct {
	EventRecord
	LocalStart         time.Time     `json:"localStart"`
	LocalEnd           time.Time     `json:"localEnd"`
	IsFullParticipants bool          `json:"isFullParticipants"`
	IsFullVolunteers   bool          `json:"isFullVolunteers"`
	CapacityState      CapacityState `json:"capacityState"`
	RegistrationGlyph  Glyph         `json:"registrationGlyph,omitempty"`
}

// IsFull reports whether the axis for role is exhausted. An unset cap is never full.
// Registered counts above the cap are displayed as given, not corrected.
// PRE: none
// POST: false for roles without a capacity axis
func IsFull(rec EventRecord, role Role) bool {
	switch role {
	case RoleParticipant:
		return axisFull(rec.MaxParticipants, rec.RegisteredParticipants)
	case RoleVolunteer:
		return axisFull(rec.MaxVolunteers, rec.RegisteredVolunteers)
	}
	return false
}

func axisFull(limit *int, registered int) bool {
	return limit != nil && registered >= *limit
}

// CapacityStateOf is full when every configured axis is exhausted, partial
// when exactly one axis is exhausted, and available otherwise.
func CapacityStateOf(rec EventRecord) CapacityState {
	axes := []struct {
		limit *int
		full  bool
	}{
		{rec.MaxParticipants, IsFull(rec, RoleParticipant)},
		{rec.MaxVolunteers, IsFull(rec, RoleVolunteer)},
	}
	configured, exhausted := 0, 0
	for _, a := range axes {
		if a.limit == nil {
			continue
		}
		configured++
		if a.full {
			exhausted++
		}
	}
	switch {
	case configured > 0 && exhausted == configured:
		return CapacityFull
	case exhausted == 1:
		return CapacityPartial
	}
	return CapacityAvailable
}

// GlyphFor returns the caller's registration marker. Staff and anonymous
// callers get GlyphNone.
func GlyphFor(rec EventRecord, role Role) Glyph {
	switch role {
	case RoleParticipant, RoleVolunteer:
		if rec.IsUserRegistered {
			return GlyphRegistered
		}
		return GlyphUnregistered
	}
	return GlyphNone
}

// Annotate derives the presentation flags of rec for role in loc.
// PRE: rec.Start is non-nil
// POST: LocalEnd is LocalStart plus DefaultDuration when rec has no end
func Annotate(rec EventRecord, role Role, loc *time.Location) EventView {
	start := rec.Start.In(loc)
	end := start.Add(DefaultDuration)
	if rec.End != nil && !rec.End.IsZero() {
		end = rec.End.In(loc)
	}
	return EventView{
		EventRecord:        rec,
		LocalStart:         start,
		LocalEnd:           end,
		IsFullParticipants: IsFull(rec, RoleParticipant),
		IsFullVolunteers:   IsFull(rec, RoleVolunteer),
		CapacityState:      CapacityStateOf(rec),
		RegistrationGlyph:  GlyphFor(rec, role),
	}
}
