package orchestrators

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidRecurrence wraps RRULE parse failures.
var ErrInvalidRecurrence = errors.New("invalid recurrence rule")

// recurrence describes how to expand one recurring event.
type recurrence struct {
	Rule    string      // RRULE value, with or without the "RRULE:" prefix
	Start   time.Time   // DTSTART; its location is the wall clock the rule follows
	ExDates []time.Time // excluded occurrence starts
	From    time.Time   // window start, inclusive
	To      time.Time   // window end, inclusive
	Limit   int         // maximum occurrences returned
}

// expand returns occurrence starts inside [From, To], capped at Limit.
// PRE: Rule is non-empty; Limit > 0
// POST: truncated reports whether more occurrences existed than Limit
func (rc recurrence) expand() (starts []time.Time, truncated bool, err error) {
	raw := strings.TrimPrefix(strings.TrimSpace(rc.Rule), "RRULE:")
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	r.DTStart(rc.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range rc.ExDates {
		set.ExDate(ex.In(rc.Start.Location()))
	}

	starts = set.Between(rc.From.In(rc.Start.Location()), rc.To.In(rc.Start.Location()), true)
	if len(starts) > rc.Limit {
		return starts[:rc.Limit], true, nil
	}
	return starts, false, nil
}
