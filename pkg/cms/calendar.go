package cms

import (
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mdouchement/unionboard/pkg/structs"
)

// DefaultSlotDuration is the length of a calendar slot.
const DefaultSlotDuration = 2 * time.Hour

var timeLayouts = []string{"15:04", "15:04:05"}

type (
	// A Calendar configures the projection of records into time slots.
	Calendar struct {
		// Duration of each slot, DefaultSlotDuration when zero.
		Duration time.Duration
		// Location used to interpret dates and times, time.Local when nil.
		Location *time.Location
	}

	// A Slot is the half-open interval [Start, End) occupied by a record.
	Slot[T Entity] struct {
		Item  T
		Start time.Time
		End   time.Time
	}
)

// Project maps every record of snapshot having a parseable date and time into a slot.
// Records without a valid date or time are omitted. Slots are sorted by start.
func Project[T Entity](kind Kind[T], snapshot []T, c Calendar) []Slot[T] {
	if c.Duration <= 0 {
		c.Duration = DefaultSlotDuration
	}
	if c.Location == nil {
		c.Location = time.Local
	}

	slots := make([]Slot[T], 0, len(snapshot))
	if kind.schema.date == "" || kind.schema.time == "" {
		return slots
	}

	for _, item := range snapshot {
		date, _ := structs.GetField(item, kind.schema.date).(string)
		clock, _ := structs.GetField(item, kind.schema.time).(string)

		start, ok := parseSlot(date, clock, c.Location)
		if !ok {
			continue
		}

		slots = append(slots, Slot[T]{
			Item:  item,
			Start: start,
			End:   start.Add(c.Duration),
		})
	}

	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}

// Window returns the slots overlapping [from, to).
func Window[T Entity](slots []Slot[T], from, to time.Time) []Slot[T] {
	result := make([]Slot[T], 0, len(slots))
	for _, s := range slots {
		if s.Start.Before(to) && s.End.After(from) {
			result = append(result, s)
		}
	}
	return result
}

func parseSlot(date, clock string, loc *time.Location) (time.Time, bool) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, false
	}

	day, err := dateparse.ParseIn(date, loc)
	if err != nil {
		return time.Time{}, false
	}

	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, clock, loc)
		if err != nil {
			continue
		}

		y, m, d := day.Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, loc), true
	}
	return time.Time{}, false
}
