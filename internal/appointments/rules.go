package appointments

import (
	"fmt"
	"time"
)

// Rules captures the clinic's scheduling constraints.
type Rules struct {
	OpenHour       int          // inclusive, e.g. 7 for 07:00
	CloseHour      int          // exclusive, e.g. 19 means 19:00 is rejected
	SlotMinutes    int          // appointment grid, e.g. 30 for :00/:30
	ClosedWeekday  time.Weekday // day the clinic does not open
	MaxAdvanceDays int          // how far ahead appointments may be booked
}

// DefaultRules returns the clinic's standard schedule.
func DefaultRules() Rules {
	return Rules{
		OpenHour:       7,
		CloseHour:      19,
		SlotMinutes:    30,
		ClosedWeekday:  time.Sunday,
		MaxAdvanceDays: 90,
	}
}

// ValidateDate checks a candidate date against the clinic calendar. It
// returns an empty string when the date is acceptable, otherwise a
// user-facing rejection reason.
func (r Rules) ValidateDate(date, today time.Time) string {
	day := truncateToDay(date)
	now := truncateToDay(today)

	if day.Before(now) {
		return "La fecha no puede ser en el pasado. Por favor elige otra fecha."
	}
	if day.After(now.AddDate(0, 0, r.MaxAdvanceDays)) {
		return fmt.Sprintf("Solo puedes agendar citas hasta %d días adelante.", r.MaxAdvanceDays)
	}
	if day.Weekday() == r.ClosedWeekday {
		return "No atendemos los " + spanishWeekdayPlural(r.ClosedWeekday) + ". Por favor elige otro día."
	}
	return ""
}

// ValidateTime checks a candidate time of day against opening hours and the
// slot grid. Empty string means acceptable.
func (r Rules) ValidateTime(hour, minute int) string {
	if hour < r.OpenHour || hour >= r.CloseHour {
		return fmt.Sprintf("El horario de atención es de %02d:00 a %02d:00. Por favor elige otra hora.", r.OpenHour, r.CloseHour)
	}
	if r.SlotMinutes > 0 && minute%r.SlotMinutes != 0 {
		return fmt.Sprintf("Las citas son cada %d minutos (ej: 10:00, 10:30). Por favor ajusta la hora.", r.SlotMinutes)
	}
	return ""
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func spanishWeekdayPlural(d time.Weekday) string {
	switch d {
	case time.Sunday:
		return "domingos"
	case time.Monday:
		return "lunes"
	case time.Tuesday:
		return "martes"
	case time.Wednesday:
		return "miércoles"
	case time.Thursday:
		return "jueves"
	case time.Friday:
		return "viernes"
	default:
		return "sábados"
	}
}
