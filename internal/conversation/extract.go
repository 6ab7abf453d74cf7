package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// AppointmentData holds whatever scheduling fields a single message
// mentioned. Empty fields were simply not present.
type AppointmentData struct {
	Date   string // 2006-01-02
	Time   string // 15:04
	Reason string
}

func (d AppointmentData) IsEmpty() bool {
	return d == AppointmentData{}
}

var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2,4})\b`)
	clockRe     = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// Longer phrases first so "pasado manana" does not match as "manana".
var relativeDays = []struct {
	phrase string
	offset int
}{
	{"pasado manana", 2},
	{"manana", 1},
	{"hoy", 0},
	{"hoi", 0},
}

// Ordered so a message naming several days always resolves the same one.
var weekdays = []struct {
	word string
	day  time.Weekday
}{
	{"lunes", time.Monday},
	{"martes", time.Tuesday},
	{"miercoles", time.Wednesday},
	{"jueves", time.Thursday},
	{"viernes", time.Friday},
	{"sabado", time.Saturday},
	{"domingo", time.Sunday},
}

// Broad times of day used when no explicit clock time appears.
var dayPeriods = []struct {
	word  string
	clock string
}{
	{"manana", "09:00"},
	{"mediodia", "12:00"},
	{"tarde", "15:00"},
	{"noche", "19:00"},
}

// Visit reasons, most specific vocabulary first.
var reasonVocab = []struct {
	keyword string
	reason  string
}{
	{"control", "Control de rutina"},
	{"revision", "Revisión médica"},
	{"sintoma", "Consulta por síntomas"},
	{"medicacion", "Consulta de medicación"},
	{"medicamento", "Consulta de medicación"},
	{"tratamiento", "Consulta de medicación"},
	{"resultado", "Consulta de resultados"},
	{"emergencia", "Emergencia"},
	{"urgente", "Emergencia"},
}

// ExtractAppointmentData pulls date, time, and visit reason mentions out
// of free-form Spanish text. Relative expressions resolve against now.
// The extractor never validates against the clinic calendar, it only
// reports what the patient said.
func ExtractAppointmentData(text string, now time.Time) AppointmentData {
	norm := normalize(text)
	var out AppointmentData

	out.Date, out.Time = extractDateTime(norm, now)

	for _, rv := range reasonVocab {
		if strings.Contains(norm, rv.keyword) {
			out.Reason = rv.reason
			break
		}
	}
	return out
}

// Phrases where "manana" means the morning, not tomorrow. They are cut
// out of the text before date matching.
var morningPhrases = []string{"por la manana", "en la manana", "de la manana"}

func extractDateTime(norm string, now time.Time) (date, clock string) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dateFound := false

	dateText := norm
	for _, p := range morningPhrases {
		dateText = strings.ReplaceAll(dateText, p, " ")
	}

	if m := isoDateRe.FindStringSubmatch(norm); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if valid, ok := buildDate(y, mo, d); ok {
			date = valid
			dateFound = true
		}
	}
	if !dateFound {
		if m := slashDateRe.FindStringSubmatch(norm); m != nil {
			d, _ := strconv.Atoi(m[1])
			mo, _ := strconv.Atoi(m[2])
			y, _ := strconv.Atoi(m[3])
			if y < 100 {
				y += 2000
			}
			if valid, ok := buildDate(y, mo, d); ok {
				date = valid
				dateFound = true
			}
		}
	}
	if !dateFound {
		for _, rd := range relativeDays {
			if strings.Contains(dateText, rd.phrase) {
				date = today.AddDate(0, 0, rd.offset).Format("2006-01-02")
				dateFound = true
				break
			}
		}
	}
	if !dateFound {
		for _, wd := range weekdays {
			if containsWord(dateText, wd.word) {
				// Next occurrence, strictly after today.
				ahead := (int(wd.day) - int(today.Weekday()) + 7) % 7
				if ahead == 0 {
					ahead = 7
				}
				date = today.AddDate(0, 0, ahead).Format("2006-01-02")
				break
			}
		}
	}

	if m := clockRe.FindStringSubmatch(norm); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if strings.Contains(norm, "pm") && h < 12 {
			h += 12
		}
		if strings.Contains(norm, "am") && h == 12 {
			h = 0
		}
		if h <= 23 && min <= 59 {
			clock = fmt.Sprintf("%02d:%02d", h, min)
		}
	}
	if clock == "" {
		// "manana" only counts as a time of day inside one of the morning
		// phrases; bare it means tomorrow.
		for _, p := range dayPeriods {
			if strings.Contains(norm, "por la "+p.word) || strings.Contains(norm, "en la "+p.word) ||
				strings.Contains(norm, "de la "+p.word) ||
				(p.word != "manana" && strings.Contains(norm, p.word)) {
				clock = p.clock
				break
			}
		}
	}
	return date, clock
}

func buildDate(year, month, day int) (string, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow, so 31/02 rolls into March.
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		leftOK := start == 0 || !isLetter(s[start-1])
		rightOK := end == len(s) || !isLetter(s[end])
		if leftOK && rightOK {
			return true
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// normalize lowercases and strips Spanish accents so vocabulary matching
// works regardless of how the patient typed.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'á':
			b.WriteRune('a')
		case 'é':
			b.WriteRune('e')
		case 'í':
			b.WriteRune('i')
		case 'ó':
			b.WriteRune('o')
		case 'ú', 'ü':
			b.WriteRune('u')
		case 'ñ':
			b.WriteRune('n')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
