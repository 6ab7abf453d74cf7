package conversation

import (
	"testing"
	"time"
)

// Wednesday.
var extractNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func TestExtractDates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"iso", "quiero mi cita el 2026-03-10", "2026-03-10"},
		{"slash", "puede ser el 10/03/2026", "2026-03-10"},
		{"slash short year", "el 10/03/26 por favor", "2026-03-10"},
		{"tomorrow", "mañana si puedo ir", "2026-03-05"},
		{"day after tomorrow", "pasado mañana mejor", "2026-03-06"},
		{"today", "hoy mismo", "2026-03-04"},
		{"next monday", "el lunes que viene", "2026-03-09"},
		{"same weekday jumps a week", "el miércoles", "2026-03-11"},
		{"friday", "el viernes puedo", "2026-03-06"},
		{"invalid slash date", "el 31/02/2026", ""},
		{"no date", "quiero cambiar mi cita", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractAppointmentData(tt.text, extractNow)
			if got.Date != tt.want {
				t.Errorf("date = %q, want %q", got.Date, tt.want)
			}
		})
	}
}

func TestExtractTimes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain clock", "a las 9:30 está bien", "09:30"},
		{"24h clock", "a las 15:00", "15:00"},
		{"pm suffix", "a las 3:30 pm", "15:30"},
		{"midnight am", "a las 12:00 am", "00:00"},
		{"morning period", "por la mañana", "09:00"},
		{"afternoon period", "en la tarde", "15:00"},
		{"evening period", "mejor de noche", "19:00"},
		{"clock beats period", "a las 10:00 de la tarde no, 10:00 está bien", "10:00"},
		{"bad hour ignored", "a las 99:30", ""},
		{"no time", "cambiar mi cita", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractAppointmentData(tt.text, extractNow)
			if got.Time != tt.want {
				t.Errorf("time = %q, want %q", got.Time, tt.want)
			}
		})
	}
}

func TestExtractTomorrowIsDateNotPeriod(t *testing.T) {
	got := ExtractAppointmentData("mañana", extractNow)
	if got.Date != "2026-03-05" {
		t.Errorf("date = %q", got.Date)
	}
	if got.Time != "" {
		t.Errorf("bare mañana should not yield a time, got %q", got.Time)
	}
}

func TestExtractReasons(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"es para control", "Control de rutina"},
		{"una revisión general", "Revisión médica"},
		{"tengo síntomas nuevos", "Consulta por síntomas"},
		{"necesito mi medicación", "Consulta de medicación"},
		{"quiero mis resultados", "Consulta de resultados"},
		{"es una emergencia", "Emergencia"},
		{"cambiar mi cita", ""},
	}

	for _, tt := range tests {
		got := ExtractAppointmentData(tt.text, extractNow)
		if got.Reason != tt.want {
			t.Errorf("%q: reason = %q, want %q", tt.text, got.Reason, tt.want)
		}
	}
}

func TestExtractCombined(t *testing.T) {
	got := ExtractAppointmentData("Quiero mi control el viernes a las 8:30", extractNow)
	if got.Date != "2026-03-06" || got.Time != "08:30" || got.Reason != "Control de rutina" {
		t.Fatalf("got %+v", got)
	}
	if got.IsEmpty() {
		t.Fatal("combined extraction should not be empty")
	}
}

func TestExtractTwoWeekdaysPicksEarlierInWeek(t *testing.T) {
	for i := 0; i < 20; i++ {
		got := ExtractAppointmentData("puedo el lunes o el martes", extractNow)
		if got.Date != "2026-03-09" {
			t.Fatalf("run %d: date = %q", i, got.Date)
		}
	}
}

func TestExtractIdempotent(t *testing.T) {
	text := "el 10/03/2026 a las 9:00 para control"
	first := ExtractAppointmentData(text, extractNow)
	second := ExtractAppointmentData(text, extractNow)
	if first != second {
		t.Fatalf("extraction not stable: %+v vs %+v", first, second)
	}
}
