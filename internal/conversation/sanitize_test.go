package conversation

import (
	"strings"
	"testing"
)

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"strips assistant prefix",
			"<ASSISTANT>: Tu cita es el lunes.",
			"Tu cita es el lunes.",
		},
		{
			"strips colon prefix",
			": Hola, ¿en qué puedo ayudarte?",
			"Hola, ¿en qué puedo ayudarte?",
		},
		{
			"cuts hallucinated user turn",
			"Tu cita es el lunes a las 9:00.\n<USER>: gracias\n<ASSISTANT>: de nada",
			"Tu cita es el lunes a las 9:00.",
		},
		{
			"cuts at blank line",
			"Tu cita es el lunes.\n\nAdemás quiero contarte algo",
			"Tu cita es el lunes.",
		},
		{
			"keeps two sentences",
			"Hola Juan. Tu cita es el lunes. Recuerda traer tu carnet. Nos vemos.",
			"Hola Juan. Tu cita es el lunes.",
		},
		{
			"clock times survive sentence split",
			"Tu cita es a las 9:30. Llega 10 min antes.",
			"Tu cita es a las 9:30. Llega 10 min antes.",
		},
		{
			"collapses whitespace",
			"Tu   cita\n es  el lunes.",
			"Tu cita es el lunes.",
		},
		{
			"adds terminal period",
			"Tu cita es el lunes",
			"Tu cita es el lunes.",
		},
		{
			"empty input",
			"   ",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanResponse(tt.raw); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanResponseCapsLength(t *testing.T) {
	long := strings.Repeat("palabra ", 100)
	got := CleanResponse(long)
	if len([]rune(got)) > maxResponseChars+1 {
		t.Fatalf("response too long: %d runes", len([]rune(got)))
	}
	if !strings.HasSuffix(got, ".") {
		t.Fatalf("missing terminator: %q", got)
	}
}

func TestCleanInbound(t *testing.T) {
	if got := CleanInbound("  hola   doctor \n "); got != "hola doctor" {
		t.Errorf("got %q", got)
	}
	long := strings.Repeat("a", 600)
	if got := CleanInbound(long); len([]rune(got)) != maxInboundChars {
		t.Errorf("inbound not capped: %d", len([]rune(got)))
	}
}

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name string
		s    string
		want bool
	}{
		{"normal reply", "Tu cita es el lunes a las 9:00.", true},
		{"mentions tuberculosis", "El control de tuberculosis es mensual.", true},
		{"valid date", "Tu cita es el 10/03/2026.", true},
		{"absurd day", "Tu cita es el 45/03/2026.", false},
		{"absurd month", "Tu cita es el 10/25/2026.", false},
		{"absurd year", "Tu cita es el 10/03/9999.", false},
		{"token stutter", "Tu cita cita cita es el lunes.", false},
		{"garbled vocab", "Tu control de tuberacion es el lunes.", false},
		{"garbled clinic", "La clínica canadi te espera.", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateResponse(tt.s); got != tt.want {
				t.Errorf("ValidateResponse(%q) = %v, want %v", tt.s, got, tt.want)
			}
		})
	}
}

func TestValidateResponseHardCap(t *testing.T) {
	if ValidateResponse(strings.Repeat("a", hardResponseCap+1)) {
		t.Fatal("overlong response should be rejected")
	}
}
