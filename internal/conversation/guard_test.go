package conversation

import (
	"strings"
	"testing"
)

func TestInContext(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"greeting", "hola buenos días", true},
		{"appointment", "quiero saber mi cita", true},
		{"treatment", "me falta medicamento para la semana", true},
		{"symptoms", "tengo tos y fiebre desde ayer", true},
		{"short question", "a qué hora?", true},
		{"math homework", "cuánto mide la hipotenusa de un triángulo", false},
		{"football", "quién ganó el partido de fútbol ayer", false},
		{"long ramble off topic", strings.Repeat("bla ", 40), false},
		{"short neutral", "no entiendo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InContext(tt.text); got != tt.want {
				t.Errorf("InContext(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestFallbackReply(t *testing.T) {
	tests := []struct {
		text     string
		contains string
	}{
		{"hola", "asistente de la clínica"},
		{"muchas gracias", "Con gusto"},
		{"cuál es el horario", "07:00 a 19:00"},
		{"necesito mi cita", "reprogramar"},
		{"me duele tomar la pastilla", "tu médico"},
		{"xyzzy", "no puedo responder"},
	}

	for _, tt := range tests {
		got := FallbackReply(tt.text)
		if !strings.Contains(got, tt.contains) {
			t.Errorf("FallbackReply(%q) = %q, want substring %q", tt.text, got, tt.contains)
		}
	}
}
