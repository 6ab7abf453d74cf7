package conversation

import (
	"fmt"
	"strings"
)

const historyWindow = 10

// PatientFacts is the verified registry data injected into the prompt so
// the model answers from records instead of inventing them.
type PatientFacts struct {
	Registered      bool
	Name            string
	AppointmentDate string
	AppointmentTime string
	AppointmentType string
	LastVisit       string
}

// BuildPrompt assembles the structured prompt for the completion model:
// a system block, a data block with verified facts, recent history, and
// the current message.
func BuildPrompt(clinicName string, facts PatientFacts, history []Message, userMessage string) string {
	var b strings.Builder

	b.WriteString("<SYS>Eres el asistente virtual del centro de salud ")
	b.WriteString(clinicName)
	b.WriteString(". Ayudas a pacientes del programa de tuberculosis con sus citas. ")
	b.WriteString("Responde en español, en una o dos frases, solo con la información del bloque DATA. ")
	b.WriteString("Si no tienes el dato, dilo y ofrece verificarlo.</SYS>\n")

	b.WriteString("<DATA>\n")
	if facts.Registered {
		fmt.Fprintf(&b, "Paciente_registrado: si\n")
		if facts.Name != "" {
			fmt.Fprintf(&b, "Nombre: %s\n", facts.Name)
		}
		if facts.AppointmentDate != "" {
			line := facts.AppointmentDate
			if facts.AppointmentTime != "" {
				line += " a las " + facts.AppointmentTime
			}
			if facts.AppointmentType != "" {
				line += " (" + facts.AppointmentType + ")"
			}
			fmt.Fprintf(&b, "Citas: %s\n", line)
		} else {
			b.WriteString("Citas: sin citas programadas\n")
		}
		if facts.LastVisit != "" {
			fmt.Fprintf(&b, "Ultima_visita: %s\n", facts.LastVisit)
		}
	} else {
		b.WriteString("Paciente_registrado: no\n")
	}
	b.WriteString("</DATA>\n")

	b.WriteString("<HISTORY>\n")
	for _, msg := range usableHistory(history) {
		tag := "<USER>"
		if msg.Role == RoleAssistant {
			tag = "<ASSISTANT>"
		}
		fmt.Fprintf(&b, "%s: %s\n", tag, msg.Content)
	}
	b.WriteString("</HISTORY>\n")

	fmt.Fprintf(&b, "<USER>: %s\n<ASSISTANT>:", userMessage)
	return b.String()
}

// usableHistory keeps the recent window, minus the turn being answered and
// minus anything that looks like earlier model garbage, which would teach
// the model to repeat it.
func usableHistory(history []Message) []Message {
	if len(history) > 0 {
		history = history[:len(history)-1]
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	out := make([]Message, 0, len(history))
	for _, msg := range history {
		if len([]rune(msg.Content)) > 200 {
			continue
		}
		if msg.Role == RoleAssistant && !ValidateResponse(msg.Content) {
			continue
		}
		out = append(out, msg)
	}
	return out
}
