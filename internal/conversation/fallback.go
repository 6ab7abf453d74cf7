package conversation

import "strings"

// Canned replies used when generation is unavailable or produced
// something unusable. Picked by light keyword matching so the assistant
// degrades into a useful receptionist instead of going silent.

const fallbackDefault = "Disculpa, en este momento no puedo responder eso. ¿Puedo ayudarte con tu próxima cita?"

var fallbackReplies = []struct {
	keywords []string
	reply    string
}{
	{
		[]string{"hola", "buenos dias", "buenas tardes", "buenas noches"},
		"¡Hola! Soy el asistente de la clínica. ¿En qué puedo ayudarte con tus citas?",
	},
	{
		[]string{"gracias"},
		"Con gusto. Si necesitas algo más sobre tus citas, aquí estoy.",
	},
	{
		[]string{"horario", "hora de atencion", "abren", "cierran"},
		"Atendemos de lunes a sábado de 07:00 a 19:00.",
	},
	{
		[]string{"cita", "turno"},
		"Puedo ayudarte a consultar o reprogramar tu cita. ¿Qué necesitas?",
	},
	{
		[]string{"tratamiento", "medicamento", "pastilla", "medicacion"},
		"Para dudas sobre tu tratamiento es mejor hablar con tu médico en tu próximo control. ¿Quieres consultar tu cita?",
	},
}

// FallbackReply picks a canned answer for a patient message.
func FallbackReply(text string) string {
	norm := normalize(text)
	for _, f := range fallbackReplies {
		for _, kw := range f.keywords {
			// Short keywords match whole words only, so "hola" does not
			// fire inside "holanda".
			match := strings.Contains(norm, kw)
			if len(kw) <= 6 {
				match = containsWord(norm, kw)
			}
			if match {
				return f.reply
			}
		}
	}
	return fallbackDefault
}
