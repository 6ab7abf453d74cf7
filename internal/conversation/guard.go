package conversation

import "strings"

// OutOfContextReply is sent when a message has nothing to do with the
// clinic or the patient's care.
const OutOfContextReply = "Soy el asistente de la clínica y solo puedo ayudarte con tus citas y tu tratamiento. ¿Tienes alguna consulta sobre tu próxima cita?"

var greetingWords = []string{
	"hola", "buenos dias", "buenas tardes", "buenas noches", "buen dia",
	"gracias", "adios", "hasta luego", "ok", "vale", "si", "no",
}

var clinicKeywords = []string{
	"cita", "doctor", "doctora", "medico", "clinica", "consulta",
	"tratamiento", "medicamento", "medicacion", "pastilla", "tos",
	"tuberculosis", "sintoma", "resultado", "examen", "control",
	"baciloscopia", "radiografia", "fiebre", "peso", "salud",
	"hora", "fecha", "horario", "telefono", "direccion", "carnet",
}

var offTopicKeywords = []string{
	"hipotenusa", "matematica", "algebra", "ecuacion",
	"futbol", "partido", "loteria", "receta de cocina",
	"pelicula", "cancion", "videojuego", "tarea de",
}

// InContext reports whether a patient message belongs in a clinic
// conversation. Short messages and anything touching health or scheduling
// vocabulary pass; clearly unrelated topics and long rambles do not.
func InContext(text string) bool {
	norm := normalize(text)

	for _, kw := range offTopicKeywords {
		if strings.Contains(norm, kw) {
			return false
		}
	}
	for _, g := range greetingWords {
		if containsWord(norm, g) {
			return true
		}
	}
	for _, kw := range clinicKeywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	// Short questions get the benefit of the doubt.
	if len([]rune(norm)) < 20 && strings.Contains(norm, "?") {
		return true
	}
	return len([]rune(norm)) <= 100
}
