package conversation

import (
	"regexp"
	"strings"
)

// ActionIntent is a detected request to do something, with how sure the
// detector is about it.
type ActionIntent struct {
	Action     string
	Params     map[string]string
	Confidence float64
}

// Actions the detector can emit.
const (
	ActionSchedule   = "schedule_appointment"
	ActionCancel     = "cancel_appointment"
	ActionReschedule = "reschedule_appointment"
	ActionLookup     = "lookup_appointment"
	ActionVerify     = "verify_patient"
)

// ConfidenceThreshold below which an intent is treated as conversation.
const ConfidenceThreshold = 0.7

func (i *ActionIntent) IsConfident() bool {
	return i != nil && i.Confidence >= ConfidenceThreshold
}

var (
	carnetRe   = regexp.MustCompile(`\b(\d{5,10})\b`)
	lastFourRe = regexp.MustCompile(`\b(\d{4})\b`)
)

// Ordered so the more destructive actions win over lookups when a message
// mentions both ("cancelar mi próxima cita").
var intentRules = []struct {
	action     string
	confidence float64
	keywords   []string
}{
	{ActionSchedule, 0.9, []string{"agendar", "programar", "cita nueva", "nueva cita", "reservar", "quiero cita", "quiero una cita"}},
	{ActionCancel, 0.85, []string{"cancelar", "anular"}},
	{ActionReschedule, 0.85, []string{"reprogramar", "cambiar mi cita", "cambiar la cita", "cambiar cita", "mover mi cita", "mover la cita", "otra fecha"}},
	{ActionLookup, 0.8, []string{"proxima cita", "mi cita", "mis citas", "cuando es", "cuando tengo", "que dia tengo"}},
}

// DetectIntent scans a patient message for an actionable request. It
// returns nil when the message is plain conversation.
func DetectIntent(text string) *ActionIntent {
	norm := normalize(text)

	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if keywordMatch(norm, kw) {
				return &ActionIntent{
					Action:     rule.action,
					Params:     map[string]string{},
					Confidence: rule.confidence,
				}
			}
		}
	}

	// A short message carrying a bare digit run reads as identity
	// verification: a full document number, or its last four digits.
	if len(strings.Fields(norm)) <= 4 {
		if m := carnetRe.FindStringSubmatch(norm); m != nil {
			return &ActionIntent{
				Action:     ActionVerify,
				Params:     map[string]string{"carnet": m[1]},
				Confidence: 0.75,
			}
		}
		if m := lastFourRe.FindStringSubmatch(norm); m != nil {
			return &ActionIntent{
				Action:     ActionVerify,
				Params:     map[string]string{"last_four_digits": m[1]},
				Confidence: 0.75,
			}
		}
	}
	return nil
}

// keywordMatch matches single-word keywords on word boundaries so roots
// like "programar" cannot fire inside "reprogramar"; multi-word phrases
// match as substrings.
func keywordMatch(norm, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(norm, kw)
	}
	return containsWord(norm, kw)
}
