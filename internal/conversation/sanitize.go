package conversation

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	maxResponseChars = 300
	hardResponseCap  = 400
	maxSentences     = 2
	maxInboundChars  = 500
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	dateLikeRe   = regexp.MustCompile(`\b(\d{1,4})/(\d{1,4})/(\d{1,4})\b`)
)

// Model transcript artifacts to strip from the front of a completion.
var responsePrefixes = []string{
	"<ASSISTANT>:",
	"Asistente:",
	"Assistant:",
	":",
}

// Markers after which a completion has drifted into hallucinated turns.
var responseCutMarkers = []string{
	"\n\n",
	"\n:",
	"\n<USER>:",
	"\n<ASSISTANT>:",
	"<USER>:",
	"Paciente:",
	"Usuario:",
}

// Words the model tends to mangle the clinic vocabulary into. Matched on
// word boundaries so "tuberculosis" itself stays valid.
var garbledWords = []string{
	"tuberacion",
	"tuberculos",
	"canadi",
	"carmi",
}

// CleanResponse normalizes a raw model completion into at most two tidy
// sentences suitable to send to a patient.
func CleanResponse(raw string) string {
	s := strings.TrimSpace(raw)

	for _, p := range responsePrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(strings.TrimPrefix(s, p))
		}
	}
	for _, m := range responseCutMarkers {
		if i := strings.Index(s, m); i >= 0 {
			s = s[:i]
		}
	}

	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	s = firstSentences(s, maxSentences)

	if len([]rune(s)) > maxResponseChars {
		runes := []rune(s)
		cut := maxResponseChars
		for cut > 0 && runes[cut-1] != ' ' {
			cut--
		}
		if cut == 0 {
			cut = maxResponseChars
		}
		s = strings.TrimSpace(string(runes[:cut]))
	}

	if s != "" && !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}

// firstSentences keeps the first n sentences. Sentence ends are a
// terminator followed by a space and an uppercase letter, which keeps
// abbreviations and clock times intact.
func firstSentences(s string, n int) string {
	runes := []rune(s)
	count := 0
	for i := 0; i < len(runes)-2; i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		if runes[i+1] != ' ' {
			continue
		}
		next := runes[i+2]
		if unicode.IsUpper(next) || next == '¿' || next == '¡' {
			count++
			if count >= n {
				return string(runes[:i+1])
			}
		}
	}
	return s
}

// CleanInbound tidies a patient message before processing.
func CleanInbound(raw string) string {
	s := whitespaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")
	runes := []rune(s)
	if len(runes) > maxInboundChars {
		s = string(runes[:maxInboundChars])
	}
	return s
}

// ValidateResponse reports whether a cleaned completion is safe to send.
// It catches the model's known failure shapes: impossible dates, token
// stutter, garbled clinic vocabulary, and runaway length.
func ValidateResponse(s string) bool {
	if s == "" {
		return false
	}
	if len([]rune(s)) > hardResponseCap {
		return false
	}

	for _, m := range dateLikeRe.FindAllStringSubmatch(s, -1) {
		day := atoiSafe(m[1])
		month := atoiSafe(m[2])
		year := atoiSafe(m[3])
		if day > 31 || month > 12 || year > 2100 || day > 1000 {
			return false
		}
	}

	if hasTripleRepeat(s) {
		return false
	}

	norm := normalize(s)
	for _, w := range garbledWords {
		if containsWord(norm, w) {
			return false
		}
	}
	return true
}

func hasTripleRepeat(s string) bool {
	words := strings.Fields(strings.ToLower(s))
	for i := 2; i < len(words); i++ {
		if words[i] == words[i-1] && words[i] == words[i-2] {
			return true
		}
	}
	return false
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
