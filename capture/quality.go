package capture

import (
	"strings"
	"unicode"
)

// bracketReplacements maps recognizer bracket annotations to readable
// parenthetical text. Blank-audio markers are removed outright.
var bracketReplacements = [...][2]string{
	{"[BLANK_AUDIO]", ""},
	{"[MUSIC PLAYING]", "(music)"},
	{"[MUSIC]", "(music)"},
	{"[music]", "(music)"},
	{"[BEEPING]", "(beeping)"},
	{"[BANG]", "(sound)"},
	{"[coughing]", "(coughing)"},
	{"[electronic beeping]", "(electronic beeping)"},
	{"[upbeat music]", "(upbeat music)"},
	{"[funky music]", "(funky music)"},
	{"[crashing]", "(crashing)"},
	{"[swoosh]", "(swoosh)"},
}

// artifactMarkers cause outright rejection when present anywhere in the
// lowercased text.
var artifactMarkers = [...]string{
	"crying", "music", "applause", "silence", "laughter",
	"thanks for watching", "subscribe", "like and subscribe",
	"(", ")", "[", "]", "_beg_", "_end_", "_sot_", "_eot_",
}

// singleWordArtifacts are rejected when they make up the whole transcript.
var singleWordArtifacts = map[string]bool{
	"um": true, "uh": true, "ah": true, "hmm": true, "eh": true,
	"oh": true, "mm": true, "a": true, "i": true, "the": true,
	"and": true, "or": true, "but": true, "so": true,
}

// cleanTranscript normalizes recognizer output: bracket annotations become
// parenthetical text and runs of whitespace collapse. If cleaning strips
// everything, the trimmed original is returned.
func cleanTranscript(text string) string {
	trimmed := strings.TrimSpace(text)
	cleaned := trimmed
	for _, r := range bracketReplacements {
		cleaned = strings.ReplaceAll(cleaned, r[0], r[1])
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return trimmed
	}
	return cleaned
}

// estimateConfidence scores a transcript from its text alone, for
// recognizers that do not report per-segment probabilities. Repetitive,
// filler-heavy, or artifact-looking text scores low.
func estimateConfidence(text string) float64 {
	if len(text) < 3 {
		return 0.1
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0.1
	}

	unique := make(map[string]bool, len(words))
	fillers := 0
	for _, w := range words {
		unique[w] = true
		lw := strings.ToLower(w)
		switch {
		case lw == "uh" || lw == "um" || lw == "ah":
			fillers++
		case len(lw) == 1:
			fillers++
		case strings.ContainsAny(lw, "[]_"):
			fillers++
		case lw == "crying" || lw == "music" || lw == "applause" || lw == "silence":
			fillers++
		}
	}
	uniquenessRatio := float64(len(unique)) / float64(len(words))
	fillerRatio := float64(fillers) / float64(len(words))

	penalty := 1.0
	lower := strings.ToLower(text)
	if strings.Contains(lower, "crying") || strings.Contains(lower, "music") ||
		strings.Contains(lower, "applause") || strings.Contains(lower, "silence") ||
		(strings.HasPrefix(lower, "(") && strings.HasSuffix(lower, ")")) {
		penalty = 0.1
	}
	if uniquenessRatio < 0.5 || fillerRatio > 0.3 {
		penalty *= 0.5
	}

	confidence := 0.7 * uniquenessRatio * (1 - fillerRatio) * penalty
	return min(max(confidence, 0.05), 0.95)
}

// transcriptAcceptable decides whether a cleaned transcript is worth
// surfacing. Short, low-confidence, artifact-laden, repetitive, or mostly
// non-alphabetic text is dropped.
func transcriptAcceptable(text string, confidence float64) bool {
	if len(text) < 2 {
		return false
	}
	if confidence < 0.5 {
		return false
	}

	lower := strings.TrimSpace(strings.ToLower(text))
	for _, marker := range artifactMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}

	words := strings.Fields(text)
	if len(words) == 1 && singleWordArtifacts[strings.ToLower(words[0])] {
		return false
	}
	if len(words) > 3 {
		unique := make(map[string]bool, len(words))
		for _, w := range words {
			unique[w] = true
		}
		if float64(len(unique))/float64(len(words)) < 0.4 {
			return false
		}
	}

	alpha, total := 0, 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	if total > 0 && float64(alpha)/float64(total) < 0.5 {
		return false
	}
	return true
}
