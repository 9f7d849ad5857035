package capture

import "testing"

func TestCleanTranscript(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"trims whitespace", "  hello   world  ", "hello world"},
		{"music annotation", "[MUSIC] hello", "(music) hello"},
		{"blank audio removed", "[BLANK_AUDIO] hello", "hello"},
		{"only blank audio keeps original", "[BLANK_AUDIO]", "[BLANK_AUDIO]"},
		{"beeping", "then [BEEPING] stopped", "then (beeping) stopped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanTranscript(tt.in); got != tt.want {
				t.Errorf("cleanTranscript(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEstimateConfidence(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		atLeast float64
		atMost  float64
	}{
		{"empty", "", 0.1, 0.1},
		{"normal sentence", "the quick brown fox jumps over fences", 0.5, 0.95},
		{"repeated word", "test test test test test test", 0.05, 0.2},
		{"parenthetical artifact", "(music)", 0.05, 0.15},
		{"filler heavy", "um uh um uh um", 0.05, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimateConfidence(tt.in)
			if got < tt.atLeast || got > tt.atMost {
				t.Errorf("estimateConfidence(%q) = %v, want in [%v, %v]", tt.in, got, tt.atLeast, tt.atMost)
			}
		})
	}
}

func TestTranscriptAcceptable(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		confidence float64
		want       bool
	}{
		{"good sentence", "let me check the deployment status", 0.8, true},
		{"too short", "a", 0.9, false},
		{"low confidence", "let me check the deployment status", 0.3, false},
		{"music marker", "soft music playing", 0.8, false},
		{"youtube outro", "thanks for watching", 0.9, false},
		{"bracketed", "[inaudible]", 0.8, false},
		{"single filler", "um", 0.8, false},
		{"single real word", "deploy", 0.8, true},
		{"repetitive", "go go go go go go go go", 0.8, false},
		{"mostly symbols", "!!! ??? ... 123", 0.8, false},
		{"special tokens", "_sot_ hello there", 0.8, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transcriptAcceptable(tt.text, tt.confidence); got != tt.want {
				t.Errorf("transcriptAcceptable(%q, %v) = %v, want %v", tt.text, tt.confidence, got, tt.want)
			}
		})
	}
}
