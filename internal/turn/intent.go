package turn

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// exitWords end the session when spoken.
var exitWords = []string{"exit", "goodbye", "shutdown", "stop", "quit"}

// resetWords clear the conversation history when spoken as the whole
// transcript.
var resetWords = []string{"reset", "new conversation"}

// fuzzyExitThreshold is the Jaro-Winkler score above which a transcript
// token counts as an exit word despite recognition errors ("could buy" for
// "goodbye" stays below it, "goodby" clears it).
const fuzzyExitThreshold = 0.92

// fuzzyMinWordLen limits the fuzzy pass to the longer exit words. Short
// words like "exit" and "quit" score too close to ordinary words ("exits",
// "quite") under Jaro-Winkler and must match exactly.
const fuzzyMinWordLen = 6

// normalize lowercases the transcript and strips terminal punctuation from
// each token.
func normalize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// isExitIntent reports whether the transcript asks to end the session.
// Exact token matches are checked first, then a fuzzy pass tolerating STT
// misrecognitions.
func isExitIntent(text string) bool {
	tokens := normalize(text)
	for _, tok := range tokens {
		for _, w := range exitWords {
			if tok == w {
				return true
			}
		}
	}
	for _, tok := range tokens {
		for _, w := range exitWords {
			if len(w) < fuzzyMinWordLen {
				continue
			}
			if matchr.JaroWinkler(tok, w, false) >= fuzzyExitThreshold {
				return true
			}
		}
	}
	return false
}

// isResetIntent reports whether the whole transcript is a history reset
// command.
func isResetIntent(text string) bool {
	joined := strings.Join(normalize(text), " ")
	for _, w := range resetWords {
		if joined == w {
			return true
		}
	}
	return false
}
