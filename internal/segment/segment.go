// Package segment splits a stream of generated text fragments into complete
// sentences so synthesis can start before generation finishes.
//
// A sentence ends at the first '.', '!', or '?' immediately followed by a
// whitespace character. Abbreviation periods mid-token ("e.g.", "3.14") do
// not split because no whitespace follows the terminator. Whatever text
// remains when the stream ends is flushed as a final segment.
package segment

import (
	"context"
	"strings"
)

// Boundary returns the index of the first '.', '!', or '?' character that is
// immediately followed by a whitespace character (' ', '\n', '\r', or '\t').
// Returns -1 if no such boundary exists in s.
func Boundary(s string) int {
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			switch s[i+1] {
			case ' ', '\n', '\r', '\t':
				return i
			}
		}
	}
	return -1
}

// Split reads text fragments from in, accumulates them, and emits complete
// sentences on the returned channel in order. The trailing partial sentence
// is flushed when in closes. The returned channel is closed once all segments
// have been emitted or ctx is cancelled.
//
// Emitted segments are trimmed of leading whitespace; empty segments are
// never emitted.
func Split(ctx context.Context, in <-chan string) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		var buf strings.Builder
		for {
			select {
			case <-ctx.Done():
				return
			case frag, ok := <-in:
				if !ok {
					// Stream ended: flush remaining text.
					if rest := strings.TrimSpace(buf.String()); rest != "" {
						select {
						case out <- rest:
						case <-ctx.Done():
						}
					}
					return
				}
				buf.WriteString(frag)

				// A single fragment can complete several sentences.
				for {
					idx := Boundary(buf.String())
					if idx < 0 {
						break
					}
					sentence := buf.String()[:idx+1]
					rest := buf.String()[idx+1:]
					buf.Reset()
					buf.WriteString(strings.TrimLeft(rest, " \t\n\r"))
					if sentence = strings.TrimSpace(sentence); sentence == "" {
						continue
					}
					select {
					case out <- sentence:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out
}

// SplitText segments fully formed text without streaming. Used for replies
// produced by the non-streamed completion path.
func SplitText(text string) []string {
	var segments []string
	rest := text
	for {
		idx := Boundary(rest)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:idx+1]); s != "" {
			segments = append(segments, s)
		}
		rest = strings.TrimLeft(rest[idx+1:], " \t\n\r")
	}
	if s := strings.TrimSpace(rest); s != "" {
		segments = append(segments, s)
	}
	return segments
}
