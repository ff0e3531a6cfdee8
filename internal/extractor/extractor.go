// Package extractor splits a raw, possibly truncated model response into the
// message shown to the user and the character-file fragment embedded in it.
//
// The backend answers with one free-text stream that should eventually be
// {"message": ..., "characterFileJson": {...}}. While the stream is still
// arriving, or when the model strays from that shape, Extract falls back
// through progressively more lenient strategies. It never fails: every call
// yields some displayable message.
package extractor

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/titanous/json5"

	"github.com/MikeSquared-Agency/fleek/internal/character"
)

const (
	// MaxPlainMessageLen bounds, in characters, how long leftover prose may be
	// and still be shown as a plain message.
	MaxPlainMessageLen = 1000

	// InvalidContent is shown when the response is not text at all.
	InvalidContent = "Invalid content"
)

// Strategy names the step of the cascade that produced a Result.
type Strategy string

const (
	StrategyWholeDocument  Strategy = "whole_document"
	StrategyStrictMessage  Strategy = "strict_message"
	StrategyRelaxedMessage Strategy = "relaxed_message"
	StrategyLenientMessage Strategy = "lenient_message"
	StrategyCleanedText    Strategy = "cleaned_text"
	StrategyRawText        Strategy = "raw_text"
	StrategyInvalidContent Strategy = "invalid_content"
)

// Result is the outcome of one extraction. Fragment is nil when no structured
// data could be recovered.
type Result struct {
	Message  string
	Fragment *character.Fragment
	Strategy Strategy
}

type strategy struct {
	name  Strategy
	apply func(raw string) (Result, bool)
}

var (
	strictMessage  = regexp.MustCompile(`"message":\s*"((?:[^"\\]|\\.)*)"`)
	relaxedMessage = regexp.MustCompile(`message":\s*"([^"]+)"`)
	// Runs to end of input when the closing quote has not streamed in yet.
	lenientMessage = regexp.MustCompile(`"message":\s*"([\s\S]*?)(?:"|$)`)

	fragmentKey = regexp.MustCompile(`"characterFileJson"\s*:\s*\{`)
	jsonFence   = regexp.MustCompile("(?s)```json\n.*?\n```")
)

// cascade is evaluated in order; the first strategy that matches wins.
var cascade = []strategy{
	{StrategyWholeDocument, wholeDocument},
	{StrategyStrictMessage, messagePattern(strictMessage)},
	{StrategyRelaxedMessage, messagePattern(relaxedMessage)},
	{StrategyLenientMessage, messagePattern(lenientMessage)},
	{StrategyCleanedText, cleanedText},
	{StrategyRawText, rawText},
}

// Extract runs the cascade over raw.
func Extract(raw string) Result {
	for _, s := range cascade {
		if r, ok := s.apply(raw); ok {
			r.Strategy = s.name
			return r
		}
	}
	return Result{Message: InvalidContent, Strategy: StrategyInvalidContent}
}

// Display returns only the user-facing message for raw.
func Display(raw string) string {
	return Extract(raw).Message
}

func wholeDocument(raw string) (Result, bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &top); err != nil || top == nil {
		return Result{}, false
	}
	var message string
	if err := json.Unmarshal(top["message"], &message); err != nil || message == "" {
		return Result{}, false
	}
	body, ok := top["characterFileJson"]
	if !ok {
		return Result{}, false
	}
	frag, err := character.ParseFragment(body)
	if err != nil {
		return Result{}, false
	}
	return Result{Message: message, Fragment: frag}, true
}

func messagePattern(re *regexp.Regexp) func(string) (Result, bool) {
	return func(raw string) (Result, bool) {
		m := re.FindStringSubmatch(raw)
		if m == nil || m[1] == "" {
			return Result{}, false
		}
		return Result{Message: unescape(m[1]), Fragment: findFragment(raw)}, true
	}
}

func cleanedText(raw string) (Result, bool) {
	clean := strings.TrimSpace(jsonFence.ReplaceAllString(raw, ""))
	n := utf8.RuneCountInString(clean)
	if n == 0 || n >= MaxPlainMessageLen {
		return Result{}, false
	}
	return Result{Message: clean}, true
}

func rawText(raw string) (Result, bool) {
	if !utf8.ValidString(raw) {
		return Result{}, false
	}
	return Result{Message: raw}, true
}

// unescape undoes the two escapes a model response commonly carries inside
// the message string. Other escapes are left as they are.
func unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\n`, "\n")
}

// findFragment locates the characterFileJson object independently of the
// message. It takes the shortest {...} span after the key whose closing brace
// is followed by optional space and a comma or brace, or by end of input.
// Nested objects can therefore be cut short; such spans fail to parse and the
// fragment is dropped for this update.
func findFragment(raw string) *character.Fragment {
	span, ok := fragmentSpan(raw)
	if !ok {
		return nil
	}
	return parseSpan(span)
}

func fragmentSpan(raw string) (string, bool) {
	for _, loc := range fragmentKey.FindAllStringIndex(raw, -1) {
		start := loc[1] - 1
		for i := start + 1; i < len(raw); i++ {
			if raw[i] == '}' && closesFragment(raw[i+1:]) {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

func closesFragment(rest string) bool {
	if rest == "" {
		return true
	}
	rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
	return rest != "" && (rest[0] == ',' || rest[0] == '}')
}

// parseSpan parses strictly first, then as JSON5 to tolerate trailing commas,
// single quotes and unquoted keys.
func parseSpan(span string) *character.Fragment {
	if frag, err := character.ParseFragment([]byte(span)); err == nil {
		return frag
	}
	var loose any
	if err := json5.Unmarshal([]byte(span), &loose); err != nil {
		return nil
	}
	normalized, err := json.Marshal(loose)
	if err != nil {
		return nil
	}
	frag, err := character.ParseFragment(normalized)
	if err != nil {
		return nil
	}
	return frag
}
