package extractor

import (
	"strings"
	"testing"
)

func TestExtract_WholeDocument(t *testing.T) {
	raw := `{"message": "Here is Bob.", "characterFileJson": {"name": "Bob", "bio": ["Plays sax."], "style": {"chat": ["casual"]}}}`

	r := Extract(raw)

	if r.Strategy != StrategyWholeDocument {
		t.Errorf("expected strategy %s, got %s", StrategyWholeDocument, r.Strategy)
	}
	if r.Message != "Here is Bob." {
		t.Errorf("expected message 'Here is Bob.', got %q", r.Message)
	}
	if r.Fragment == nil || r.Fragment.Name == nil || *r.Fragment.Name != "Bob" {
		t.Fatalf("expected fragment with name Bob, got %+v", r.Fragment)
	}
	if r.Fragment.Style == nil || r.Fragment.Style.Chat == nil || (*r.Fragment.Style.Chat)[0] != "casual" {
		t.Errorf("expected style.chat [casual], got %+v", r.Fragment.Style)
	}
}

func TestExtract_WholeDocumentMissingFragmentFallsThrough(t *testing.T) {
	r := Extract(`{"message": "Just chatting."}`)

	if r.Strategy != StrategyStrictMessage {
		t.Errorf("expected strategy %s, got %s", StrategyStrictMessage, r.Strategy)
	}
	if r.Message != "Just chatting." {
		t.Errorf("expected message 'Just chatting.', got %q", r.Message)
	}
	if r.Fragment != nil {
		t.Errorf("expected no fragment, got %+v", r.Fragment)
	}
}

func TestExtract_PatternWithFragment(t *testing.T) {
	// Outer object not yet closed: the stream is still arriving.
	raw := `{"message": "Meet Bob", "characterFileJson": {"name": "Bob", "topics": ["jazz"]}`

	r := Extract(raw)

	if r.Strategy != StrategyStrictMessage {
		t.Errorf("expected strategy %s, got %s", StrategyStrictMessage, r.Strategy)
	}
	if r.Message != "Meet Bob" {
		t.Errorf("expected message 'Meet Bob', got %q", r.Message)
	}
	if r.Fragment == nil || r.Fragment.Name == nil || *r.Fragment.Name != "Bob" {
		t.Fatalf("expected fragment with name Bob, got %+v", r.Fragment)
	}
	if r.Fragment.Topics == nil || len(*r.Fragment.Topics) != 1 {
		t.Errorf("expected one topic, got %v", r.Fragment.Topics)
	}
}

func TestExtract_UnescapesMessage(t *testing.T) {
	raw := `{"message": "She said \"hi\"\nthen left", "characterFileJson": {"name": "Ann"`

	r := Extract(raw)

	want := "She said \"hi\"\nthen left"
	if r.Message != want {
		t.Errorf("expected %q, got %q", want, r.Message)
	}
	if r.Fragment != nil {
		t.Errorf("expected no fragment for an unterminated object, got %+v", r.Fragment)
	}
}

func TestExtract_TruncatedMidString(t *testing.T) {
	r := Extract(`"message": "Hello wor`)

	if r.Strategy != StrategyLenientMessage {
		t.Errorf("expected strategy %s, got %s", StrategyLenientMessage, r.Strategy)
	}
	if r.Message != "Hello wor" {
		t.Errorf("expected 'Hello wor', got %q", r.Message)
	}
	if r.Fragment != nil {
		t.Errorf("expected no fragment, got %+v", r.Fragment)
	}
}

func TestExtract_RelaxedMessage(t *testing.T) {
	r := Extract(`{message": "missing opening quote"}`)

	if r.Strategy != StrategyRelaxedMessage {
		t.Errorf("expected strategy %s, got %s", StrategyRelaxedMessage, r.Strategy)
	}
	if r.Message != "missing opening quote" {
		t.Errorf("unexpected message %q", r.Message)
	}
}

func TestExtract_UnparsableFragmentKeepsMessage(t *testing.T) {
	r := Extract(`{"message": "Working on it", "characterFileJson": {"name": }, "x": 1`)

	if r.Message != "Working on it" {
		t.Errorf("expected message to survive, got %q", r.Message)
	}
	if r.Fragment != nil {
		t.Errorf("expected fragment to be dropped, got %+v", r.Fragment)
	}
}

func TestExtract_JSON5Fragment(t *testing.T) {
	r := Extract(`{"message": "ok", "characterFileJson": {name: 'Bob', topics: ['jazz']}`)

	if r.Fragment == nil || r.Fragment.Name == nil || *r.Fragment.Name != "Bob" {
		t.Fatalf("expected lenient fragment with name Bob, got %+v", r.Fragment)
	}
	if r.Fragment.Topics == nil || (*r.Fragment.Topics)[0] != "jazz" {
		t.Errorf("expected topics [jazz], got %v", r.Fragment.Topics)
	}
}

func TestExtract_NestedFragmentIsCutShort(t *testing.T) {
	// The shortest span ends at the inner brace, which does not parse.
	raw := `"message": "hi", "characterFileJson": {"name": "Bob", "style": {"all": ["x"]}}`

	r := Extract(raw)

	if r.Message != "hi" {
		t.Errorf("expected message hi, got %q", r.Message)
	}
	if r.Fragment != nil {
		t.Errorf("expected nested fragment to be dropped, got %+v", r.Fragment)
	}
}

func TestExtract_NoMessageKey(t *testing.T) {
	raw := `Hello "there", here is {"characterFileJson": {"name": "Bob"}}`

	r := Extract(raw)

	if r.Message == "" {
		t.Fatal("expected a non-empty message")
	}
	if r.Strategy != StrategyCleanedText {
		t.Errorf("expected strategy %s, got %s", StrategyCleanedText, r.Strategy)
	}
	if r.Fragment != nil && (r.Fragment.Name == nil || *r.Fragment.Name != "Bob") {
		t.Errorf("unexpected fragment %+v", r.Fragment)
	}
}

func TestExtract_PlainProse(t *testing.T) {
	prose := "I can help you design a character. What should it be like?"

	r := Extract(prose)

	if r.Message != prose {
		t.Errorf("expected prose verbatim, got %q", r.Message)
	}
	if r.Fragment != nil {
		t.Errorf("expected no fragment")
	}
	if r.Strategy != StrategyCleanedText {
		t.Errorf("expected strategy %s, got %s", StrategyCleanedText, r.Strategy)
	}
}

func TestExtract_StripsJSONFence(t *testing.T) {
	raw := "Here you go:\n```json\n{\"name\": \"Bob\"}\n```\n"

	r := Extract(raw)

	if r.Message != "Here you go:" {
		t.Errorf("expected fenced block stripped, got %q", r.Message)
	}
}

func TestExtract_LongProseFallsBackToRaw(t *testing.T) {
	prose := "  " + strings.Repeat("lorem ipsum ", 100) + "  "

	r := Extract(prose)

	if r.Strategy != StrategyRawText {
		t.Errorf("expected strategy %s, got %s", StrategyRawText, r.Strategy)
	}
	if r.Message != prose {
		t.Error("expected raw text verbatim, untrimmed")
	}
}

func TestExtract_ExactlyAtBound(t *testing.T) {
	r := Extract(strings.Repeat("a", MaxPlainMessageLen))

	if r.Strategy != StrategyRawText {
		t.Errorf("expected %d characters to miss the bound, got %s", MaxPlainMessageLen, r.Strategy)
	}

	r = Extract(strings.Repeat("é", MaxPlainMessageLen-1))
	if r.Strategy != StrategyCleanedText {
		t.Errorf("expected bound to count characters, not bytes, got %s", r.Strategy)
	}
}

func TestExtract_InvalidContent(t *testing.T) {
	r := Extract(strings.Repeat("\xff", 1200))

	if r.Message != InvalidContent {
		t.Errorf("expected placeholder, got %q", r.Message)
	}
	if r.Strategy != StrategyInvalidContent {
		t.Errorf("expected strategy %s, got %s", StrategyInvalidContent, r.Strategy)
	}
}

func TestExtract_Empty(t *testing.T) {
	r := Extract("")

	if r.Message != "" || r.Strategy != StrategyRawText {
		t.Errorf("expected empty raw message, got %q via %s", r.Message, r.Strategy)
	}
}

func TestExtract_StreamingPrefixes(t *testing.T) {
	full := `{"message": "Meet Bob, a jazz lover.", "characterFileJson": {"name": "Bob", "topics": ["jazz"]}}`

	for i := 1; i <= len(full); i++ {
		prefix := full[:i]
		r := Extract(prefix)
		if r.Message == "" {
			t.Fatalf("prefix %q produced an empty message", prefix)
		}
		if r.Fragment != nil && (r.Fragment.Name == nil || *r.Fragment.Name != "Bob") {
			t.Fatalf("prefix %q produced a wrong fragment %+v", prefix, r.Fragment)
		}
	}

	if r := Extract(full); r.Strategy != StrategyWholeDocument {
		t.Errorf("expected the complete stream to parse whole, got %s", r.Strategy)
	}
}

func TestDisplay(t *testing.T) {
	if got := Display(`{"message": "hi", "characterFileJson": {}}`); got != "hi" {
		t.Errorf("Display = %q, want hi", got)
	}
}
