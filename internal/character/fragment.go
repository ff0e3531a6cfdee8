package character

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var errNotObject = errors.New("fragment is not a JSON object")

// Fragment is a partial character file recovered from one model response.
// A nil field was absent from the response and leaves the running document
// alone on merge.
type Fragment struct {
	Name            *string
	Bio             *Lines
	Lore            *Lines
	Knowledge       *[]string
	MessageExamples *[]Exchange
	PostExamples    *[]string
	Topics          *[]string
	Adjectives      *[]string
	Style           *StyleFragment
	Clients         *[]string
	Plugins         *[]string
	Settings        *Settings

	// Extra holds unknown top-level keys, verbatim.
	Extra map[string]json.RawMessage
}

type StyleFragment struct {
	General *[]string
	Chat    *[]string
	Post    *[]string
}

// ParseFragment decodes a character file object field by field. A field that
// is null or has the wrong shape is treated as absent so one bad field cannot
// cost the rest of the update. It only fails when data is not a JSON object.
func ParseFragment(data []byte) (*Fragment, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	if fields == nil {
		return nil, errNotObject
	}

	f := &Fragment{}
	for key, raw := range fields {
		if isNull(raw) {
			continue
		}
		switch key {
		case "name":
			f.Name = decodeField[string](raw)
		case "bio":
			f.Bio = decodeField[Lines](raw)
		case "lore":
			f.Lore = decodeField[Lines](raw)
		case "knowledge":
			f.Knowledge = decodeField[[]string](raw)
		case "messageExamples":
			f.MessageExamples = decodeField[[]Exchange](raw)
		case "postExamples":
			f.PostExamples = decodeField[[]string](raw)
		case "topics":
			f.Topics = decodeField[[]string](raw)
		case "adjectives":
			f.Adjectives = decodeField[[]string](raw)
		case "style":
			f.Style = decodeStyle(raw)
		case "clients":
			f.Clients = decodeField[[]string](raw)
		case "plugins":
			f.Plugins = decodeField[[]string](raw)
		case "settings":
			f.Settings = decodeField[Settings](raw)
		default:
			if f.Extra == nil {
				f.Extra = make(map[string]json.RawMessage)
			}
			f.Extra[key] = slices.Clone(raw)
		}
	}
	return f, nil
}

func decodeStyle(raw json.RawMessage) *StyleFragment {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil
	}
	general, ok := fields["all"]
	if !ok || isNull(general) {
		general = fields["general"]
	}
	s := &StyleFragment{}
	if general != nil && !isNull(general) {
		s.General = decodeField[[]string](general)
	}
	if v, ok := fields["chat"]; ok && !isNull(v) {
		s.Chat = decodeField[[]string](v)
	}
	if v, ok := fields["post"]; ok && !isNull(v) {
		s.Post = decodeField[[]string](v)
	}
	return s
}

func decodeField[T any](raw json.RawMessage) *T {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
