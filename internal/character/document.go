package character

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Document is the cumulative character file assembled over a session.
type Document struct {
	Name            string     `json:"name"`
	Bio             Lines      `json:"bio"`
	Lore            Lines      `json:"lore"`
	Knowledge       []string   `json:"knowledge"`
	MessageExamples []Exchange `json:"messageExamples"`
	PostExamples    []string   `json:"postExamples"`
	Topics          []string   `json:"topics"`
	Adjectives      []string   `json:"adjectives"`
	Style           Style      `json:"style"`
	Clients         []string   `json:"clients"`
	Plugins         []string   `json:"plugins"`
	Settings        Settings   `json:"settings"`

	// Extra holds top-level keys the model emitted that are not part of the
	// schema above. They are kept verbatim and written back on encode.
	Extra map[string]json.RawMessage `json:"-"`
}

// Style groups the three style rule lists. The general list travels as "all".
type Style struct {
	General []string `json:"all"`
	Chat    []string `json:"chat"`
	Post    []string `json:"post"`
}

// Exchange is one example conversation: a prompt followed by the character's reply.
type Exchange []ExampleMessage

type ExampleMessage struct {
	User    string         `json:"user"`
	Content MessageContent `json:"content"`
}

type MessageContent struct {
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
}

// Lines is a field the model may emit either as one string or as a list of
// strings. It is always held (and encoded) as a list.
type Lines []string

func (l *Lines) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*l = Lines{}
		} else {
			*l = Lines{s}
		}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("want string or list of strings: %w", err)
	}
	*l = list
	return nil
}

func (l Lines) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Settings carries runtime settings for the agent. Only secrets are modelled;
// every other key is kept opaque.
type Settings struct {
	Secrets map[string]string
	Extra   map[string]json.RawMessage
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	*s = Settings{}
	for key, raw := range fields {
		if key != "secrets" {
			if s.Extra == nil {
				s.Extra = make(map[string]json.RawMessage)
			}
			s.Extra[key] = slices.Clone(raw)
			continue
		}
		var secrets map[string]json.RawMessage
		if err := json.Unmarshal(raw, &secrets); err != nil {
			continue
		}
		s.Secrets = make(map[string]string, len(secrets))
		for k, v := range secrets {
			var str string
			if json.Unmarshal(v, &str) == nil {
				s.Secrets[k] = str
			} else {
				s.Secrets[k] = string(v)
			}
		}
	}
	return nil
}

func (s Settings) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+1)
	for k, v := range s.Extra {
		out[k] = v
	}
	secrets := s.Secrets
	if secrets == nil {
		secrets = map[string]string{}
	}
	out["secrets"] = secrets
	return json.Marshal(out)
}

func (s Settings) clone() Settings {
	return Settings{Secrets: maps.Clone(s.Secrets), Extra: cloneRaw(s.Extra)}
}

func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	p := plain(d)
	p.Knowledge = orEmpty(p.Knowledge)
	p.PostExamples = orEmpty(p.PostExamples)
	p.Topics = orEmpty(p.Topics)
	p.Adjectives = orEmpty(p.Adjectives)
	p.Clients = orEmpty(p.Clients)
	p.Plugins = orEmpty(p.Plugins)
	p.Style.General = orEmpty(p.Style.General)
	p.Style.Chat = orEmpty(p.Style.Chat)
	p.Style.Post = orEmpty(p.Style.Post)
	if p.MessageExamples == nil {
		p.MessageExamples = []Exchange{}
	}

	base, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return base, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range d.Extra {
		if _, known := fields[k]; !known {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a stored character file with the same tolerance the
// live stream gets: malformed fields are skipped rather than failing the whole
// document.
func (d *Document) UnmarshalJSON(data []byte) error {
	f, err := ParseFragment(data)
	if err != nil {
		return err
	}
	*d = Merge(Document{}, f)
	return nil
}

// Clone returns a deep copy that shares no slices or maps with d.
func (d Document) Clone() Document {
	out := d
	out.Bio = slices.Clone(d.Bio)
	out.Lore = slices.Clone(d.Lore)
	out.Knowledge = slices.Clone(d.Knowledge)
	out.MessageExamples = cloneExchanges(d.MessageExamples)
	out.PostExamples = slices.Clone(d.PostExamples)
	out.Topics = slices.Clone(d.Topics)
	out.Adjectives = slices.Clone(d.Adjectives)
	out.Style = Style{
		General: slices.Clone(d.Style.General),
		Chat:    slices.Clone(d.Style.Chat),
		Post:    slices.Clone(d.Style.Post),
	}
	out.Clients = slices.Clone(d.Clients)
	out.Plugins = slices.Clone(d.Plugins)
	out.Settings = d.Settings.clone()
	out.Extra = cloneRaw(d.Extra)
	return out
}

// Fields lists the populated fields in preview order.
func (d Document) Fields() []string {
	var out []string
	add := func(name string, populated bool) {
		if populated {
			out = append(out, name)
		}
	}
	add("name", d.Name != "")
	add("clients", len(d.Clients) > 0)
	add("plugins", len(d.Plugins) > 0)
	add("settings", len(d.Settings.Secrets) > 0 || len(d.Settings.Extra) > 0)
	add("bio", len(d.Bio) > 0)
	add("lore", len(d.Lore) > 0)
	add("knowledge", len(d.Knowledge) > 0)
	add("topics", len(d.Topics) > 0)
	add("adjectives", len(d.Adjectives) > 0)
	add("messageExamples", len(d.MessageExamples) > 0)
	add("postExamples", len(d.PostExamples) > 0)
	add("style", len(d.Style.General) > 0 || len(d.Style.Chat) > 0 || len(d.Style.Post) > 0)
	for _, k := range slices.Sorted(maps.Keys(d.Extra)) {
		out = append(out, k)
	}
	return out
}

func (d Document) IsEmpty() bool {
	return len(d.Fields()) == 0
}

func cloneExchanges(in []Exchange) []Exchange {
	if in == nil {
		return nil
	}
	out := make([]Exchange, len(in))
	for i, ex := range in {
		out[i] = slices.Clone(ex)
	}
	return out
}

func cloneRaw(in map[string]json.RawMessage) map[string]json.RawMessage {
	if in == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
