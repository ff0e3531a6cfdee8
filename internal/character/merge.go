package character

import (
	"encoding/json"
	"slices"
)

// Merge folds f into current and returns the new document. Fields present in
// f replace the current value; absent fields keep it. Style is merged per
// sub-list with the same rule, and unknown keys are merged per key.
//
// The result shares no memory with either argument, so it is safe to call
// again with the same fragment as the stream for a turn grows.
func Merge(current Document, f *Fragment) Document {
	next := current.Clone()
	if f == nil {
		return next
	}

	if f.Name != nil {
		next.Name = *f.Name
	}
	if f.Bio != nil {
		next.Bio = slices.Clone(*f.Bio)
	}
	if f.Lore != nil {
		next.Lore = slices.Clone(*f.Lore)
	}
	setList(&next.Knowledge, f.Knowledge)
	if f.MessageExamples != nil {
		next.MessageExamples = cloneExchanges(*f.MessageExamples)
	}
	setList(&next.PostExamples, f.PostExamples)
	setList(&next.Topics, f.Topics)
	setList(&next.Adjectives, f.Adjectives)
	if f.Style != nil {
		setList(&next.Style.General, f.Style.General)
		setList(&next.Style.Chat, f.Style.Chat)
		setList(&next.Style.Post, f.Style.Post)
	}
	setList(&next.Clients, f.Clients)
	setList(&next.Plugins, f.Plugins)
	if f.Settings != nil {
		next.Settings = f.Settings.clone()
	}
	for k, v := range f.Extra {
		if next.Extra == nil {
			next.Extra = make(map[string]json.RawMessage)
		}
		next.Extra[k] = slices.Clone(v)
	}
	return next
}

func setList(dst *[]string, src *[]string) {
	if src != nil {
		*dst = slices.Clone(*src)
	}
}
