package playelement

import "time"

// CloneValue deep-copies an arbitrarily nested plain value. Binary payloads
// become fresh buffers with identical bytes, date values keep their instant,
// slices and maps clone element-wise, everything else passes through as-is.
// Deliberately not a serialization round trip: that is the path that turns
// byte buffers into lossy structural representations.
func CloneValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		out := make([]byte, len(x))
		copy(out, x)
		return out
	case time.Time:
		return time.Unix(0, x.UnixNano()).In(x.Location())
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = CloneValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneExtra(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return CloneValue(m).(map[string]any)
}

// Clone returns a fully independent copy of the document.
func (doc *Document) Clone() *Document {
	if doc == nil {
		return &Document{}
	}
	return &Document{
		Element: doc.Element.Clone(),
		Design:  doc.Design.Clone(),
	}
}

func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := *e
	out.Extra = cloneExtra(e.Extra)
	return &out
}

func (d *Design) Clone() *Design {
	if d == nil {
		return nil
	}
	out := Design{
		ID:       d.ID,
		ModRules: cloneBytes(d.ModRules),
		Extra:    cloneExtra(d.Extra),
	}
	if d.Attachments != nil {
		out.Attachments = make([]*Attachment, len(d.Attachments))
		for i, a := range d.Attachments {
			out.Attachments[i] = a.Clone()
		}
	}
	out.MapRotation = d.MapRotation.Clone()
	out.Mutators = cloneMutators(d.Mutators)
	if d.AssetCategories != nil {
		out.AssetCategories = make([]AssetCategory, len(d.AssetCategories))
		for i, c := range d.AssetCategories {
			out.AssetCategories[i] = c.Clone()
		}
	}
	return &out
}

func (a *Attachment) Clone() *Attachment {
	if a == nil {
		return nil
	}
	out := *a
	out.Payload = cloneBytes(a.Payload)
	out.Compiled = cloneBytes(a.Compiled)
	if a.Errors != nil {
		out.Errors = make([]string, len(a.Errors))
		copy(out.Errors, a.Errors)
	}
	out.Extra = cloneExtra(a.Extra)
	return &out
}

func (r *MapRotation) Clone() *MapRotation {
	if r == nil {
		return nil
	}
	out := MapRotation{
		Behavior: r.Behavior,
		Extra:    cloneExtra(r.Extra),
	}
	if r.Maps != nil {
		out.Maps = make([]MapEntry, len(r.Maps))
		for i, m := range r.Maps {
			out.Maps[i] = m.Clone()
		}
	}
	return &out
}

func (m MapEntry) Clone() MapEntry {
	out := m
	out.Teams = m.Teams.Clone()
	out.Mutators = cloneMutators(m.Mutators)
	out.Extra = cloneExtra(m.Extra)
	return out
}

func (c TeamComposition) Clone() TeamComposition {
	out := c
	if c.Teams != nil {
		out.Teams = make([]Team, len(c.Teams))
		copy(out.Teams, c.Teams)
	}
	if c.InternalTeams != nil {
		out.InternalTeams = make([]InternalTeam, len(c.InternalTeams))
		copy(out.InternalTeams, c.InternalTeams)
	}
	return out
}

func cloneMutators(ms []Mutator) []Mutator {
	if ms == nil {
		return nil
	}
	out := make([]Mutator, len(ms))
	for i, m := range ms {
		out[i] = m
		if m.Value.Overrides != nil {
			out[i].Value.Overrides = make([]TeamOverride, len(m.Value.Overrides))
			copy(out[i].Value.Overrides, m.Value.Overrides)
		}
	}
	return out
}

func (c AssetCategory) Clone() AssetCategory {
	out := c
	if c.TagOverrides != nil {
		out.TagOverrides = make([]TagOverride, len(c.TagOverrides))
		copy(out.TagOverrides, c.TagOverrides)
	}
	if c.TeamOverrides != nil {
		out.TeamOverrides = make([]TeamTagOverride, len(c.TeamOverrides))
		copy(out.TeamOverrides, c.TeamOverrides)
	}
	return out
}
