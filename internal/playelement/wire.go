package playelement

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Wire keys of the serializer's plain-object document shape.
const (
	keyElement = "element"
	keyDesign  = "design"
)

var (
	publishStateNames = map[string]int32{
		"INVALID": 0, "DRAFT": 1, "PUBLISHED": 2, "ARCHIVED": 3, "ERROR": 4,
	}
	attachmentTypeNames = map[string]int32{
		"SPATIAL": 1, "SCRIPT": 2, "SCRIPT_DATA": 3, "STRINGS": 4, "MP_DATA": 5,
	}
	processingStatusNames = map[string]int32{
		"PENDING": 1, "PROCESSED": 2, "NEEDS_RECOMPILE": 3, "ERROR": 4,
	}
	rotationBehaviorNames = map[string]int32{
		"LOOP": 0, "END_OF_ROUND_VOTE": 1, "ONE_MAP": 2,
	}
	balancingMethodNames = map[string]int32{
		"NONE": 0, "SKILL": 1, "SQUAD": 2,
	}
	capacityTypeNames = map[string]int32{
		"FILL": 0, "FIXED": 1,
	}
)

// FromWire normalizes a decoded plain-object document into the canonical
// typed shape. Dual-shape fields (wrapped strings, enums as names or
// numbers, bytes as base64 or buffers) are collapsed here, once, at the
// boundary.
func FromWire(obj map[string]any) (*Document, error) {
	doc := &Document{}
	if raw, ok := obj[keyElement]; ok {
		m, ok := asMap(raw)
		if !ok {
			return nil, fmt.Errorf("playelement: element is %T, not an object", raw)
		}
		doc.Element = elementFromWire(m)
	}
	if raw, ok := obj[keyDesign]; ok {
		m, ok := asMap(raw)
		if !ok {
			return nil, fmt.Errorf("playelement: design is %T, not an object", raw)
		}
		doc.Design = designFromWire(m)
	}
	return doc, nil
}

// ToWire renders an element/design pair back into the plain-object shape
// the serializer expects, canonicalizing every binary-shaped field on the
// way out.
func ToWire(e *Element, d *Design) map[string]any {
	obj := map[string]any{}
	if e != nil {
		obj[keyElement] = elementToWire(e)
	}
	if d != nil {
		obj[keyDesign] = designToWire(d)
	}
	return obj
}

func elementFromWire(m map[string]any) *Element {
	e := &Element{
		ID:             str(m["id"]),
		Name:           str(m["name"]),
		Description:    str(m["description"]),
		ThumbnailURL:   str(m["thumbnailUrl"]),
		CreatorVariant: str(m["creatorVariant"]),
		Extra: collectExtra(m, "id", "name", "description", "thumbnailUrl",
			"publishState", "moderationState", "creatorVariant"),
	}
	e.PublishState = PublishState(enumVal(m["publishState"], publishStateNames))
	e.ModerationState = int32(i64(m["moderationState"]))
	return e
}

func elementToWire(e *Element) map[string]any {
	obj := baseFromExtra(e.Extra)
	obj["id"] = e.ID
	obj["name"] = e.Name
	obj["description"] = e.Description
	obj["thumbnailUrl"] = e.ThumbnailURL
	obj["publishState"] = int32(e.PublishState)
	obj["moderationState"] = e.ModerationState
	obj["creatorVariant"] = e.CreatorVariant
	return obj
}

func designFromWire(m map[string]any) *Design {
	d := &Design{
		ID:       str(m["id"]),
		ModRules: bin(m["modRules"]),
		Extra: collectExtra(m, "id", "attachments", "mapRotation", "mutators",
			"assetCategories", "modRules"),
	}
	for _, raw := range list(m["attachments"]) {
		if am, ok := asMap(raw); ok {
			d.Attachments = append(d.Attachments, attachmentFromWire(am))
		}
	}
	if rm, ok := asMap(m["mapRotation"]); ok {
		d.MapRotation = rotationFromWire(rm)
	}
	d.Mutators = mutatorsFromWire(m["mutators"])
	for _, raw := range list(m["assetCategories"]) {
		if cm, ok := asMap(raw); ok {
			d.AssetCategories = append(d.AssetCategories, categoryFromWire(cm))
		}
	}
	return d
}

func designToWire(d *Design) map[string]any {
	obj := baseFromExtra(d.Extra)
	obj["id"] = d.ID
	atts := make([]any, 0, len(d.Attachments))
	for _, a := range d.Attachments {
		atts = append(atts, attachmentToWire(a))
	}
	obj["attachments"] = atts
	if d.MapRotation != nil {
		obj["mapRotation"] = rotationToWire(d.MapRotation)
	}
	if d.Mutators != nil {
		obj["mutators"] = mutatorsToWire(d.Mutators)
	}
	if d.AssetCategories != nil {
		cats := make([]any, 0, len(d.AssetCategories))
		for _, c := range d.AssetCategories {
			cats = append(cats, categoryToWire(c))
		}
		obj["assetCategories"] = cats
	}
	if d.ModRules != nil {
		obj["modRules"] = base64.StdEncoding.EncodeToString(d.ModRules)
	}
	return obj
}

func attachmentFromWire(m map[string]any) *Attachment {
	a := &Attachment{
		ID:       str(m["id"]),
		Version:  str(m["version"]),
		Filename: str(m["filename"]),
		Type:     AttachmentType(enumVal(m["attachmentType"], attachmentTypeNames)),
		Status:   ProcessingStatus(enumVal(m["processingStatus"], processingStatusNames)),
		Payload:  bin(m["payload"]),
		Metadata: str(m["metadata"]),
		Extra: collectExtra(m, "id", "version", "filename", "attachmentType",
			"processingStatus", "payload", "compiledPayload", "metadata", "errors"),
	}
	if raw, ok := m["compiledPayload"]; ok {
		a.Compiled = bin(raw)
		if a.Compiled == nil {
			a.Compiled = []byte{}
		}
	}
	for _, raw := range list(m["errors"]) {
		if s := str(raw); s != "" {
			a.Errors = append(a.Errors, s)
		} else if em, ok := asMap(raw); ok {
			a.Errors = append(a.Errors, str(em["message"]))
		}
	}
	return a
}

func attachmentToWire(a *Attachment) map[string]any {
	obj := baseFromExtra(a.Extra)
	obj["id"] = a.ID
	obj["version"] = a.Version
	obj["filename"] = a.Filename
	obj["attachmentType"] = int32(a.Type)
	obj["processingStatus"] = int32(a.Status)
	obj["payload"] = base64.StdEncoding.EncodeToString(a.Payload)
	if a.Compiled != nil {
		obj["compiledPayload"] = base64.StdEncoding.EncodeToString(a.Compiled)
	}
	obj["metadata"] = a.Metadata
	if a.Errors != nil {
		errs := make([]any, 0, len(a.Errors))
		for _, e := range a.Errors {
			errs = append(errs, e)
		}
		obj["errors"] = errs
	}
	return obj
}

func rotationFromWire(m map[string]any) *MapRotation {
	r := &MapRotation{
		Behavior: RotationBehavior(enumVal(m["behavior"], rotationBehaviorNames)),
		Extra:    collectExtra(m, "behavior", "maps"),
	}
	for _, raw := range list(m["maps"]) {
		if mm, ok := asMap(raw); ok {
			r.Maps = append(r.Maps, mapEntryFromWire(mm))
		}
	}
	return r
}

func rotationToWire(r *MapRotation) map[string]any {
	obj := baseFromExtra(r.Extra)
	obj["behavior"] = int32(r.Behavior)
	maps := make([]any, 0, len(r.Maps))
	for _, m := range r.Maps {
		maps = append(maps, mapEntryToWire(m))
	}
	obj["maps"] = maps
	return obj
}

func mapEntryFromWire(m map[string]any) MapEntry {
	entry := MapEntry{
		LevelName:         str(m["levelName"]),
		LevelLocation:     str(m["levelLocation"]),
		Rounds:            int32(i64(m["rounds"])),
		AllowedSpectators: int32(i64(m["allowedSpectators"])),
		AllowMidRoundJoin: boolean(m["allowMidRoundJoin"]),
		Mutators:          mutatorsFromWire(m["mutators"]),
		Extra: collectExtra(m, "levelName", "levelLocation", "rounds",
			"allowedSpectators", "teamComposition", "mutators", "allowMidRoundJoin"),
	}
	if cm, ok := asMap(m["teamComposition"]); ok {
		entry.Teams = compositionFromWire(cm)
	}
	return entry
}

func mapEntryToWire(m MapEntry) map[string]any {
	obj := baseFromExtra(m.Extra)
	obj["levelName"] = m.LevelName
	obj["levelLocation"] = m.LevelLocation
	obj["rounds"] = m.Rounds
	obj["allowedSpectators"] = m.AllowedSpectators
	obj["teamComposition"] = compositionToWire(m.Teams)
	if m.Mutators != nil {
		obj["mutators"] = mutatorsToWire(m.Mutators)
	}
	obj["allowMidRoundJoin"] = m.AllowMidRoundJoin
	return obj
}

func compositionFromWire(m map[string]any) TeamComposition {
	c := TeamComposition{
		Balancing: BalancingMethod(enumVal(m["balancingMethod"], balancingMethodNames)),
	}
	for _, raw := range list(m["teams"]) {
		if tm, ok := asMap(raw); ok {
			c.Teams = append(c.Teams, Team{
				ID:       int32(i64(tm["teamId"])),
				Capacity: int32(i64(tm["capacity"])),
			})
		}
	}
	for _, raw := range list(m["internalTeams"]) {
		if tm, ok := asMap(raw); ok {
			c.InternalTeams = append(c.InternalTeams, InternalTeam{
				ID:           int32(i64(tm["teamId"])),
				Capacity:     int32(i64(tm["capacity"])),
				CapacityType: CapacityType(enumVal(tm["capacityType"], capacityTypeNames)),
			})
		}
	}
	return c
}

func compositionToWire(c TeamComposition) map[string]any {
	teams := make([]any, 0, len(c.Teams))
	for _, t := range c.Teams {
		teams = append(teams, map[string]any{"teamId": t.ID, "capacity": t.Capacity})
	}
	obj := map[string]any{
		"teams":           teams,
		"balancingMethod": int32(c.Balancing),
	}
	if c.InternalTeams != nil {
		internal := make([]any, 0, len(c.InternalTeams))
		for _, t := range c.InternalTeams {
			internal = append(internal, map[string]any{
				"teamId":       t.ID,
				"capacity":     t.Capacity,
				"capacityType": int32(t.CapacityType),
			})
		}
		obj["internalTeams"] = internal
	}
	return obj
}

func mutatorsFromWire(raw any) []Mutator {
	var out []Mutator
	for _, item := range list(raw) {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		mut := Mutator{
			Name:     str(m["name"]),
			Category: str(m["category"]),
			ID:       str(m["id"]),
		}
		mut.Value.Kind = ValueKind(i64(m["kind"]))
		switch mut.Value.Kind {
		case KindBool, KindSparseBool:
			mut.Value.Bool = boolean(m["bool"])
		case KindInt, KindSparseInt:
			mut.Value.Int = i64(m["int"])
		case KindFloat, KindSparseFloat:
			mut.Value.Float = f64(m["float"])
		case KindString:
			mut.Value.Str = str(m["string"])
		}
		if mut.Value.Kind.Sparse() {
			for _, oraw := range list(m["overrides"]) {
				om, ok := asMap(oraw)
				if !ok {
					continue
				}
				mut.Value.Overrides = append(mut.Value.Overrides, TeamOverride{
					TeamIndex: int32(i64(om["teamIndex"])),
					Bool:      boolean(om["bool"]),
					Int:       i64(om["int"]),
					Float:     f64(om["float"]),
				})
			}
		}
		out = append(out, mut)
	}
	return out
}

func mutatorsToWire(ms []Mutator) []any {
	out := make([]any, 0, len(ms))
	for _, m := range ms {
		obj := map[string]any{
			"name":     m.Name,
			"category": m.Category,
			"id":       m.ID,
			"kind":     int32(m.Value.Kind),
		}
		switch m.Value.Kind {
		case KindBool, KindSparseBool:
			obj["bool"] = m.Value.Bool
		case KindInt, KindSparseInt:
			obj["int"] = strconv.FormatInt(m.Value.Int, 10)
		case KindFloat, KindSparseFloat:
			obj["float"] = m.Value.Float
		case KindString:
			obj["string"] = m.Value.Str
		}
		if m.Value.Kind.Sparse() {
			overrides := make([]any, 0, len(m.Value.Overrides))
			for _, o := range m.Value.Overrides {
				om := map[string]any{"teamIndex": o.TeamIndex}
				switch m.Value.Kind {
				case KindSparseBool:
					om["bool"] = o.Bool
				case KindSparseInt:
					om["int"] = strconv.FormatInt(o.Int, 10)
				case KindSparseFloat:
					om["float"] = o.Float
				}
				overrides = append(overrides, om)
			}
			obj["overrides"] = overrides
		}
		out = append(out, obj)
	}
	return out
}

func categoryFromWire(m map[string]any) AssetCategory {
	c := AssetCategory{
		TagID:        str(m["tagId"]),
		DefaultAllow: boolean(m["defaultAllow"]),
	}
	for _, raw := range list(m["tagOverrides"]) {
		if om, ok := asMap(raw); ok {
			c.TagOverrides = append(c.TagOverrides, TagOverride{
				TagID: str(om["tagId"]),
				Allow: boolean(om["allow"]),
			})
		}
	}
	for _, raw := range list(m["teamOverrides"]) {
		if om, ok := asMap(raw); ok {
			c.TeamOverrides = append(c.TeamOverrides, TeamTagOverride{
				TeamIndex: int32(i64(om["teamIndex"])),
				Allow:     boolean(om["allow"]),
			})
		}
	}
	return c
}

func categoryToWire(c AssetCategory) map[string]any {
	obj := map[string]any{
		"tagId":        c.TagID,
		"defaultAllow": c.DefaultAllow,
	}
	if c.TagOverrides != nil {
		overrides := make([]any, 0, len(c.TagOverrides))
		for _, o := range c.TagOverrides {
			overrides = append(overrides, map[string]any{"tagId": o.TagID, "allow": o.Allow})
		}
		obj["tagOverrides"] = overrides
	}
	if c.TeamOverrides != nil {
		overrides := make([]any, 0, len(c.TeamOverrides))
		for _, o := range c.TeamOverrides {
			overrides = append(overrides, map[string]any{"teamIndex": o.TeamIndex, "allow": o.Allow})
		}
		obj["teamOverrides"] = overrides
	}
	return obj
}

// --- dual-shape readers -------------------------------------------------

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func list(v any) []any {
	s, _ := v.([]any)
	return s
}

// str reads a string field that may arrive plain or wrapped as
// {"value": "..."}.
func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		if inner, ok := x["value"].(string); ok {
			return inner
		}
	}
	return ""
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func i64(v any) int64 {
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		if err == nil {
			return n
		}
	case float64:
		return int64(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err == nil {
			return n
		}
	}
	return 0
}

func f64(v any) float64 {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err == nil {
			return f
		}
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return 0
}

// bin reads a binary field regardless of which binary-like shape carried
// it: a byte buffer, a base64 string, or a list of byte values.
func bin(v any) []byte {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return cloneBytes(x)
	case string:
		raw, err := base64.StdEncoding.DecodeString(x)
		if err == nil {
			return raw
		}
	case []any:
		out := make([]byte, len(x))
		for i, e := range x {
			out[i] = byte(i64(e))
		}
		return out
	}
	return nil
}

// enumVal reads an enum field given as a number or a symbolic name.
func enumVal(v any, names map[string]int32) int32 {
	switch x := v.(type) {
	case string:
		if n, ok := names[strings.ToUpper(x)]; ok {
			return n
		}
	default:
		return int32(i64(v))
	}
	return 0
}

func collectExtra(m map[string]any, known ...string) map[string]any {
	var extra map[string]any
	for k, v := range m {
		if slices.Contains(known, k) {
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[k] = CloneValue(v)
	}
	return extra
}

func baseFromExtra(extra map[string]any) map[string]any {
	if extra == nil {
		return map[string]any{}
	}
	return CloneValue(extra).(map[string]any)
}
