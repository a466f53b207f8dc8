// Package playelement owns the canonical in-memory play element document.
//
// Ownership boundary:
// - typed document model (element, design, attachments, rotation, rules)
// - boundary normalization to and from the serializer's plain-object shape
// - binary-safe deep clone
// - the copy-on-write modifier
//
// Inbound documents are normalized into this one representation immediately
// after decode; nothing past the boundary ever sees the wire's dual shapes.
package playelement

import (
	"fmt"
	"strings"
)

// PublishState is the element lifecycle state. ERROR is set by the server
// only; the client resets it to DRAFT during error recovery on update.
type PublishState int32

const (
	PublishInvalid PublishState = iota
	PublishDraft
	PublishPublished
	PublishArchived
	PublishError
)

// AttachmentType tags the binary payload an attachment carries.
type AttachmentType int32

const (
	AttachmentUnknown AttachmentType = iota
	AttachmentSpatial
	AttachmentScript
	AttachmentScriptData
	AttachmentStrings
	AttachmentMPData
)

// ProcessingStatus is the server-side compile state of an attachment.
type ProcessingStatus int32

const (
	ProcessingUnknown ProcessingStatus = iota
	ProcessingPending
	ProcessingProcessed
	ProcessingNeedsRecompile
	ProcessingError
)

// RotationBehavior controls what happens when a rotation's map ends.
// The zero value is LOOP, the default everywhere.
type RotationBehavior int32

const (
	RotationLoop RotationBehavior = iota
	RotationEndOfRoundVote
	RotationOneMap
)

// BalancingMethod is the team balancing rule of a composition.
type BalancingMethod int32

const (
	BalanceNone BalancingMethod = iota
	BalanceSkill
	BalanceSquad
)

// CapacityType controls how a bot team fills its slots.
type CapacityType int32

const (
	CapacityFill CapacityType = iota
	CapacityFixed
)

// Defaults applied when a map entry omits fields, and the filename
// conventions used to locate the script and strings attachments.
const (
	DefaultScriptFilename  = "main.ts"
	ScriptFileExt          = ".ts"
	DefaultStringsFilename = "strings.json"
	DefaultSpatialFilename = "spatial.json"

	CustomLevelLocation = "CUSTOM"

	DefaultRounds            = 1
	DefaultAllowedSpectators = 4
	DefaultTeamCapacity      = 16

	InitialAttachmentVersion = "1"
)

// MapIndexTag encodes a rotation index as an attachment metadata tag.
func MapIndexTag(i int) string {
	return fmt.Sprintf("mapIdx=%d", i)
}

// Document is the root editable resource: identity metadata plus the
// mutable design body.
type Document struct {
	Element *Element
	Design  *Design
}

// Element is identity and presentation metadata.
type Element struct {
	ID              string
	Name            string
	Description     string
	ThumbnailURL    string
	PublishState    PublishState
	ModerationState int32
	CreatorVariant  string

	// Extra holds server fields the client round-trips without
	// interpreting.
	Extra map[string]any
}

// Design is the mutable body of a document.
type Design struct {
	ID              string
	Attachments     []*Attachment
	MapRotation     *MapRotation
	Mutators        []Mutator
	AssetCategories []AssetCategory

	// ModRules is an opaque rule-compatibility blob preserved verbatim.
	ModRules []byte
	Extra    map[string]any
}

// Attachment is one typed binary payload owned by a design.
type Attachment struct {
	ID       string
	Version  string
	Filename string
	Type     AttachmentType
	Status   ProcessingStatus

	Payload []byte
	// Compiled is the server-produced compiled payload. nil means absent;
	// absence, not emptiness, is what forces a server recompile.
	Compiled []byte

	// Metadata is a free-form tag, e.g. "mapIdx=0" for rotation-indexed
	// spatial payloads.
	Metadata string
	Errors   []string

	Extra map[string]any
}

// MapRotation is the ordered map list plus its end-of-map behavior.
type MapRotation struct {
	Behavior RotationBehavior
	Maps     []MapEntry
	Extra    map[string]any
}

// MapEntry is one rotation slot.
type MapEntry struct {
	LevelName         string
	LevelLocation     string
	Rounds            int32
	AllowedSpectators int32
	Teams             TeamComposition
	Mutators          []Mutator
	AllowMidRoundJoin bool
	Extra             map[string]any
}

// TeamComposition is the human team list, optional bot teams, and the
// balancing method.
type TeamComposition struct {
	Teams         []Team
	InternalTeams []InternalTeam
	Balancing     BalancingMethod
}

type Team struct {
	ID       int32
	Capacity int32
}

type InternalTeam struct {
	ID           int32
	Capacity     int32
	CapacityType CapacityType
}

// ValueKind tags a mutator value union.
type ValueKind int32

const (
	KindBool ValueKind = iota + 1
	KindInt
	KindFloat
	KindString
	KindSparseBool
	KindSparseInt
	KindSparseFloat
)

// Sparse reports whether the kind carries per-team overrides.
func (k ValueKind) Sparse() bool {
	return k == KindSparseBool || k == KindSparseInt || k == KindSparseFloat
}

// Mutator is one named rule setting on a design or map entry.
type Mutator struct {
	Name     string
	Category string
	ID       string
	Value    MutatorValue
}

// MutatorValue is the tagged value union. For sparse kinds the scalar
// fields hold the default and Overrides the per-team exceptions; team
// indices absent from Overrides take the default.
type MutatorValue struct {
	Kind  ValueKind
	Bool  bool
	Int   int64
	Float float64
	Str   string

	Overrides []TeamOverride
}

// TeamOverride is one sparse per-team value; the field matching the
// parent's kind is the one that applies.
type TeamOverride struct {
	TeamIndex int32
	Bool      bool
	Int       int64
	Float     float64
}

// AssetCategory is one allow/deny rule over a tagged asset group.
type AssetCategory struct {
	TagID         string
	DefaultAllow  bool
	TagOverrides  []TagOverride
	TeamOverrides []TeamTagOverride
}

type TagOverride struct {
	TagID string
	Allow bool
}

type TeamTagOverride struct {
	TeamIndex int32
	Allow     bool
}

// ScriptAttachment returns the attachment carrying the experience's
// executable code: SCRIPT-typed, script file extension, preferring the
// conventional filename, else first in list order. The order policy is a
// contract, pinned by tests.
func (d *Design) ScriptAttachment() (*Attachment, bool) {
	var first *Attachment
	for _, a := range d.Attachments {
		if a.Type != AttachmentScript || !hasSuffixFold(a.Filename, ScriptFileExt) {
			continue
		}
		if a.Filename == DefaultScriptFilename {
			return a, true
		}
		if first == nil {
			first = a
		}
	}
	if first == nil {
		return nil, false
	}
	return first, true
}

// StringsAttachment returns the localization payload holder by the same
// prefer-convention-else-first policy as ScriptAttachment.
func (d *Design) StringsAttachment() (*Attachment, bool) {
	var first *Attachment
	for _, a := range d.Attachments {
		if a.Type != AttachmentStrings {
			continue
		}
		if a.Filename == DefaultStringsFilename {
			return a, true
		}
		if first == nil {
			first = a
		}
	}
	if first == nil {
		return nil, false
	}
	return first, true
}

// SpatialAttachment returns the SPATIAL attachment whose metadata equals
// tag exactly.
func (d *Design) SpatialAttachment(tag string) (*Attachment, bool) {
	for _, a := range d.Attachments {
		if a.Type == AttachmentSpatial && a.Metadata == tag {
			return a, true
		}
	}
	return nil, false
}

// FirstAttachment returns the first attachment of the given type in list
// order.
func (d *Design) FirstAttachment(t AttachmentType) (*Attachment, bool) {
	for _, a := range d.Attachments {
		if a.Type == t {
			return a, true
		}
	}
	return nil, false
}

// AttachmentIDs returns the ids of all attachments in list order.
func (d *Design) AttachmentIDs() []string {
	ids := make([]string, 0, len(d.Attachments))
	for _, a := range d.Attachments {
		ids = append(ids, a.ID)
	}
	return ids
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
