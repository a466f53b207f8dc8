package playelement

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrMissingElement     = errors.New("playelement: document has no element")
	ErrMissingDesign      = errors.New("playelement: document has no design")
	ErrAttachmentNotFound = errors.New("playelement: attachment not found")
)

// PayloadError reports content that cannot become a valid attachment
// payload, with the underlying parse failure attached.
type PayloadError struct {
	Filename string
	Err      error
}

func (e PayloadError) Error() string {
	return fmt.Sprintf("playelement: invalid payload for %q: %v", e.Filename, e.Err)
}

func (e PayloadError) Unwrap() error {
	return e.Err
}

// MapSpec is one requested rotation slot. Omitted fields are filled with
// the documented defaults; SpatialData, when present, materializes an
// index-tagged SPATIAL attachment as a side effect of SetMapRotation.
type MapSpec struct {
	LevelName         string
	LevelLocation     string
	Rounds            int32
	AllowedSpectators int32
	Teams             *TeamComposition
	Mutators          []Mutator
	AllowMidRoundJoin bool
	SpatialData       string
}

// Modifier is the copy-on-write editor over a fetched document. The source
// is cloned up front; every operation mutates only the private clone, so
// two modifiers over one document are fully independent. Operations chain;
// the first failure sticks and is surfaced by Build.
type Modifier struct {
	doc *Document
	err error
}

// NewModifier clones doc and returns an editor over the clone.
func NewModifier(doc *Document) *Modifier {
	return &Modifier{doc: doc.Clone()}
}

// Err returns the sticky failure, if any operation has failed so far.
func (m *Modifier) Err() error {
	return m.err
}

func (m *Modifier) fail(err error) *Modifier {
	if m.err == nil {
		m.err = err
	}
	return m
}

func (m *Modifier) element() *Element {
	if m.doc.Element == nil {
		m.doc.Element = &Element{}
	}
	return m.doc.Element
}

func (m *Modifier) design() (*Design, error) {
	if m.doc.Design == nil {
		return nil, ErrMissingDesign
	}
	return m.doc.Design, nil
}

func (m *Modifier) SetName(name string) *Modifier {
	if m.err != nil {
		return m
	}
	m.element().Name = name
	return m
}

func (m *Modifier) SetDescription(description string) *Modifier {
	if m.err != nil {
		return m
	}
	m.element().Description = description
	return m
}

func (m *Modifier) SetThumbnail(url string) *Modifier {
	if m.err != nil {
		return m
	}
	m.element().ThumbnailURL = url
	return m
}

func (m *Modifier) SetPublishState(state PublishState) *Modifier {
	if m.err != nil {
		return m
	}
	m.element().PublishState = state
	return m
}

// SetSpatialPayload replaces the payload of the design's untagged SPATIAL
// attachment and forces a recompile.
func (m *Modifier) SetSpatialPayload(content []byte) *Modifier {
	if m.err != nil {
		return m
	}
	d, err := m.design()
	if err != nil {
		return m.fail(err)
	}
	att, ok := d.FirstAttachment(AttachmentSpatial)
	if !ok {
		return m.fail(fmt.Errorf("%w: type SPATIAL", ErrAttachmentNotFound))
	}
	replacePayload(att, content)
	return m
}

// SetScriptPayload replaces the experience's script source. The target is
// the SCRIPT attachment with the script file extension, preferring the
// conventional filename when several qualify.
func (m *Modifier) SetScriptPayload(code string) *Modifier {
	if m.err != nil {
		return m
	}
	d, err := m.design()
	if err != nil {
		return m.fail(err)
	}
	att, ok := d.ScriptAttachment()
	if !ok {
		return m.fail(fmt.Errorf("%w: type SCRIPT with %s filename", ErrAttachmentNotFound, ScriptFileExt))
	}
	replacePayload(att, []byte(code))
	return m
}

// SetMapRotation replaces the rotation wholesale. Each spec is filled with
// defaults (custom location, one round, four spectators, symmetric 16v16,
// no bots, no balancing). Specs carrying inline spatial data materialize or
// update a SPATIAL attachment tagged with the slot's rotation index,
// preserving id and version when the tag already exists.
func (m *Modifier) SetMapRotation(specs []MapSpec, behavior RotationBehavior) *Modifier {
	if m.err != nil {
		return m
	}
	d, err := m.design()
	if err != nil {
		return m.fail(err)
	}
	rotation := &MapRotation{Behavior: behavior, Maps: make([]MapEntry, 0, len(specs))}
	for i, spec := range specs {
		rotation.Maps = append(rotation.Maps, entryFromSpec(spec))
		if spec.SpatialData != "" {
			upsertIndexedSpatial(d, i, []byte(spec.SpatialData))
		}
	}
	d.MapRotation = rotation
	return m
}

// ClearSpatialAttachments removes every SPATIAL attachment, leaving all
// other types untouched. Used before rebuilding a rotation from scratch so
// stale spatial payloads do not linger.
func (m *Modifier) ClearSpatialAttachments() *Modifier {
	if m.err != nil {
		return m
	}
	d, err := m.design()
	if err != nil {
		return m.fail(err)
	}
	kept := d.Attachments[:0]
	for _, a := range d.Attachments {
		if a.Type != AttachmentSpatial {
			kept = append(kept, a)
		}
	}
	d.Attachments = kept
	return m
}

// SetLocalizationStrings installs the localization table. data is either a
// pre-serialized JSON string or a value to serialize; either way the result
// must parse as JSON. The STRINGS attachment is found or created, keeps its
// id and version when it exists, and is marked PROCESSED: strings are not
// compiled server-side.
func (m *Modifier) SetLocalizationStrings(data any, filename string) *Modifier {
	if m.err != nil {
		return m
	}
	if filename == "" {
		filename = DefaultStringsFilename
	}
	var raw []byte
	switch v := data.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return m.fail(PayloadError{Filename: filename, Err: err})
		}
		raw = encoded
	}
	var probe any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return m.fail(PayloadError{Filename: filename, Err: err})
	}

	d, err := m.design()
	if err != nil {
		return m.fail(err)
	}
	if att, ok := d.StringsAttachment(); ok {
		att.Payload = cloneBytes(raw)
		att.Filename = filename
		att.Compiled = nil
		att.Status = ProcessingProcessed
		return m
	}
	d.Attachments = append(d.Attachments, &Attachment{
		ID:       uuid.NewString(),
		Version:  InitialAttachmentVersion,
		Filename: filename,
		Type:     AttachmentStrings,
		Status:   ProcessingProcessed,
		Payload:  cloneBytes(raw),
	})
	return m
}

// SetMutators replaces the design's global rule settings.
func (m *Modifier) SetMutators(mutators []Mutator) *Modifier {
	if m.err != nil {
		return m
	}
	d, err := m.design()
	if err != nil {
		return m.fail(err)
	}
	d.Mutators = cloneMutators(mutators)
	return m
}

// SetAssetCategories replaces the design's allow/deny rules.
func (m *Modifier) SetAssetCategories(categories []AssetCategory) *Modifier {
	if m.err != nil {
		return m
	}
	d, err := m.design()
	if err != nil {
		return m.fail(err)
	}
	cloned := make([]AssetCategory, len(categories))
	for i, c := range categories {
		cloned[i] = c.Clone()
	}
	d.AssetCategories = cloned
	return m
}

// Build returns the edited element/design pair, or the first error any
// operation hit. Both substructures must exist.
func (m *Modifier) Build() (*Element, *Design, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	if m.doc.Element == nil {
		return nil, nil, ErrMissingElement
	}
	if m.doc.Design == nil {
		return nil, nil, ErrMissingDesign
	}
	return m.doc.Element, m.doc.Design, nil
}

// replacePayload swaps in new original content. The compiled payload is
// removed entirely, not nulled, so the server is forced to recompile, and
// the processing status drops back to PENDING.
func replacePayload(att *Attachment, content []byte) {
	att.Payload = cloneBytes(content)
	att.Compiled = nil
	att.Status = ProcessingPending
}

func entryFromSpec(spec MapSpec) MapEntry {
	entry := MapEntry{
		LevelName:         spec.LevelName,
		LevelLocation:     spec.LevelLocation,
		Rounds:            spec.Rounds,
		AllowedSpectators: spec.AllowedSpectators,
		AllowMidRoundJoin: spec.AllowMidRoundJoin,
		Mutators:          cloneMutators(spec.Mutators),
	}
	if entry.LevelLocation == "" {
		entry.LevelLocation = CustomLevelLocation
	}
	if entry.Rounds < 1 {
		entry.Rounds = DefaultRounds
	}
	if entry.AllowedSpectators == 0 {
		entry.AllowedSpectators = DefaultAllowedSpectators
	}
	if spec.Teams != nil {
		entry.Teams = spec.Teams.Clone()
	} else {
		entry.Teams = defaultComposition()
	}
	return entry
}

func defaultComposition() TeamComposition {
	return TeamComposition{
		Teams: []Team{
			{ID: 1, Capacity: DefaultTeamCapacity},
			{ID: 2, Capacity: DefaultTeamCapacity},
		},
		Balancing: BalanceNone,
	}
}

// upsertIndexedSpatial updates the SPATIAL attachment tagged for rotation
// slot i in place, or appends a fresh one with a new id and version "1".
func upsertIndexedSpatial(d *Design, i int, data []byte) {
	tag := MapIndexTag(i)
	if att, ok := d.SpatialAttachment(tag); ok {
		replacePayload(att, data)
		return
	}
	d.Attachments = append(d.Attachments, &Attachment{
		ID:       uuid.NewString(),
		Version:  InitialAttachmentVersion,
		Filename: DefaultSpatialFilename,
		Type:     AttachmentSpatial,
		Status:   ProcessingPending,
		Payload:  cloneBytes(data),
		Metadata: tag,
	})
}
