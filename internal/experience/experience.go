// Package experience owns the declarative experience config: the TOML
// shape users author and its translation onto modifier primitives.
//
// Translation is a pure mapping. It never touches the network or the
// filesystem; payload references are resolved by the caller before Parse.
package experience

import (
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"

	"github.com/The-Sir-Community/ts-bf6-portal/internal/lookup"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/playelement"
)

// Config is one declarative experience. Omitted map fields take the same
// defaults the modifier applies.
type Config struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Thumbnail   string `toml:"thumbnail"`

	// Rotation is "loop", "vote" or "one_map"; empty means loop.
	Rotation string `toml:"rotation"`

	Maps         []MapConfig         `toml:"maps"`
	Rules        []RuleConfig        `toml:"rules"`
	Restrictions []RestrictionConfig `toml:"restrictions"`
}

// MapConfig is one rotation slot.
type MapConfig struct {
	Level             string       `toml:"level"`
	Location          string       `toml:"location"`
	Rounds            int32        `toml:"rounds"`
	AllowedSpectators int32        `toml:"allowed_spectators"`
	AllowMidRoundJoin bool         `toml:"allow_mid_round_join"`
	SpatialData       string       `toml:"spatial_data"`
	Teams             []TeamConfig `toml:"teams"`
	Bots              []BotConfig  `toml:"bots"`
}

type TeamConfig struct {
	ID       int32 `toml:"id"`
	Capacity int32 `toml:"capacity"`
}

// BotConfig is one AI-filled team. Fill keeps the team topped up to
// capacity; without it the capacity is a fixed headcount.
type BotConfig struct {
	ID       int32 `toml:"id"`
	Capacity int32 `toml:"capacity"`
	Fill     bool  `toml:"fill"`
}

// RuleConfig is one named rule. Value sets a single scalar for all teams;
// PerTeam sets positional per-team values instead, with Value (when also
// present) as the default for teams beyond the list.
type RuleConfig struct {
	Name    string `toml:"name"`
	Value   any    `toml:"value"`
	PerTeam []any  `toml:"per_team"`
}

// RestrictionConfig is one allow/deny rule over an asset category,
// addressed by human-readable name or already-opaque identifier.
type RestrictionConfig struct {
	Category string           `toml:"category"`
	Allow    bool             `toml:"allow"`
	Tags     []TagRuleConfig  `toml:"tags"`
	Teams    []TeamRuleConfig `toml:"teams"`
}

type TagRuleConfig struct {
	Tag   string `toml:"tag"`
	Allow bool   `toml:"allow"`
}

type TeamRuleConfig struct {
	Team  int32 `toml:"team"`
	Allow bool  `toml:"allow"`
}

// Parse decodes and validates one config from already-resolved bytes.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("experience: parse failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := rotationBehavior(c.Rotation); err != nil {
		return err
	}
	for i, m := range c.Maps {
		if strings.TrimSpace(m.Level) == "" {
			return fmt.Errorf("experience: maps[%d] missing level", i)
		}
	}
	for i, r := range c.Rules {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("experience: rules[%d] missing name", i)
		}
		if r.Value == nil && len(r.PerTeam) == 0 {
			return fmt.Errorf("experience: rule %q has neither value nor per_team", r.Name)
		}
	}
	for i, r := range c.Restrictions {
		if strings.TrimSpace(r.Category) == "" {
			return fmt.Errorf("experience: restrictions[%d] missing category", i)
		}
	}
	return nil
}

// Translate maps the config onto modifier primitives. Unresolvable
// restriction categories are logged and skipped; every other problem
// aborts the translation.
func Translate(cfg *Config, m *playelement.Modifier, table *lookup.Table, log zerolog.Logger) error {
	if cfg.Name != "" {
		m.SetName(cfg.Name)
	}
	if cfg.Description != "" {
		m.SetDescription(cfg.Description)
	}
	if cfg.Thumbnail != "" {
		m.SetThumbnail(cfg.Thumbnail)
	}

	if len(cfg.Maps) > 0 {
		behavior, err := rotationBehavior(cfg.Rotation)
		if err != nil {
			return err
		}
		specs := make([]playelement.MapSpec, 0, len(cfg.Maps))
		for _, mc := range cfg.Maps {
			specs = append(specs, mapSpec(mc))
		}
		m.SetMapRotation(specs, behavior)
	}

	if len(cfg.Rules) > 0 {
		mutators := make([]playelement.Mutator, 0, len(cfg.Rules))
		for _, r := range cfg.Rules {
			value, err := mutatorValue(r)
			if err != nil {
				return err
			}
			mutators = append(mutators, playelement.Mutator{Name: r.Name, Value: value})
		}
		m.SetMutators(mutators)
	}

	if len(cfg.Restrictions) > 0 {
		categories := make([]playelement.AssetCategory, 0, len(cfg.Restrictions))
		for _, r := range cfg.Restrictions {
			cat, ok := assetCategory(r, table, log)
			if !ok {
				continue
			}
			categories = append(categories, cat)
		}
		m.SetAssetCategories(categories)
	}
	return m.Err()
}

func mapSpec(mc MapConfig) playelement.MapSpec {
	spec := playelement.MapSpec{
		LevelName:         mc.Level,
		LevelLocation:     mc.Location,
		Rounds:            mc.Rounds,
		AllowedSpectators: mc.AllowedSpectators,
		AllowMidRoundJoin: mc.AllowMidRoundJoin,
		SpatialData:       mc.SpatialData,
	}
	if len(mc.Teams) > 0 || len(mc.Bots) > 0 {
		comp := &playelement.TeamComposition{Balancing: playelement.BalanceNone}
		for _, t := range mc.Teams {
			capacity := t.Capacity
			if capacity == 0 {
				capacity = playelement.DefaultTeamCapacity
			}
			comp.Teams = append(comp.Teams, playelement.Team{ID: t.ID, Capacity: capacity})
		}
		for _, b := range mc.Bots {
			ct := playelement.CapacityFixed
			if b.Fill {
				ct = playelement.CapacityFill
			}
			comp.InternalTeams = append(comp.InternalTeams, playelement.InternalTeam{
				ID:           b.ID,
				Capacity:     b.Capacity,
				CapacityType: ct,
			})
		}
		spec.Teams = comp
	}
	return spec
}

func rotationBehavior(s string) (playelement.RotationBehavior, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "loop":
		return playelement.RotationLoop, nil
	case "vote":
		return playelement.RotationEndOfRoundVote, nil
	case "one_map":
		return playelement.RotationOneMap, nil
	default:
		return 0, fmt.Errorf("experience: unknown rotation behavior %q", s)
	}
}

// mutatorValue builds the tagged value union from the config's loose
// scalar/per-team shape. TOML hands back int64, float64, bool and string.
func mutatorValue(r RuleConfig) (playelement.MutatorValue, error) {
	if len(r.PerTeam) == 0 {
		return scalarValue(r.Name, r.Value)
	}

	base, err := scalarValue(r.Name, firstNonNil(r.Value, r.PerTeam[0]))
	if err != nil {
		return playelement.MutatorValue{}, err
	}
	switch base.Kind {
	case playelement.KindBool:
		base.Kind = playelement.KindSparseBool
	case playelement.KindInt:
		base.Kind = playelement.KindSparseInt
	case playelement.KindFloat:
		base.Kind = playelement.KindSparseFloat
	default:
		return playelement.MutatorValue{}, fmt.Errorf("experience: rule %q: per_team values must be bool, int or float", r.Name)
	}
	for i, v := range r.PerTeam {
		ov := playelement.TeamOverride{TeamIndex: int32(i)}
		switch base.Kind {
		case playelement.KindSparseBool:
			b, ok := v.(bool)
			if !ok {
				return playelement.MutatorValue{}, perTeamTypeError(r.Name, i, v)
			}
			ov.Bool = b
		case playelement.KindSparseInt:
			n, ok := v.(int64)
			if !ok {
				return playelement.MutatorValue{}, perTeamTypeError(r.Name, i, v)
			}
			ov.Int = n
		case playelement.KindSparseFloat:
			f, err := asFloat(v)
			if err != nil {
				return playelement.MutatorValue{}, perTeamTypeError(r.Name, i, v)
			}
			ov.Float = f
		}
		base.Overrides = append(base.Overrides, ov)
	}
	return base, nil
}

func scalarValue(name string, v any) (playelement.MutatorValue, error) {
	switch val := v.(type) {
	case bool:
		return playelement.MutatorValue{Kind: playelement.KindBool, Bool: val}, nil
	case int64:
		return playelement.MutatorValue{Kind: playelement.KindInt, Int: val}, nil
	case float64:
		return playelement.MutatorValue{Kind: playelement.KindFloat, Float: val}, nil
	case string:
		return playelement.MutatorValue{Kind: playelement.KindString, Str: val}, nil
	default:
		return playelement.MutatorValue{}, fmt.Errorf("experience: rule %q has unsupported value type %T", name, v)
	}
}

func firstNonNil(a, b any) any {
	if a != nil {
		return a
	}
	return b
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
}

func perTeamTypeError(name string, i int, v any) error {
	return fmt.Errorf("experience: rule %q per_team[%d] has mismatched type %T", name, i, v)
}

// assetCategory resolves one restriction. An unrecognized category name is
// skipped with a warning so one typo does not sink the whole config.
func assetCategory(r RestrictionConfig, table *lookup.Table, log zerolog.Logger) (playelement.AssetCategory, bool) {
	id, ok := resolveCategory(r.Category, table)
	if !ok {
		log.Warn().Str("category", r.Category).Msg("unknown restriction category, skipping")
		return playelement.AssetCategory{}, false
	}
	cat := playelement.AssetCategory{TagID: id, DefaultAllow: r.Allow}
	for _, t := range r.Tags {
		tagID, ok := resolveCategory(t.Tag, table)
		if !ok {
			log.Warn().Str("category", r.Category).Str("tag", t.Tag).Msg("unknown restriction tag, skipping")
			continue
		}
		cat.TagOverrides = append(cat.TagOverrides, playelement.TagOverride{TagID: tagID, Allow: t.Allow})
	}
	for _, t := range r.Teams {
		cat.TeamOverrides = append(cat.TeamOverrides, playelement.TeamTagOverride{TeamIndex: t.Team, Allow: t.Allow})
	}
	return cat, true
}

func resolveCategory(name string, table *lookup.Table) (string, bool) {
	if lookup.IsOpaqueID(name) {
		return name, true
	}
	if table == nil {
		return "", false
	}
	return table.IDForName(name)
}
