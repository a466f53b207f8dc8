// Package lookup owns the read-only name/identifier tables.
//
// The tables are pure data, initialized once at startup and reached through
// an explicit accessor so tests can substitute fixtures.
package lookup

import (
	"strings"

	"github.com/google/uuid"
)

// Table maps human-readable category names to opaque identifiers and back.
type Table struct {
	idByName map[string]string
	nameByID map[string]string
}

// NewTable builds a table from name→id pairs. Name lookups are
// case-insensitive.
func NewTable(entries map[string]string) *Table {
	t := &Table{
		idByName: make(map[string]string, len(entries)),
		nameByID: make(map[string]string, len(entries)),
	}
	for name, id := range entries {
		t.idByName[strings.ToLower(name)] = id
		t.nameByID[id] = name
	}
	return t
}

func (t *Table) IDForName(name string) (string, bool) {
	id, ok := t.idByName[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}

func (t *Table) NameForID(id string) (string, bool) {
	name, ok := t.nameByID[id]
	return name, ok
}

// IsOpaqueID reports whether s already looks like an opaque identifier
// rather than a human-readable name.
func IsOpaqueID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

var defaultRestrictions = NewTable(map[string]string{
	"Weapons":    "8bc79f2a-0194-4e5a-8f4a-0d1a2fd73c31",
	"Gadgets":    "1f9aee2c-71d4-4f71-b2a4-8cfbf2e2a811",
	"Vehicles":   "5d3c9efd-2f84-44f0-9f1b-6a0b4c79a602",
	"Soldiers":   "c0e4a3b8-6d11-4a2b-9b77-3f5d8e914d20",
	"Throwables": "74a8f1d6-9c35-4f0e-8d52-b1e6c0a97f43",
})

// DefaultRestrictions returns the built-in restriction category table.
func DefaultRestrictions() *Table {
	return defaultRestrictions
}
