package lookup

import "testing"

func TestTableBidirectional(t *testing.T) {
	table := NewTable(map[string]string{"Weapons": "id-1"})
	id, ok := table.IDForName("weapons")
	if !ok || id != "id-1" {
		t.Fatalf("case-insensitive name lookup failed: %q %v", id, ok)
	}
	name, ok := table.NameForID("id-1")
	if !ok || name != "Weapons" {
		t.Fatalf("reverse lookup failed: %q %v", name, ok)
	}
	if _, ok := table.IDForName("nope"); ok {
		t.Fatalf("unknown name resolved")
	}
}

func TestIsOpaqueID(t *testing.T) {
	if !IsOpaqueID("8bc79f2a-0194-4e5a-8f4a-0d1a2fd73c31") {
		t.Fatalf("uuid not recognized as opaque id")
	}
	if IsOpaqueID("Weapons") {
		t.Fatalf("human name recognized as opaque id")
	}
}

func TestDefaultRestrictionsPopulated(t *testing.T) {
	if _, ok := DefaultRestrictions().IDForName("Vehicles"); !ok {
		t.Fatalf("default table missing Vehicles")
	}
}
