package catalog

import "testing"

func TestBadFileRegistryAddGetRemove(t *testing.T) {
	b := NewBadFileRegistry()
	b.Add(3, "bad.csv", 100, "schema mismatch")

	entry, ok := b.Get(3, "bad.csv")
	if !ok {
		t.Fatal("expected entry to be present after Add")
	}
	if entry.DirIndex != 3 || entry.Name != "bad.csv" || entry.Reason != "schema mismatch" {
		t.Errorf("entry lost its identity through the hashed key: got %+v", entry)
	}

	b.Remove(3, "bad.csv")
	if _, ok := b.Get(3, "bad.csv"); ok {
		t.Error("expected entry to be gone after Remove")
	}
}

func TestBadFileRegistryDistinguishesSameNameDifferentDir(t *testing.T) {
	b := NewBadFileRegistry()
	b.Add(0, "x.csv", 1, "reason-a")
	b.Add(1, "x.csv", 2, "reason-b")

	a, _ := b.Get(0, "x.csv")
	c, _ := b.Get(1, "x.csv")
	if a.Reason == c.Reason {
		t.Fatal("entries for the same name in different directories collided")
	}
}

func TestBadFileRegistryEntriesRoundTripsKey(t *testing.T) {
	b := NewBadFileRegistry()
	b.Add(7, "odd.csv", 42, "retry failed")

	entries := b.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(entries))
	}
	if got, want := entries[0].Key(), "7/odd.csv"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestBadFileRegistryClear(t *testing.T) {
	b := NewBadFileRegistry()
	b.Add(0, "a.csv", 1, "x")
	b.Add(0, "b.csv", 1, "y")
	b.Clear()
	if len(b.Entries()) != 0 {
		t.Error("expected Clear to empty the registry")
	}
}
