package metadata

import "testing"

func TestNewStoreDefaultsEmptySchemaToPublic(t *testing.T) {
	s := NewStore(nil, "")
	if got := s.table("replication_state"); got != "public.replication_state" {
		t.Fatalf("table() = %q, want %q", got, "public.replication_state")
	}
}

func TestTableQualifiesWithConfiguredSchema(t *testing.T) {
	s := NewStore(nil, "underpass")
	if got := s.table("replication_failures"); got != "underpass.replication_failures" {
		t.Fatalf("table() = %q, want %q", got, "underpass.replication_failures")
	}
}
