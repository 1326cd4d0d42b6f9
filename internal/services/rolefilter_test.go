package services

import (
	"reflect"
	"testing"
)

func TestRoleFilterRelevantSubdomains(t *testing.T) {
	f := NewRoleFilter(map[string][]string{
		"cio":     {"governance", "architecture"},
		"analyst": {"quality"},
	})

	got, err := f.RelevantSubdomains("cio")
	if err != nil {
		t.Fatalf("RelevantSubdomains returned error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"architecture", "governance"}) {
		t.Fatalf("subdomains = %v, want sorted pair", got)
	}

	if _, err := f.RelevantSubdomains("janitor"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if _, err := f.RelevantSubdomains(""); err == nil {
		t.Fatalf("expected error for empty role")
	}
}

func TestRoleFilterKnownAndRoles(t *testing.T) {
	f := NewRoleFilter(map[string][]string{"cio": {"governance"}})
	if !f.Known("cio") || f.Known("cto") {
		t.Fatalf("Known misclassified roles")
	}
	if got := f.Roles(); !reflect.DeepEqual(got, []string{"cio"}) {
		t.Fatalf("Roles() = %v", got)
	}

	var nilFilter *RoleFilter
	if nilFilter.Known("cio") {
		t.Fatalf("nil filter must know no roles")
	}
}

func TestRoleFilterCopiesMapping(t *testing.T) {
	mapping := map[string][]string{"cio": {"governance"}}
	f := NewRoleFilter(mapping)
	mapping["cio"][0] = "mutated"
	got, err := f.RelevantSubdomains("cio")
	if err != nil {
		t.Fatalf("RelevantSubdomains returned error: %v", err)
	}
	if got[0] != "governance" {
		t.Fatalf("filter shares caller's mapping: %v", got)
	}
}
