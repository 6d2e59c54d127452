package render

import (
	"strings"
	"testing"

	"github.com/matzehuels/stackpm/pkg/resolve"
)

func sampleResult() *resolve.Result {
	return &resolve.Result{
		Resolved: resolve.Resolved{"a": "1.0.0", "b": "2.0.0", "@scope/c": "0.1.0"},
		Edges: []resolve.Edge{
			{From: "", To: resolve.Request{Name: "a", Version: "1.0.0"}},
			{From: "", To: resolve.Request{Name: "b", Version: "1.0.0"}},
			{From: "a@1.0.0", To: resolve.Request{Name: "b", Version: "2.0.0", Parent: "a@1.0.0"}},
			{From: "b@1.0.0", To: resolve.Request{Name: "@scope/c", Version: "0.0.9", Parent: "b@1.0.0"}},
			{From: "b@2.0.0", To: resolve.Request{Name: "@scope/c", Version: "0.1.0", Parent: "b@2.0.0"}},
			{From: "a@1.0.0", To: resolve.Request{Name: "b", Version: "2.0.0", Parent: "a@1.0.0"}},
		},
		Conflicts: []resolve.Conflict{
			{Name: "b", Existing: "1.0.0", Proposed: "2.0.0", Chosen: "2.0.0"},
		},
	}
}

func TestToDOT_Basic(t *testing.T) {
	dot := ToDOT(sampleResult(), Options{})

	for _, want := range []string{
		"digraph G",
		`"manifest" [label="manifest"`,
		`"a@1.0.0"`,
		`"b@2.0.0"`,
		`"@scope/c@0.1.0"`,
		`"manifest" -> "a@1.0.0";`,
		`"manifest" -> "b@2.0.0";`,
		`"a@1.0.0" -> "b@2.0.0";`,
		`"b@2.0.0" -> "@scope/c@0.1.0";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %s\n%s", want, dot)
		}
	}
	if strings.Contains(dot, `"b@1.0.0" ->`) {
		t.Error("ToDOT() kept an edge from a replaced version")
	}
	if n := strings.Count(dot, `"a@1.0.0" -> "b@2.0.0"`); n != 1 {
		t.Errorf("duplicate edge emitted %d times, want 1", n)
	}
}

func TestToDOT_Deterministic(t *testing.T) {
	first := ToDOT(sampleResult(), Options{Detailed: true})
	for range 5 {
		if got := ToDOT(sampleResult(), Options{Detailed: true}); got != first {
			t.Fatalf("ToDOT() output differs between runs:\n%s\nvs\n%s", first, got)
		}
	}
}

func TestToDOT_Conflicts(t *testing.T) {
	dot := ToDOT(sampleResult(), Options{})
	if !strings.Contains(dot, "dashed") || !strings.Contains(dot, "lightyellow") {
		t.Error("ToDOT() conflicted package missing dashed style")
	}
	if strings.Contains(dot, "(not 1.0.0)") {
		t.Error("ToDOT() simple labels should not list lost versions")
	}

	detailed := ToDOT(sampleResult(), Options{Detailed: true})
	if !strings.Contains(detailed, `b\n2.0.0\n(not 1.0.0)`) {
		t.Errorf("ToDOT() detailed label missing lost version:\n%s", detailed)
	}
}

func TestToDOT_RootLabel(t *testing.T) {
	dot := ToDOT(&resolve.Result{Resolved: resolve.Resolved{}}, Options{Root: "my-app"})
	if !strings.Contains(dot, `"manifest" [label="my-app"`) {
		t.Errorf("ToDOT() root label not applied:\n%s", dot)
	}
}

func TestSplitID(t *testing.T) {
	tests := []struct {
		id      string
		name    string
		version string
		ok      bool
	}{
		{"a@1.0.0", "a", "1.0.0", true},
		{"@scope/c@0.1.0", "@scope/c", "0.1.0", true},
		{"@scope/c", "", "", false},
		{"plain", "", "", false},
	}
	for _, tt := range tests {
		name, version, ok := splitID(tt.id)
		if name != tt.name || version != tt.version || ok != tt.ok {
			t.Errorf("splitID(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.id, name, version, ok, tt.name, tt.version, tt.ok)
		}
	}
}
