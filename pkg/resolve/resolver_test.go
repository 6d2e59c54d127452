package resolve

import (
	"context"
	"errors"
	"maps"
	"testing"
	"time"

	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/observability"
	"github.com/matzehuels/stackpm/pkg/registry"
	"github.com/matzehuels/stackpm/pkg/registry/registrytest"
)

// mockFetcher serves dependency maps keyed by "name@version" and counts
// every request.
type mockFetcher struct {
	packages map[string]map[string]string
	errs     map[string]error
	calls    map[string]int
}

func newMockFetcher(packages map[string]map[string]string) *mockFetcher {
	return &mockFetcher{packages: packages, errs: map[string]error{}, calls: map[string]int{}}
}

func (m *mockFetcher) VersionMetadata(ctx context.Context, name, version string) (*registry.Metadata, error) {
	key := name + "@" + version
	m.calls[key]++
	if err := m.errs[key]; err != nil {
		return nil, err
	}
	deps, ok := m.packages[key]
	if !ok {
		return nil, pkgerr.New(pkgerr.ErrCodeNotFound, "package %s", key)
	}
	return &registry.Metadata{Name: name, Version: version, Dependencies: deps}, nil
}

func (m *mockFetcher) total() int {
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func resolve(t *testing.T, f Fetcher, deps map[string]string) *Result {
	t.Helper()
	res, err := New(f).Resolve(context.Background(), deps)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	return res
}

func assertResolved(t *testing.T, got Resolved, want map[string]string) {
	t.Helper()
	if !maps.Equal(map[string]string(got), want) {
		t.Errorf("Resolved = %v, want %v", got, want)
	}
}

func TestResolveSinglePackage(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{"x@1.0.0": nil})
	res := resolve(t, f, map[string]string{"x": "1.0.0"})

	assertResolved(t, res.Resolved, map[string]string{"x": "1.0.0"})
	if len(res.Conflicts) != 0 {
		t.Errorf("Conflicts = %v, want none", res.Conflicts)
	}
	if res.Fetches != 1 {
		t.Errorf("Fetches = %d, want 1", res.Fetches)
	}
}

func TestResolveEmptyManifest(t *testing.T) {
	f := newMockFetcher(nil)
	res := resolve(t, f, nil)

	if len(res.Resolved) != 0 {
		t.Errorf("Resolved = %v, want empty", res.Resolved)
	}
	if f.total() != 0 {
		t.Errorf("fetches = %d, want 0", f.total())
	}
}

func TestResolveStripsRangePrefix(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{
		"x@1.0.0": {"y": "^2.0.0"},
		"y@2.0.0": nil,
	})
	res := resolve(t, f, map[string]string{"x": "1.0.0"})

	assertResolved(t, res.Resolved, map[string]string{"x": "1.0.0", "y": "2.0.0"})
	if f.calls["y@2.0.0"] != 1 {
		t.Errorf("y@2.0.0 fetched %d times, want 1", f.calls["y@2.0.0"])
	}
}

func TestResolveTransitive(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{
		"app@1.0.0":  {"lib": "~1.2.0", "util": "1.0.0"},
		"lib@1.2.0":  {"core": ">=0.3.0"},
		"util@1.0.0": {"core": "0.3.0"},
		"core@0.3.0": nil,
	})
	res := resolve(t, f, map[string]string{"app": "^1.0.0"})

	assertResolved(t, res.Resolved, map[string]string{
		"app":  "1.0.0",
		"lib":  "1.2.0",
		"util": "1.0.0",
		"core": "0.3.0",
	})
	if f.calls["core@0.3.0"] != 1 {
		t.Errorf("core@0.3.0 fetched %d times, want 1", f.calls["core@0.3.0"])
	}
	if len(res.Conflicts) != 0 {
		t.Errorf("Conflicts = %v, want none", res.Conflicts)
	}
}

func TestResolveDuplicateSameVersion(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{
		"a@1.0.0":      {"shared": "1.0.0"},
		"b@1.0.0":      {"shared": "^1.0.0"},
		"shared@1.0.0": nil,
	})
	res := resolve(t, f, map[string]string{"a": "1.0.0", "b": "1.0.0"})

	assertResolved(t, res.Resolved, map[string]string{"a": "1.0.0", "b": "1.0.0", "shared": "1.0.0"})
	if f.calls["shared@1.0.0"] != 1 {
		t.Errorf("shared@1.0.0 fetched %d times, want 1", f.calls["shared@1.0.0"])
	}
	if f.total() != 3 {
		t.Errorf("total fetches = %d, want 3", f.total())
	}
}

func TestResolveCycle(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{
		"a@1.0.0": {"b": "1.0.0"},
		"b@1.0.0": {"a": "1.0.0"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := New(f).Resolve(ctx, map[string]string{"a": "1.0.0"})
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	assertResolved(t, res.Resolved, map[string]string{"a": "1.0.0", "b": "1.0.0"})
	if f.calls["a@1.0.0"] != 1 || f.calls["b@1.0.0"] != 1 {
		t.Errorf("calls = %v, want each package fetched once", f.calls)
	}
}

func TestResolveSelfDependency(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{
		"a@1.0.0": {"a": "^1.0.0"},
	})
	res := resolve(t, f, map[string]string{"a": "1.0.0"})
	assertResolved(t, res.Resolved, map[string]string{"a": "1.0.0"})
}

func TestResolveConflictHigherWins(t *testing.T) {
	tests := []struct {
		name      string
		packages  map[string]map[string]string
		deps      map[string]string
		want      map[string]string
		conflicts []Conflict
	}{
		{
			name: "later request is higher",
			packages: map[string]map[string]string{
				"a@1.0.0":    {"dep": "2.10.0"},
				"dep@2.9.9":  nil,
				"dep@2.10.0": nil,
			},
			deps: map[string]string{"a": "1.0.0", "dep": "2.9.9"},
			want: map[string]string{"a": "1.0.0", "dep": "2.10.0"},
			conflicts: []Conflict{
				{Name: "dep", Existing: "2.9.9", Proposed: "2.10.0", Chosen: "2.10.0"},
			},
		},
		{
			name: "existing is higher",
			packages: map[string]map[string]string{
				"a@1.0.0":    {"dep": "^9.0.0"},
				"dep@10.0.0": nil,
			},
			deps: map[string]string{"a": "1.0.0", "dep": "10.0.0"},
			want: map[string]string{"a": "1.0.0", "dep": "10.0.0"},
			conflicts: []Conflict{
				{Name: "dep", Existing: "10.0.0", Proposed: "9.0.0", Chosen: "10.0.0"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMockFetcher(tt.packages)
			res := resolve(t, f, tt.deps)

			assertResolved(t, res.Resolved, tt.want)
			if len(res.Conflicts) != len(tt.conflicts) {
				t.Fatalf("Conflicts = %v, want %v", res.Conflicts, tt.conflicts)
			}
			for i, c := range tt.conflicts {
				if res.Conflicts[i] != c {
					t.Errorf("Conflicts[%d] = %+v, want %+v", i, res.Conflicts[i], c)
				}
			}
		})
	}
}

func TestResolveLoserChildrenNotExpanded(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{
		"a@1.0.0":   {"dep": "1.0.0"},
		"dep@2.0.0": nil,
		"dep@1.0.0": {"never": "1.0.0"},
	})
	res := resolve(t, f, map[string]string{"a": "1.0.0", "dep": "2.0.0"})

	assertResolved(t, res.Resolved, map[string]string{"a": "1.0.0", "dep": "2.0.0"})
	if f.calls["dep@1.0.0"] != 0 {
		t.Error("losing version should not be fetched")
	}
}

func TestResolveReplacedVersionKeepsItsChildren(t *testing.T) {
	// Children of a replaced version stay resolved; resolution never
	// retracts entries once recorded.
	f := newMockFetcher(map[string]map[string]string{
		"a@1.0.0":   {"dep": "2.0.0"},
		"dep@1.0.0": {"old": "1.0.0"},
		"dep@2.0.0": nil,
		"old@1.0.0": nil,
	})
	res := resolve(t, f, map[string]string{"a": "1.0.0", "dep": "1.0.0"})

	assertResolved(t, res.Resolved, map[string]string{"a": "1.0.0", "dep": "2.0.0", "old": "1.0.0"})
}

func TestResolveFetchErrorAborts(t *testing.T) {
	netErr := pkgerr.New(pkgerr.ErrCodeNetwork, "connection reset")
	f := newMockFetcher(map[string]map[string]string{
		"a@1.0.0": {"b": "1.0.0"},
	})
	f.errs["b@1.0.0"] = netErr

	res, err := New(f).Resolve(context.Background(), map[string]string{"a": "1.0.0"})
	if err == nil {
		t.Fatal("Resolve() expected error")
	}
	if res != nil {
		t.Errorf("Resolve() returned partial result %v", res.Resolved)
	}
	if !pkgerr.Is(err, pkgerr.ErrCodeNetwork) {
		t.Errorf("error = %v, want NETWORK_ERROR", err)
	}
}

func TestResolveMissingPackage(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{"a@1.0.0": {"ghost": "1.0.0"}})
	_, err := New(f).Resolve(context.Background(), map[string]string{"a": "1.0.0"})
	if !pkgerr.Is(err, pkgerr.ErrCodeNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestResolveInvalidSpecifier(t *testing.T) {
	tests := []string{"*", "", "git+https://example.com/x.git", "file:../x"}
	for _, spec := range tests {
		t.Run(spec, func(t *testing.T) {
			f := newMockFetcher(nil)
			_, err := New(f).Resolve(context.Background(), map[string]string{"x": spec})
			if !pkgerr.Is(err, pkgerr.ErrCodeInvalidVersion) {
				t.Errorf("error = %v, want INVALID_VERSION", err)
			}
			if f.total() != 0 {
				t.Errorf("fetches = %d, want 0", f.total())
			}
		})
	}
}

func TestResolveContextCanceled(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{"a@1.0.0": nil})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f).Resolve(ctx, map[string]string{"a": "1.0.0"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestResolveEdges(t *testing.T) {
	f := newMockFetcher(map[string]map[string]string{
		"a@1.0.0": {"b": "^1.0.0"},
		"b@1.0.0": nil,
	})
	res := resolve(t, f, map[string]string{"a": "1.0.0"})

	want := []Edge{
		{From: "", To: Request{Name: "a", Version: "1.0.0"}},
		{From: "a@1.0.0", To: Request{Name: "b", Version: "1.0.0", Parent: "a@1.0.0"}},
	}
	if len(res.Edges) != len(want) {
		t.Fatalf("Edges = %v, want %v", res.Edges, want)
	}
	for i := range want {
		if res.Edges[i] != want[i] {
			t.Errorf("Edges[%d] = %+v, want %+v", i, res.Edges[i], want[i])
		}
	}
}

func TestResolveDeterministicOrder(t *testing.T) {
	packages := map[string]map[string]string{
		"a@1.0.0": {"z": "1.0.0", "m": "2.0.0"},
		"b@1.0.0": {"m": "3.0.0", "z": "0.5.0"},
		"m@2.0.0": nil,
		"m@3.0.0": nil,
		"z@1.0.0": nil,
		"z@0.5.0": nil,
	}
	deps := map[string]string{"b": "1.0.0", "a": "1.0.0"}

	first := resolve(t, newMockFetcher(packages), deps)
	for range 10 {
		again := resolve(t, newMockFetcher(packages), deps)
		if !maps.Equal(first.Resolved, again.Resolved) {
			t.Fatalf("Resolved differs between runs: %v vs %v", first.Resolved, again.Resolved)
		}
		if len(again.Conflicts) != len(first.Conflicts) {
			t.Fatalf("conflict count differs between runs")
		}
		for i := range first.Conflicts {
			if first.Conflicts[i] != again.Conflicts[i] {
				t.Fatalf("Conflicts[%d] differs: %+v vs %+v", i, first.Conflicts[i], again.Conflicts[i])
			}
		}
	}
	assertResolved(t, first.Resolved, map[string]string{"a": "1.0.0", "b": "1.0.0", "m": "3.0.0", "z": "1.0.0"})
}

type recordingHooks struct {
	observability.NoopResolveHooks
	started   int
	conflicts []string
	resolved  int
	err       error
}

func (h *recordingHooks) OnResolveStart(_ context.Context, roots int) { h.started = roots }

func (h *recordingHooks) OnConflict(_ context.Context, name, _, _, chosen string) {
	h.conflicts = append(h.conflicts, name+"@"+chosen)
}

func (h *recordingHooks) OnResolveComplete(_ context.Context, resolved int, _ time.Duration, err error) {
	h.resolved, h.err = resolved, err
}

func TestResolveHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetResolveHooks(hooks)
	t.Cleanup(observability.Reset)

	f := newMockFetcher(map[string]map[string]string{
		"a@1.0.0":   {"dep": "1.1.0"},
		"dep@1.0.0": nil,
		"dep@1.1.0": nil,
	})
	resolve(t, f, map[string]string{"a": "1.0.0", "dep": "1.0.0"})

	if hooks.started != 2 {
		t.Errorf("OnResolveStart roots = %d, want 2", hooks.started)
	}
	if len(hooks.conflicts) != 1 || hooks.conflicts[0] != "dep@1.1.0" {
		t.Errorf("OnConflict calls = %v, want [dep@1.1.0]", hooks.conflicts)
	}
	if hooks.resolved != 2 || hooks.err != nil {
		t.Errorf("OnResolveComplete = (%d, %v), want (2, nil)", hooks.resolved, hooks.err)
	}
}

func TestResolveAgainstRegistry(t *testing.T) {
	reg := registrytest.New()
	defer reg.Close()
	reg.Add(
		registrytest.Package{Name: "x", Version: "1.0.0", Dependencies: map[string]string{"y": "^2.0.0", "@scope/z": "~0.1.0"}},
		registrytest.Package{Name: "y", Version: "2.0.0"},
		registrytest.Package{Name: "y", Version: "2.5.0"},
		registrytest.Package{Name: "@scope/z", Version: "0.1.0"},
	)
	client, err := registry.NewClient(reg.URL())
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}

	res := resolve(t, client, map[string]string{"x": "1.0.0"})
	assertResolved(t, res.Resolved, map[string]string{"x": "1.0.0", "y": "2.0.0", "@scope/z": "0.1.0"})
}
