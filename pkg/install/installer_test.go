package install

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/observability"
	"github.com/matzehuels/stackpm/pkg/registry"
	"github.com/matzehuels/stackpm/pkg/registry/registrytest"
)

func newRegistry(t *testing.T, pkgs ...registrytest.Package) (*registrytest.Registry, *registry.Client) {
	t.Helper()
	reg := registrytest.New()
	t.Cleanup(reg.Close)
	reg.Add(pkgs...)
	client, err := registry.NewClient(reg.URL(), registry.WithBackoff(cacheFast))
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return reg, client
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// snapshot records every path and mode under root, plus mtime and body
// for regular files.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		info, err := d.Info()
		if err != nil {
			return err
		}
		entry := info.Mode().String()
		if d.Type().IsRegular() {
			entry += " " + info.ModTime().UTC().Format(time.RFC3339Nano)
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			entry += " " + string(data)
		}
		out[rel] = entry
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir(%s): %v", root, err)
	}
	delete(out, ".")
	return out
}

func TestInstallSinglePackage(t *testing.T) {
	_, client := newRegistry(t, registrytest.Package{
		Name:    "x",
		Version: "1.0.0",
		Files:   map[string]string{"index.js": "module.exports = 'x'", "package.json": `{"name":"x"}`},
	})
	store := t.TempDir()
	if err := os.WriteFile(filepath.Join(store, "unrelated.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(store, "stale-0.0.1", "lib"), 0o755); err != nil {
		t.Fatal(err)
	}

	report, err := New(client, store).Install(context.Background(), map[string]string{"x": "1.0.0"})
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	if got := listDir(t, store); len(got) != 1 || got[0] != "x-1.0.0" {
		t.Errorf("store contents = %v, want [x-1.0.0]", got)
	}
	data, err := os.ReadFile(filepath.Join(store, "x-1.0.0", "index.js"))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(data) != "module.exports = 'x'" {
		t.Errorf("index.js = %q", data)
	}
	if !report.OK() || len(report.Installed) != 1 {
		t.Errorf("report = %+v, want one installed package", report)
	}
	if report.Installed[0].Dir != filepath.Join(store, "x-1.0.0") {
		t.Errorf("Installed[0].Dir = %q", report.Installed[0].Dir)
	}
	if report.RunID == "" {
		t.Error("RunID should be generated")
	}
}

func TestInstallMixedCaseName(t *testing.T) {
	reg, client := newRegistry(t, registrytest.Package{
		Name:    "JSONStream",
		Version: "1.3.5",
		Files:   map[string]string{"index.js": "module.exports = 'stream'"},
	})
	store := t.TempDir()

	report, err := New(client, store).Install(context.Background(), map[string]string{"JSONStream": "1.3.5"})
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if !report.OK() || len(report.Installed) != 1 {
		t.Fatalf("report = %+v, want JSONStream installed", report)
	}
	if _, err := os.Stat(filepath.Join(store, "JSONStream-1.3.5", "index.js")); err != nil {
		t.Errorf("package not extracted: %v", err)
	}
	if hits := reg.Hits("/JSONStream/-/JSONStream-1.3.5.tgz"); hits != 1 {
		t.Errorf("archive hits = %d, want 1", hits)
	}
}

func TestInstallCreatesMissingStore(t *testing.T) {
	_, client := newRegistry(t, registrytest.Package{Name: "x", Version: "1.0.0"})
	store := filepath.Join(t.TempDir(), "nested", "node_modules")

	if _, err := New(client, store).Install(context.Background(), map[string]string{"x": "1.0.0"}); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if got := listDir(t, store); len(got) != 1 || got[0] != "x-1.0.0" {
		t.Errorf("store contents = %v, want [x-1.0.0]", got)
	}
}

func TestInstallEmptySetClearsStore(t *testing.T) {
	store := t.TempDir()
	if err := os.WriteFile(filepath.Join(store, "leftover"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	report, err := New(&failingFetcher{}, store).Install(context.Background(), nil)
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if got := listDir(t, store); len(got) != 0 {
		t.Errorf("store contents = %v, want empty", got)
	}
	if len(report.Installed) != 0 || len(report.Failed) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestInstallFailureDoesNotStopOthers(t *testing.T) {
	reg, client := newRegistry(t,
		registrytest.Package{Name: "a", Version: "1.0.0", Files: map[string]string{"a.js": "a"}},
		registrytest.Package{Name: "b", Version: "2.0.0", Files: map[string]string{"b.js": "b"}},
		registrytest.Package{Name: "c", Version: "3.0.0", Files: map[string]string{"c.js": "c"}},
	)
	reg.FailArchive("b", "2.0.0", http.StatusInternalServerError)
	store := t.TempDir()

	var events []Event
	report, err := New(client, store, WithProgress(func(e Event) { events = append(events, e) })).
		Install(context.Background(), map[string]string{"a": "1.0.0", "b": "2.0.0", "c": "3.0.0"})
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	if got := listDir(t, store); len(got) != 2 || got[0] != "a-1.0.0" || got[1] != "c-3.0.0" {
		t.Errorf("store contents = %v, want [a-1.0.0 c-3.0.0]", got)
	}
	if len(report.Failed) != 1 || report.Failed[0].Name != "b" || report.Failed[0].Version != "2.0.0" {
		t.Fatalf("Failed = %+v, want b@2.0.0", report.Failed)
	}
	if !pkgerr.Is(report.Failed[0].Err, pkgerr.ErrCodeNetwork) {
		t.Errorf("failure error = %v, want NETWORK_ERROR", report.Failed[0].Err)
	}
	if report.OK() {
		t.Error("OK() = true, want false")
	}

	var kinds []EventKind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
		if e.Total != 3 {
			t.Errorf("event %+v has Total %d, want 3", e, e.Total)
		}
	}
	want := []EventKind{EventStart, EventInstalled, EventStart, EventFailed, EventStart, EventInstalled}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestInstallIdempotent(t *testing.T) {
	_, client := newRegistry(t,
		registrytest.Package{Name: "x", Version: "1.0.0", Files: map[string]string{
			"index.js":     "x",
			"lib/util.js":  "util",
			"package.json": `{"name":"x"}`,
		}},
		registrytest.Package{Name: "@scope/y", Version: "0.2.0", Files: map[string]string{"y.js": "y"}},
	)
	store := t.TempDir()
	resolved := map[string]string{"x": "1.0.0", "@scope/y": "0.2.0"}
	inst := New(client, store)

	if _, err := inst.Install(context.Background(), resolved); err != nil {
		t.Fatalf("first Install() error: %v", err)
	}
	first := snapshot(t, store)

	if _, err := inst.Install(context.Background(), resolved); err != nil {
		t.Fatalf("second Install() error: %v", err)
	}
	second := snapshot(t, store)

	if len(first) != len(second) {
		t.Fatalf("entry count differs: %d vs %d", len(first), len(second))
	}
	for path, entry := range first {
		if second[path] != entry {
			t.Errorf("%s differs:\n first: %q\nsecond: %q", path, entry, second[path])
		}
	}
	if _, ok := first[filepath.Join("@scope", "y-0.2.0", "y.js")]; !ok {
		t.Errorf("scoped package missing from store: %v", first)
	}
}

func TestInstallStoreErrors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		store string
		code  pkgerr.Code
	}{
		{"empty", "", pkgerr.ErrCodeInvalidPath},
		{"root", string(filepath.Separator), pkgerr.ErrCodeInvalidPath},
		{"file", file, pkgerr.ErrCodeFilesystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &failingFetcher{}
			report, err := New(f, tt.store).Install(context.Background(), map[string]string{"x": "1.0.0"})
			if !pkgerr.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
			if report != nil {
				t.Errorf("report = %+v, want nil", report)
			}
			if f.calls != 0 {
				t.Errorf("fetcher called %d times, want 0", f.calls)
			}
		})
	}
}

func TestInstallRejectsUnsafeNames(t *testing.T) {
	f := &failingFetcher{}
	store := t.TempDir()
	report, err := New(f, store).Install(context.Background(), map[string]string{
		"../escape": "1.0.0",
		"ok":        "../../1.0.0",
	})
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if len(report.Failed) != 2 {
		t.Errorf("Failed = %+v, want 2 failures", report.Failed)
	}
	if f.calls != 0 {
		t.Errorf("fetcher called %d times, want 0", f.calls)
	}
}

func TestInstallContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &failingFetcher{onFetch: cancel, err: context.Canceled}

	report, err := New(f, t.TempDir()).Install(ctx, map[string]string{"a": "1.0.0", "b": "1.0.0"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if report == nil {
		t.Fatal("report should accompany a cancellation")
	}
	if f.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", f.calls)
	}
	if len(report.Failed) != 0 {
		t.Errorf("cancellation should not be recorded as a failure: %+v", report.Failed)
	}
}

type recordingHooks struct {
	observability.NoopInstallHooks
	packages []string
	done     [2]int
}

func (h *recordingHooks) OnPackageInstalled(_ context.Context, name, version string, _ time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	h.packages = append(h.packages, name+"@"+version+":"+status)
}

func (h *recordingHooks) OnInstallComplete(_ context.Context, installed, failed int, _ time.Duration) {
	h.done = [2]int{installed, failed}
}

func TestInstallHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetInstallHooks(hooks)
	t.Cleanup(observability.Reset)

	reg, client := newRegistry(t,
		registrytest.Package{Name: "a", Version: "1.0.0"},
		registrytest.Package{Name: "b", Version: "1.0.0"},
	)
	reg.CorruptArchive("b", "1.0.0")

	if _, err := New(client, t.TempDir()).Install(context.Background(), map[string]string{"a": "1.0.0", "b": "1.0.0"}); err != nil {
		t.Fatalf("Install() error: %v", err)
	}

	want := []string{"a@1.0.0:ok", "b@1.0.0:failed"}
	if len(hooks.packages) != len(want) {
		t.Fatalf("OnPackageInstalled calls = %v, want %v", hooks.packages, want)
	}
	for i := range want {
		if hooks.packages[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, hooks.packages[i], want[i])
		}
	}
	if hooks.done != [2]int{1, 1} {
		t.Errorf("OnInstallComplete = %v, want [1 1]", hooks.done)
	}
}

func TestInstallLogsRunID(t *testing.T) {
	var buf bytes.Buffer
	_, client := newRegistry(t, registrytest.Package{Name: "x", Version: "1.0.0"})

	report, err := New(client, t.TempDir(), WithLogger(newTestLogger(&buf)), WithRunID("run-42")).
		Install(context.Background(), map[string]string{"x": "1.0.0"})
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if report.RunID != "run-42" {
		t.Errorf("RunID = %q, want run-42", report.RunID)
	}
	if !bytes.Contains(buf.Bytes(), []byte("run=run-42")) {
		t.Errorf("log output missing run id:\n%s", buf.String())
	}
}
