// Package registrytest runs an in-process npm-compatible registry for tests.
//
//	reg := registrytest.New()
//	defer reg.Close()
//	reg.Add(registrytest.Package{
//	    Name:         "x",
//	    Version:      "1.0.0",
//	    Dependencies: map[string]string{"y": "^2.0.0"},
//	    Files:        map[string]string{"index.js": "module.exports = 1"},
//	})
//	client, _ := registry.NewClient(reg.URL())
//
// Tarballs are built on request from Files, wrapped in a "package/"
// directory like the ones npm publishes.
package registrytest

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"
)

// Epoch is the modification time stamped on every archive entry.
var Epoch = time.Date(1985, 10, 26, 8, 15, 0, 0, time.UTC)

// Package is one published version.
type Package struct {
	Name         string
	Version      string
	Dependencies map[string]string
	Files        map[string]string // path inside the package -> contents
	Published    time.Time         // zero means Epoch plus insertion order
	TarballPath  string            // served under /_files/; empty means the npm pattern
}

// Registry is a fake registry backed by httptest.Server.
type Registry struct {
	server *httptest.Server

	mu       sync.Mutex
	packages map[string]map[string]Package
	latest   map[string]string
	failures map[string]int    // name@version -> archive status code
	corrupt  map[string]bool   // name@version -> serve garbage archive
	raw      map[string]string // request path -> raw body override
	hits     map[string]int
	seq      int
}

// New starts a registry. Call Close when done.
func New() *Registry {
	r := &Registry{
		packages: make(map[string]map[string]Package),
		latest:   make(map[string]string),
		failures: make(map[string]int),
		corrupt:  make(map[string]bool),
		raw:      make(map[string]string),
		hits:     make(map[string]int),
	}

	router := chi.NewRouter()
	router.Use(r.count)
	router.Get("/_files/*", r.handleFile)
	router.Get("/{name}", r.handlePackument)
	router.Get("/{name}/{version}", r.handleVersion)
	router.Get("/{name}/-/{file}", r.handleTarball)
	router.Get("/{scope}/{name}/-/{file}", r.handleTarball)

	r.server = httptest.NewServer(router)
	return r
}

// URL returns the registry base URL.
func (r *Registry) URL() string { return r.server.URL }

// Close shuts the server down.
func (r *Registry) Close() { r.server.Close() }

// Add publishes p and marks it latest.
func (r *Registry) Add(pkgs ...Package) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pkgs {
		if p.Published.IsZero() {
			r.seq++
			p.Published = Epoch.Add(time.Duration(r.seq) * time.Hour)
		}
		if r.packages[p.Name] == nil {
			r.packages[p.Name] = make(map[string]Package)
		}
		r.packages[p.Name][p.Version] = p
		r.latest[p.Name] = p.Version
	}
}

// SetLatest moves the latest tag. An empty version removes the tag.
func (r *Registry) SetLatest(name, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if version == "" {
		delete(r.latest, name)
		return
	}
	r.latest[name] = version
}

// FailArchive makes the tarball for name@version respond with status.
func (r *Registry) FailArchive(name, version string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name+"@"+version] = status
}

// CorruptArchive serves bytes that are not gzip for name@version.
func (r *Registry) CorruptArchive(name, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.corrupt[name+"@"+version] = true
}

// SetRaw serves body verbatim for the given request path.
func (r *Registry) SetRaw(path, body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw[path] = body
}

// Hits returns how many requests were made for path.
func (r *Registry) Hits(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[path]
}

func (r *Registry) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.hits[req.URL.Path]++
		body, ok := r.raw[req.URL.Path]
		r.mu.Unlock()
		if ok {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, body)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func param(req *http.Request, key string) string {
	v := chi.URLParam(req, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (r *Registry) handlePackument(w http.ResponseWriter, req *http.Request) {
	name := param(req, "name")

	r.mu.Lock()
	versions, ok := r.packages[name]
	if !ok {
		r.mu.Unlock()
		http.NotFound(w, req)
		return
	}
	doc := map[string]any{
		"name":      name,
		"dist-tags": map[string]string{},
	}
	if latest, ok := r.latest[name]; ok {
		doc["dist-tags"] = map[string]string{"latest": latest}
	}
	meta := make(map[string]any, len(versions))
	times := make(map[string]time.Time, len(versions))
	for v, p := range versions {
		meta[v] = r.metadata(p)
		times[v] = p.Published
	}
	doc["versions"] = meta
	doc["time"] = times
	r.mu.Unlock()

	writeJSON(w, doc)
}

func (r *Registry) handleVersion(w http.ResponseWriter, req *http.Request) {
	name, version := param(req, "name"), param(req, "version")

	r.mu.Lock()
	if version == "latest" {
		version = r.latest[name]
	}
	p, ok := r.packages[name][version]
	var doc map[string]any
	if ok {
		doc = r.metadata(p)
	}
	r.mu.Unlock()

	if !ok {
		http.NotFound(w, req)
		return
	}
	writeJSON(w, doc)
}

func (r *Registry) handleTarball(w http.ResponseWriter, req *http.Request) {
	name := param(req, "name")
	if scope := param(req, "scope"); scope != "" {
		name = scope + "/" + name
	}
	base := name[strings.LastIndex(name, "/")+1:]
	version := strings.TrimSuffix(strings.TrimPrefix(param(req, "file"), base+"-"), ".tgz")

	r.mu.Lock()
	p, ok := r.packages[name][version]
	r.mu.Unlock()
	r.serveArchive(w, req, p, ok)
}

// handleFile serves archives published with a TarballPath.
func (r *Registry) handleFile(w http.ResponseWriter, req *http.Request) {
	file := chi.URLParam(req, "*")

	r.mu.Lock()
	var found Package
	ok := false
	for _, versions := range r.packages {
		for _, p := range versions {
			if p.TarballPath != "" && p.TarballPath == file {
				found, ok = p, true
			}
		}
	}
	r.mu.Unlock()
	r.serveArchive(w, req, found, ok)
}

func (r *Registry) serveArchive(w http.ResponseWriter, req *http.Request, p Package, ok bool) {
	r.mu.Lock()
	status := r.failures[p.Name+"@"+p.Version]
	corrupt := r.corrupt[p.Name+"@"+p.Version]
	r.mu.Unlock()

	switch {
	case !ok:
		http.NotFound(w, req)
	case status != 0:
		http.Error(w, http.StatusText(status), status)
	case corrupt:
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("this is not a gzip stream"))
	default:
		data, err := Tarball(p.Files)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	}
}

func (r *Registry) metadata(p Package) map[string]any {
	base := p.Name[strings.LastIndex(p.Name, "/")+1:]
	doc := map[string]any{
		"name":    p.Name,
		"version": p.Version,
		"dist": map[string]string{
			"tarball": fmt.Sprintf("%s/%s/-/%s-%s.tgz", r.server.URL, p.Name, base, p.Version),
		},
	}
	if p.TarballPath != "" {
		doc["dist"] = map[string]string{"tarball": r.server.URL + "/_files/" + p.TarballPath}
	}
	if len(p.Dependencies) > 0 {
		doc["dependencies"] = p.Dependencies
	}
	return doc
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Tarball builds a gzip-compressed tar with files under "package/".
// Output is deterministic for a given file map.
func Tarball(files map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		body := files[p]
		hdr := &tar.Header{
			Name:     "package/" + p,
			Mode:     0o644,
			Size:     int64(len(body)),
			ModTime:  Epoch,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
