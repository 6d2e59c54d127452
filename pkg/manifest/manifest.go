// Package manifest reads and writes the JSON project manifest.
//
// Only the "dependencies" object is interpreted. Every other top-level key
// is kept as raw JSON and written back unchanged. Top-level keys and
// dependencies keep their file order on save; new dependencies are
// appended.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
)

// DefaultFile is the manifest file name looked up in the working directory.
const DefaultFile = "package.json"

// Manifest is a parsed manifest document.
type Manifest struct {
	Dependencies map[string]string

	raw      map[string]json.RawMessage
	keys     []string // top-level keys in file order
	depOrder []string // dependency names in file order, then insertion order
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{Dependencies: map[string]string{}, raw: map[string]json.RawMessage{}}
}

// Load reads the manifest at path. A missing "dependencies" object yields
// an empty map.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pkgerr.Wrap(pkgerr.ErrCodeNotFound, err, "manifest %s", path)
		}
		return nil, pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "read manifest %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeInvalidManifest, err, "manifest %s", path)
	}
	return m, nil
}

// Parse decodes a manifest document.
func Parse(data []byte) (*Manifest, error) {
	m := New()
	if err := json.Unmarshal(data, &m.raw); err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeInvalidManifest, err, "invalid JSON")
	}
	if m.raw == nil {
		return nil, pkgerr.New(pkgerr.ErrCodeInvalidManifest, "manifest must be a JSON object")
	}
	if deps, ok := m.raw["dependencies"]; ok && string(deps) != "null" {
		if err := json.Unmarshal(deps, &m.Dependencies); err != nil {
			return nil, pkgerr.Wrap(pkgerr.ErrCodeInvalidManifest, err, `"dependencies" must map names to version strings`)
		}
		m.depOrder, _ = objectKeys(deps)
	}
	keys, err := objectKeys(data)
	if err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeInvalidManifest, err, "invalid JSON")
	}
	m.keys = keys
	return m, nil
}

// objectKeys returns the keys of the JSON object in data in document
// order. Repeated keys are listed once, at their first position.
func objectKeys(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Name returns the manifest's "name" field, if any.
func (m *Manifest) Name() string {
	var name string
	if raw, ok := m.raw["name"]; ok {
		_ = json.Unmarshal(raw, &name)
	}
	return name
}

// Add sets dependencies[name] = version, replacing any previous entry.
func (m *Manifest) Add(name, version string) {
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	if _, ok := m.Dependencies[name]; !ok {
		m.depOrder = append(m.depOrder, name)
	}
	m.Dependencies[name] = version
}

// Names returns the declared dependency names in sorted order.
func (m *Manifest) Names() []string {
	return slices.Sorted(maps.Keys(m.Dependencies))
}

// Marshal encodes the manifest with two-space indentation and a trailing
// newline, keeping key order.
func (m *Manifest) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.topKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(&buf, key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if key == "dependencies" {
			if err := m.writeDependencies(&buf); err != nil {
				return nil, err
			}
			continue
		}
		buf.Write(m.raw[key])
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, pkgerr.Wrap(pkgerr.ErrCodeInternal, err, "encode manifest")
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// topKeys lists the top-level keys to write: file order first, then keys
// that only exist in raw, then "dependencies" if it is new.
func (m *Manifest) topKeys() []string {
	seen := make(map[string]bool, len(m.keys)+1)
	var keys []string
	for _, k := range m.keys {
		if _, ok := m.raw[k]; ok || k == "dependencies" {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	for _, k := range slices.Sorted(maps.Keys(m.raw)) {
		if !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	if !seen["dependencies"] {
		keys = append(keys, "dependencies")
	}
	return keys
}

func (m *Manifest) writeDependencies(buf *bytes.Buffer) error {
	seen := make(map[string]bool, len(m.Dependencies))
	names := make([]string, 0, len(m.Dependencies))
	for _, name := range m.depOrder {
		if _, ok := m.Dependencies[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	// Entries set directly on the exported map have no recorded position.
	for _, name := range m.Names() {
		if !seen[name] {
			names = append(names, name)
		}
	}

	buf.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeString(buf, m.Dependencies[name]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeString appends s as a JSON string without HTML escaping.
func writeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeInternal, err, "encode %q", s)
	}
	buf.Truncate(buf.Len() - 1) // Encode appends a newline
	return nil
}

// Save writes the manifest to path atomically.
func (m *Manifest) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "save manifest %s", path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "save manifest %s", path)
	}
	if err := tmp.Close(); err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "save manifest %s", path)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "save manifest %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "save manifest %s", path)
	}
	return nil
}

// ParseSpec splits "name@version" into its parts. Scoped names keep their
// leading "@" ("@types/node@20.1.0"). The version is empty when omitted.
func ParseSpec(spec string) (name, version string, err error) {
	spec = strings.TrimSpace(spec)
	name = spec
	if i := strings.LastIndex(spec, "@"); i > 0 {
		name, version = spec[:i], spec[i+1:]
		if version == "" {
			return "", "", pkgerr.New(pkgerr.ErrCodeInvalidInput, "missing version after @ in %q", spec)
		}
	}
	if err := pkgerr.ValidatePackageName(name); err != nil {
		return "", "", err
	}
	return name, version, nil
}
