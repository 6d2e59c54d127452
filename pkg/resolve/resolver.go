package resolve

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/observability"
	"github.com/matzehuels/stackpm/pkg/registry"
)

// Fetcher retrieves metadata for one exact package version.
//
// [registry.Client] is the standard implementation. Errors abort the
// resolution that triggered the fetch.
type Fetcher interface {
	VersionMetadata(ctx context.Context, name, version string) (*registry.Metadata, error)
}

// Resolved maps each package name to the single version chosen for it.
type Resolved map[string]string

// Names returns the package names in sorted order.
func (r Resolved) Names() []string {
	return slices.Sorted(maps.Keys(r))
}

// Request is one worklist entry: a package version asked for by Parent.
// Parent is empty for dependencies declared in the manifest itself.
type Request struct {
	Name    string
	Version string
	Parent  string
}

// Edge records that From (name@version, or "" for the manifest) declared a
// dependency on To.
type Edge struct {
	From string
	To   Request
}

// Conflict describes two differing versions requested for one package.
type Conflict struct {
	Name     string
	Existing string
	Proposed string
	Chosen   string
}

// Result is the outcome of a successful resolution.
type Result struct {
	Resolved  Resolved
	Edges     []Edge
	Conflicts []Conflict
	Fetches   int // metadata requests issued
}

// Resolver walks dependency declarations using a [Fetcher].
type Resolver struct {
	fetcher Fetcher
	logger  *log.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for conflict and debug output.
func WithLogger(l *log.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver that fetches metadata through f.
func New(f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{fetcher: f, logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve flattens deps (name to version specifier) and everything they
// transitively require into a [Resolved] set.
//
// Entries are processed strictly in FIFO order. Root dependencies and each
// package's children are enqueued in sorted name order, so the result and
// its conflict list are deterministic for a given registry state.
//
// A metadata error for any package aborts the whole resolution and no
// partial result is returned.
func (r *Resolver) Resolve(ctx context.Context, deps map[string]string) (*Result, error) {
	start := time.Now()
	hooks := observability.Resolve()
	hooks.OnResolveStart(ctx, len(deps))

	res, err := r.walk(ctx, deps)
	if err != nil {
		hooks.OnResolveComplete(ctx, 0, time.Since(start), err)
		return nil, err
	}
	hooks.OnResolveComplete(ctx, len(res.Resolved), time.Since(start), nil)
	r.logger.Debug("resolution complete", "packages", len(res.Resolved),
		"fetches", res.Fetches, "conflicts", len(res.Conflicts), "took", time.Since(start).Round(time.Millisecond))
	return res, nil
}

func (r *Resolver) walk(ctx context.Context, deps map[string]string) (*Result, error) {
	res := &Result{Resolved: make(Resolved)}
	var queue worklist

	enqueue := func(parent string, children map[string]string) error {
		for _, name := range slices.Sorted(maps.Keys(children)) {
			req := Request{Name: name, Version: StripRange(children[name]), Parent: parent}
			if err := validate(req, children[name]); err != nil {
				return err
			}
			res.Edges = append(res.Edges, Edge{From: parent, To: req})
			queue.push(req)
		}
		return nil
	}

	if err := enqueue("", deps); err != nil {
		return nil, err
	}

	for {
		req, ok := queue.pop()
		if !ok {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if existing, seen := res.Resolved[req.Name]; seen {
			if existing == req.Version {
				continue
			}
			chosen := Higher(existing, req.Version)
			r.conflict(ctx, res, req, existing, chosen)
			if chosen == existing {
				continue
			}
		}

		res.Resolved[req.Name] = req.Version
		res.Fetches++
		meta, err := r.fetcher.VersionMetadata(ctx, req.Name, req.Version)
		if err != nil {
			return nil, fmt.Errorf("resolve %s@%s: %w", req.Name, req.Version, err)
		}
		r.logger.Debug("resolved", "package", req.Name, "version", req.Version,
			"dependencies", len(meta.Dependencies), "queued", queue.len())

		if err := enqueue(req.Name+"@"+req.Version, meta.Dependencies); err != nil {
			return nil, err
		}
	}
}

func (r *Resolver) conflict(ctx context.Context, res *Result, req Request, existing, chosen string) {
	res.Conflicts = append(res.Conflicts, Conflict{
		Name:     req.Name,
		Existing: existing,
		Proposed: req.Version,
		Chosen:   chosen,
	})
	requiredBy := req.Parent
	if requiredBy == "" {
		requiredBy = "manifest"
	}
	r.logger.Warn("version conflict", "package", req.Name, "existing", existing,
		"requested", req.Version, "by", requiredBy, "using", chosen)
	observability.Resolve().OnConflict(ctx, req.Name, existing, req.Version, chosen)
}

func validate(req Request, spec string) error {
	if err := pkgerr.ValidateVersion(req.Version); err != nil {
		by := req.Parent
		if by == "" {
			by = "manifest"
		}
		return pkgerr.Wrap(pkgerr.ErrCodeInvalidVersion, err,
			"unsupported version specifier %q for %s (required by %s)", spec, req.Name, by)
	}
	return nil
}

// worklist is a FIFO queue of requests. Duplicates are allowed; every
// entry is popped exactly once.
type worklist struct {
	items []Request
	head  int
}

func (w *worklist) push(r Request) {
	w.items = append(w.items, r)
}

func (w *worklist) pop() (Request, bool) {
	if w.head == len(w.items) {
		w.items, w.head = w.items[:0], 0
		return Request{}, false
	}
	r := w.items[w.head]
	w.head++
	return r, true
}

func (w *worklist) len() int { return len(w.items) - w.head }
