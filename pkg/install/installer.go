// Package install materializes a resolved dependency set into a package
// store directory.
//
// Every run starts from an empty store: the directory is created if needed
// and all of its current contents are removed. Packages are then fetched
// one at a time in name order into {store}/{name}-{version}. A failure for
// one package is logged and recorded in the [Report]; it never stops the
// remaining packages and never rolls back the ones already installed.
package install

import (
	"context"
	"errors"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/observability"
)

// ArchiveFetcher downloads and unpacks one package version.
//
// dest is the store path named after the package; the implementation
// extracts to dest + "-" + version and returns that directory.
// [registry.Client] is the standard implementation.
type ArchiveFetcher interface {
	FetchAndExtract(ctx context.Context, name, version, dest string) (string, error)
}

// Installed describes one package written to the store.
type Installed struct {
	Name    string
	Version string
	Dir     string
}

// Failure describes one package that could not be installed.
type Failure struct {
	Name    string
	Version string
	Err     error
}

// Report summarizes an install run.
type Report struct {
	RunID     string
	Store     string
	Installed []Installed
	Failed    []Failure
	Duration  time.Duration
}

// OK reports whether every package was installed.
func (r *Report) OK() bool { return len(r.Failed) == 0 }

// EventKind identifies a progress event.
type EventKind int

const (
	EventStart     EventKind = iota // a package fetch is starting
	EventInstalled                  // a package was extracted
	EventFailed                     // a package failed; Err is set
)

// Event reports progress for one package. Index is zero-based.
type Event struct {
	Kind    EventKind
	Name    string
	Version string
	Index   int
	Total   int
	Dir     string
	Err     error
}

// Installer writes packages into a store directory.
type Installer struct {
	fetcher  ArchiveFetcher
	store    string
	logger   *log.Logger
	progress func(Event)
	runID    string
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger sets the logger for per-package output.
func WithLogger(l *log.Logger) Option {
	return func(i *Installer) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithProgress registers a callback invoked synchronously for each event.
func WithProgress(fn func(Event)) Option {
	return func(i *Installer) { i.progress = fn }
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(i *Installer) { i.runID = id }
}

// New creates an Installer that extracts into store.
func New(f ArchiveFetcher, store string, opts ...Option) *Installer {
	i := &Installer{
		fetcher: f,
		store:   store,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.runID == "" {
		i.runID = uuid.NewString()
	}
	return i
}

// Store returns the store directory.
func (i *Installer) Store() string { return i.store }

// Install resets the store and installs every entry of resolved.
//
// The returned error is non-nil only when the store cannot be prepared or
// ctx is canceled; the report is returned alongside a cancellation error
// and lists what finished before it. Per-package failures are in
// [Report.Failed].
func (i *Installer) Install(ctx context.Context, resolved map[string]string) (*Report, error) {
	start := time.Now()
	logger := i.logger.With("run", i.runID)
	report := &Report{RunID: i.runID, Store: i.store}

	if err := i.reset(); err != nil {
		return nil, err
	}
	logger.Debug("store reset", "path", i.store)

	names := slices.Sorted(maps.Keys(resolved))
	hooks := observability.Install()
	for idx, name := range names {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		version := resolved[name]
		i.emit(Event{Kind: EventStart, Name: name, Version: version, Index: idx, Total: len(names)})

		pkgStart := time.Now()
		dir, err := i.installOne(ctx, name, version)
		hooks.OnPackageInstalled(ctx, name, version, time.Since(pkgStart), err)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				report.Duration = time.Since(start)
				return report, ctxErr
			}
			logger.Error("install failed", "package", name, "version", version, "err", pkgerr.UserMessage(err))
			report.Failed = append(report.Failed, Failure{Name: name, Version: version, Err: err})
			i.emit(Event{Kind: EventFailed, Name: name, Version: version, Index: idx, Total: len(names), Err: err})
			continue
		}

		logger.Debug("installed", "package", name, "version", version, "dir", dir)
		report.Installed = append(report.Installed, Installed{Name: name, Version: version, Dir: dir})
		i.emit(Event{Kind: EventInstalled, Name: name, Version: version, Index: idx, Total: len(names), Dir: dir})
	}

	report.Duration = time.Since(start)
	hooks.OnInstallComplete(ctx, len(report.Installed), len(report.Failed), report.Duration)
	logger.Info("install complete", "installed", len(report.Installed), "failed", len(report.Failed),
		"took", report.Duration.Round(time.Millisecond))
	return report, nil
}

func (i *Installer) installOne(ctx context.Context, name, version string) (string, error) {
	if err := pkgerr.ValidatePackageName(name); err != nil {
		return "", err
	}
	if err := pkgerr.ValidateVersion(version); err != nil {
		return "", err
	}
	return i.fetcher.FetchAndExtract(ctx, name, version, filepath.Join(i.store, filepath.FromSlash(name)))
}

// reset creates the store if missing and removes everything inside it.
func (i *Installer) reset() error {
	clean := filepath.Clean(i.store)
	if i.store == "" || clean == string(filepath.Separator) || clean == "." {
		return pkgerr.New(pkgerr.ErrCodeInvalidPath, "refusing to use %q as package store", i.store)
	}
	if err := os.MkdirAll(clean, 0o755); err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "create store %s", clean)
	}
	entries, err := os.ReadDir(clean)
	if err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "read store %s", clean)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(clean, e.Name())); err != nil {
			return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "clear store %s", clean)
		}
	}
	return nil
}

func (i *Installer) emit(e Event) {
	if i.progress != nil {
		i.progress(e)
	}
}
