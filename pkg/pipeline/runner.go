package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/install"
	"github.com/matzehuels/stackpm/pkg/manifest"
	"github.com/matzehuels/stackpm/pkg/resolve"
)

// Runner executes pipeline stages against one registry.
//
// The Runner holds no per-run state; the registry client is passed in
// explicitly so tests can substitute a fake.
type Runner struct {
	Registry Registry
	Logger   *log.Logger
}

// NewRunner creates a runner. If logger is nil, output is discarded.
func NewRunner(reg Registry, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{Registry: reg, Logger: logger}
}

// Execute runs load, resolve and install.
//
// A resolution failure aborts before the store is touched. Per-package
// install failures are reported in Result.Report, not as an error.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.WithDefaults()

	result, err := r.Resolve(ctx, opts)
	if err != nil {
		return nil, err
	}

	installStart := time.Now()
	inst := install.New(r.Registry, opts.Store,
		install.WithLogger(r.Logger),
		install.WithProgress(opts.Progress),
		install.WithRunID(opts.RunID),
	)
	report, err := inst.Install(ctx, result.Resolution.Resolved)
	result.Report = report
	result.Stats.InstallTime = time.Since(installStart)
	if report != nil {
		result.Stats.Installed = len(report.Installed)
		result.Stats.Failed = len(report.Failed)
	}
	if err != nil {
		return result, fmt.Errorf("install: %w", err)
	}
	return result, nil
}

// Resolve loads the manifest and resolves its dependencies without
// touching the store.
func (r *Runner) Resolve(ctx context.Context, opts Options) (*Result, error) {
	opts = opts.WithDefaults()

	m, err := manifest.Load(opts.Manifest)
	if err != nil {
		return nil, err
	}
	r.Logger.Debug("loaded manifest", "path", opts.Manifest, "dependencies", len(m.Dependencies))

	start := time.Now()
	res, err := resolve.New(r.Registry, resolve.WithLogger(r.Logger)).Resolve(ctx, m.Dependencies)
	if err != nil {
		return nil, err
	}

	return &Result{
		Manifest:   m,
		Resolution: res,
		Stats: Stats{
			Packages:    len(res.Resolved),
			Conflicts:   len(res.Conflicts),
			Fetches:     res.Fetches,
			ResolveTime: time.Since(start),
		},
	}, nil
}

// Add records name@version in the manifest at path. When version is
// empty the registry's latest tag is used. It returns the version written.
//
// A missing manifest is created with only a dependencies object.
func (r *Runner) Add(ctx context.Context, path, name, version string) (string, error) {
	if path == "" {
		path = DefaultManifest
	}
	if err := pkgerr.ValidatePackageName(name); err != nil {
		return "", err
	}

	m, err := manifest.Load(path)
	switch {
	case pkgerr.Is(err, pkgerr.ErrCodeNotFound):
		m = manifest.New()
	case err != nil:
		return "", err
	}

	if version == "" {
		latest, err := r.Registry.LatestTag(ctx, name)
		if err != nil {
			return "", err
		}
		version = latest
		r.Logger.Debug("using latest tag", "package", name, "version", version)
	} else if err := pkgerr.ValidateVersion(resolve.StripRange(version)); err != nil {
		return "", err
	}

	m.Add(name, version)
	if err := m.Save(path); err != nil {
		return "", err
	}
	return version, nil
}
