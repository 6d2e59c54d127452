// Package pipeline wires the manifest, resolver and installer together.
//
// It is the single code path shared by the install, resolve, graph and add
// commands, so that every entry point reads the manifest, walks the
// registry and writes the store the same way.
//
// # Stages
//
//  1. Load: read the manifest's declared dependencies
//  2. Resolve: flatten them into one version per package
//  3. Install: reset the store and extract every resolved package
//
// # Usage
//
//	runner := pipeline.NewRunner(client, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Manifest: "package.json",
//	    Store:    "node_modules",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(len(result.Report.Installed), "installed")
package pipeline

import (
	"context"
	"time"

	"github.com/matzehuels/stackpm/pkg/install"
	"github.com/matzehuels/stackpm/pkg/manifest"
	"github.com/matzehuels/stackpm/pkg/registry"
	"github.com/matzehuels/stackpm/pkg/resolve"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultManifest is the manifest read when Options.Manifest is empty.
	DefaultManifest = manifest.DefaultFile

	// DefaultStore is the package store used when Options.Store is empty.
	DefaultStore = "node_modules"
)

// =============================================================================
// Registry
// =============================================================================

// Registry is everything the pipeline needs from a registry client.
// [registry.Client] satisfies it.
type Registry interface {
	resolve.Fetcher
	install.ArchiveFetcher
	LatestTag(ctx context.Context, name string) (string, error)
}

var _ Registry = (*registry.Client)(nil)

// =============================================================================
// Options
// =============================================================================

// Options configures a pipeline run.
type Options struct {
	// Manifest is the path to the manifest file.
	Manifest string

	// Store is the package store directory. It is emptied before install.
	Store string

	// Progress receives per-package install events.
	Progress func(install.Event)

	// RunID tags the install run in logs; generated when empty.
	RunID string
}

// WithDefaults returns a copy of o with empty fields filled in.
func (o Options) WithDefaults() Options {
	if o.Manifest == "" {
		o.Manifest = DefaultManifest
	}
	if o.Store == "" {
		o.Store = DefaultStore
	}
	return o
}

// =============================================================================
// Result
// =============================================================================

// Result contains the outputs of a pipeline run.
type Result struct {
	// Manifest is the manifest that was read.
	Manifest *manifest.Manifest

	// Resolution is the flattened dependency set with its edges and
	// conflicts.
	Resolution *resolve.Result

	// Report lists installed and failed packages. Nil when only resolving.
	Report *install.Report

	// Stats contains counts and timings.
	Stats Stats
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Packages    int
	Conflicts   int
	Fetches     int
	Installed   int
	Failed      int
	ResolveTime time.Duration
	InstallTime time.Duration
}
