// Package pkg holds the libraries behind stackpm, a package manager that
// installs npm-style packages into a local store.
//
// # Overview
//
// A run reads a manifest, resolves every declared dependency to exactly one
// version, and extracts each resolved package into the store:
//
//	package.json
//	     ↓
//	[manifest]   load "dependencies"
//	     ↓
//	[resolve]    FIFO traversal, higher version wins conflicts
//	     ↓
//	[install]    empty the store, fetch and extract each package
//	     ↓
//	node_modules/{name}-{version}
//
// [registry] talks to the registry for both metadata and archives, with
// metadata cached through [cache]. [pipeline] strings the stages together
// for the CLI, and [render] draws a resolution as a DOT or SVG graph.
//
// # Quick Start
//
//	client, err := registry.NewClient(registry.DefaultURL)
//	if err != nil {
//	    return err
//	}
//	result, err := pipeline.NewRunner(client, nil).Execute(ctx, pipeline.Options{})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(len(result.Report.Installed), "installed")
//
// # Errors and hooks
//
// Every package returns [errors] codes (NOT_FOUND, NETWORK_ERROR,
// EXTRACTION_ERROR and so on) that callers inspect with errors.Is or
// [errors.GetCode]. [observability] exposes hook interfaces for resolution,
// installation, HTTP and cache events; the defaults are no-ops.
//
// [manifest]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/manifest
// [resolve]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/resolve
// [install]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/install
// [registry]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/registry
// [cache]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/cache
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/pipeline
// [render]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/render
// [errors]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/errors
// [errors.GetCode]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/errors#GetCode
// [observability]: https://pkg.go.dev/github.com/matzehuels/stackpm/pkg/observability
package pkg
