// Package resolve flattens a manifest's dependency declarations into a
// single name-to-version mapping.
//
// Resolution is a breadth-first walk over an explicit FIFO worklist. Each
// package name resolves to exactly one version: when two requests disagree,
// the numerically higher version wins and the conflict is reported through
// the logger, [observability.ResolveHooks] and [Result.Conflicts].
//
// Version specifiers are never range-matched. Leading range operators are
// stripped ("^2.0.0" becomes "2.0.0") and the literal is fetched as is.
//
//	r := resolve.New(client, resolve.WithLogger(logger))
//	res, err := r.Resolve(ctx, manifest.Dependencies)
//	for _, name := range res.Resolved.Names() {
//	    fmt.Println(name, res.Resolved[name])
//	}
package resolve
