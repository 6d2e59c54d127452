// Package registry provides an HTTP client for an npm-compatible package
// registry.
//
// # Overview
//
// The client covers the three read-only endpoints stackpm needs:
//
//	GET /{name}                      packument: dist-tags, versions, publish times
//	GET /{name}/{version}            metadata for one exact version
//	GET /{name}/-/{base}-{v}.tgz     gzip-compressed tarball
//
// # Usage
//
//	client, err := registry.NewClient(registry.DefaultURL,
//	    registry.WithCache(backend, 24*time.Hour),
//	    registry.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//
//	latest, err := client.LatestTag(ctx, "express")
//	meta, err := client.VersionMetadata(ctx, "express", latest)
//	dir, err := client.FetchAndExtract(ctx, "express", latest, "node_modules/express")
//	// dir == "node_modules/express-4.18.2"
//
// # Errors
//
// Failures are [errors.Error] values from pkg/errors with codes NOT_FOUND,
// NETWORK_ERROR, MALFORMED_RESPONSE, EXTRACTION_ERROR or FILESYSTEM_ERROR.
// Transport failures and 5xx responses are retried with backoff.
//
// # Caching
//
// Packuments and version metadata are cached through pkg/cache, scoped by
// registry URL. Archives are always downloaded. Pass [WithRefresh] to
// bypass cached metadata.
//
// # Compatible versions
//
// [Client.CompatibleVersion] returns the most recently published version
// sharing the hint's major version. The resolver does not call it; version
// specifiers are reduced to their literal base instead.
package registry
