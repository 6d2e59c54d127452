package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/stackpm/pkg/cache"
	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
)

// VersionNotFound is returned by [Client.CompatibleVersion] when no
// published version shares the hint's major version.
const VersionNotFound = ""

// Packument fetches the full document for name.
func (c *Client) Packument(ctx context.Context, name string) (*Packument, error) {
	var p Packument
	err := c.cached(ctx, "packument", cache.Key("packument", name), &p, func() error {
		var fresh Packument
		if err := c.getJSON(ctx, c.packumentURL(name), &fresh); err != nil {
			return err
		}
		p = fresh
		return nil
	})
	if err != nil {
		if pkgerr.Is(err, pkgerr.ErrCodeNotFound) {
			return nil, pkgerr.Wrap(pkgerr.ErrCodeNotFound, err, "package %s", name)
		}
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	return &p, nil
}

// LatestTag returns the version currently tagged "latest" for name.
func (c *Client) LatestTag(ctx context.Context, name string) (string, error) {
	p, err := c.Packument(ctx, name)
	if err != nil {
		return "", err
	}
	latest := p.DistTags["latest"]
	if latest == "" {
		return "", pkgerr.New(pkgerr.ErrCodeMalformedResponse, "package %s has no latest tag", name)
	}
	return latest, nil
}

// VersionMetadata fetches metadata for exactly name@version, including its
// dependency declarations.
func (c *Client) VersionMetadata(ctx context.Context, name, version string) (*Metadata, error) {
	var m Metadata
	err := c.cached(ctx, "metadata", cache.Key("metadata", name, version), &m, func() error {
		var fresh Metadata
		if err := c.getJSON(ctx, c.versionURL(name, version), &fresh); err != nil {
			return err
		}
		if fresh.Version == "" {
			return pkgerr.New(pkgerr.ErrCodeMalformedResponse, "metadata for %s@%s has no version", name, version)
		}
		m = fresh
		return nil
	})
	if err != nil {
		if pkgerr.Is(err, pkgerr.ErrCodeNotFound) {
			return nil, pkgerr.Wrap(pkgerr.ErrCodeNotFound, err, "package %s@%s", name, version)
		}
		return nil, fmt.Errorf("fetch %s@%s: %w", name, version, err)
	}
	if m.Name == "" {
		m.Name = name
	}
	c.rememberTarball(name, version, m.Dist.Tarball)
	return &m, nil
}

// CompatibleVersion returns the most recently published version of name
// with the same major version as hint, or [VersionNotFound].
//
// Range prefixes on hint (^, ~, >=) are ignored. Publish times come from
// the packument's "time" map; versions without a timestamp are ordered by
// semver precedence instead.
func (c *Client) CompatibleVersion(ctx context.Context, name, hint string) (string, error) {
	major, ok := majorOf(hint)
	if !ok {
		return VersionNotFound, pkgerr.New(pkgerr.ErrCodeInvalidVersion, "cannot read major version from %q", hint)
	}

	p, err := c.Packument(ctx, name)
	if err != nil {
		return VersionNotFound, err
	}

	best := VersionNotFound
	var bestVer *semver.Version
	for v := range p.Versions {
		sv, err := semver.NewVersion(v)
		if err != nil || sv.Major() != major {
			continue
		}
		if bestVer == nil || newer(p, v, sv, best, bestVer) {
			best, bestVer = v, sv
		}
	}
	return best, nil
}

// newer reports whether candidate v was published after the current best.
func newer(p *Packument, v string, sv *semver.Version, best string, bestVer *semver.Version) bool {
	t, okV := p.Time[v]
	bt, okB := p.Time[best]
	if okV && okB && !t.Equal(bt) {
		return t.After(bt)
	}
	return sv.GreaterThan(bestVer)
}

func majorOf(hint string) (uint64, bool) {
	hint = strings.TrimLeft(strings.TrimSpace(hint), "^~=<>v ")
	if sv, err := semver.NewVersion(hint); err == nil {
		return sv.Major(), true
	}
	var major uint64
	if _, err := fmt.Sscanf(hint, "%d", &major); err != nil {
		return 0, false
	}
	return major, true
}
