package registry

import (
	"archive/tar"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/stackpm/pkg/cache"
	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
)

// FetchAndExtract downloads name@version and unpacks it to dest-{version}.
// The archive comes from the dist.tarball of previously fetched metadata,
// or from the {name}/-/{basename}-{version}.tgz pattern.
//
// The archive is downloaded to a temporary file next to dest and unpacked
// into a staging directory beside it, so the final move is a same-device
// rename. If the archive has a single top-level directory (npm uses
// "package/") its contents become the package directory. An existing
// dest-{version} is replaced.
//
// The temporary archive and staging directory are removed on every exit
// path. Returns the final directory.
func (c *Client) FetchAndExtract(ctx context.Context, name, version, dest string) (string, error) {
	final := dest + "-" + version
	parent := filepath.Dir(final)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "create %s", parent)
	}

	archive, err := c.download(ctx, name, version, parent)
	if err != nil {
		return "", err
	}
	defer os.Remove(archive)

	staging, err := os.MkdirTemp(parent, ".stackpm-extract-*")
	if err != nil {
		return "", pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "create staging directory")
	}
	defer os.RemoveAll(staging)

	if err := extractTarGz(archive, staging); err != nil {
		return "", pkgerr.Wrap(pkgerr.GetCode(err), err, "extract %s@%s", name, version)
	}

	root, err := archiveRoot(staging)
	if err != nil {
		return "", pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "read staging directory")
	}
	if err := os.RemoveAll(final); err != nil {
		return "", pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "remove previous %s", final)
	}
	if err := os.Rename(root, final); err != nil {
		return "", pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "move %s@%s into place", name, version)
	}

	c.logger.Debug("extracted", "package", name, "version", version, "dir", final)
	return final, nil
}

// download streams the tarball into a temp file in dir and returns its
// path. On failure no file is left behind.
func (c *Client) download(ctx context.Context, name, version, dir string) (path string, err error) {
	tmp, err := os.CreateTemp(dir, ".stackpm-*.tgz")
	if err != nil {
		return "", pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "create temp archive")
	}
	defer func() {
		if cerr := tmp.Close(); cerr != nil && err == nil {
			err = pkgerr.Wrap(pkgerr.ErrCodeFilesystem, cerr, "close temp archive")
		}
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	url := c.ArchiveURL(name, version)
	err = c.backoff.Retry(ctx, func() error {
		if err := tmp.Truncate(0); err != nil {
			return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "truncate temp archive")
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "rewind temp archive")
		}
		body, err := c.get(ctx, url)
		if err != nil {
			return err
		}
		defer body.Close()
		if _, err := io.Copy(tmp, body); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return cache.Retryable(pkgerr.Wrap(pkgerr.ErrCodeNetwork, err, "download %s", url))
		}
		return nil
	})
	if err != nil {
		if pkgerr.Is(err, pkgerr.ErrCodeNotFound) {
			return "", pkgerr.Wrap(pkgerr.ErrCodeNotFound, err, "archive for %s@%s", name, version)
		}
		return "", err
	}
	return tmp.Name(), nil
}

// extractTarGz unpacks a gzip-compressed tarball into dst. Only regular
// files and directories are materialized; links and devices are skipped.
func extractTarGz(archive, dst string) error {
	f, err := os.Open(archive)
	if err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "open archive")
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeExtraction, err, "decompress")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			// Reading gzip to its end verifies the CRC32 and size trailer.
			if _, err := io.Copy(io.Discard, gz); err != nil {
				return pkgerr.Wrap(pkgerr.ErrCodeExtraction, err, "decompress")
			}
			return nil
		}
		if err != nil {
			return pkgerr.Wrap(pkgerr.ErrCodeExtraction, err, "read tar entry")
		}
		if err := pkgerr.ValidateArchivePath(hdr.Name); err != nil {
			return pkgerr.Wrap(pkgerr.ErrCodeExtraction, err, "unsafe archive")
		}

		target := filepath.Join(dst, filepath.FromSlash(hdr.Name))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "create %s", hdr.Name)
			}
		case tar.TypeReg:
			if err := writeEntry(tr, hdr, target); err != nil {
				return err
			}
		}
	}
}

func writeEntry(r io.Reader, hdr *tar.Header, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "create parent of %s", hdr.Name)
	}
	// Some published tarballs carry mode 0000; keep files readable.
	mode := hdr.FileInfo().Mode().Perm() | 0o644
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "create %s", hdr.Name)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return pkgerr.Wrap(pkgerr.ErrCodeExtraction, err, "unpack %s", hdr.Name)
	}
	if err := out.Close(); err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "write %s", hdr.Name)
	}
	if !hdr.ModTime.IsZero() {
		_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)
	}
	return nil
}

// archiveRoot returns the single top-level directory of an unpacked
// archive, or dir itself when the archive is flat.
func archiveRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
