package install

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackpm/pkg/cache"
	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
)

var cacheFast = cache.Backoff{Attempts: 3, Delay: time.Millisecond}

// failingFetcher counts calls and fails every fetch.
type failingFetcher struct {
	calls   int
	err     error
	onFetch func()
}

func (f *failingFetcher) FetchAndExtract(ctx context.Context, name, version, dest string) (string, error) {
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.err != nil {
		return "", f.err
	}
	return "", pkgerr.New(pkgerr.ErrCodeNetwork, "fetch %s@%s", name, version)
}

func newTestLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{Level: log.DebugLevel, Formatter: log.LogfmtFormatter})
}
