// Package localdiscovery implements core.Discovery over the local
// filesystem, grounded on merge/service/merge_service_fs.go's
// os.ReadDir-plus-os.Stat walk of a data directory.
package localdiscovery

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/ayudhien/erddap/core"
)

// Local scans Dir (optionally recursively) for files matching
// NameRegex, matching spec §3's fileNameRegex option.
type Local struct {
	Dir       string
	NameRegex string
	Recursive bool
}

func (l *Local) Scan(ctx context.Context) ([]core.DiscoveryResult, error) {
	re, err := regexp.Compile(l.NameRegex)
	if err != nil {
		return nil, fmt.Errorf("fileNameRegex %q: %w", l.NameRegex, err)
	}

	var out []core.DiscoveryResult
	walk := func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read dir %s: %w", dir, err)
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if entry.IsDir() {
				continue
			}
			if !re.MatchString(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", entry.Name(), err)
			}
			out = append(out, core.DiscoveryResult{
				Dir:          dir,
				Name:         entry.Name(),
				LastModified: float64(info.ModTime().UnixMilli()),
			})
		}
		return nil
	}

	if !l.Recursive {
		if err := walk(l.Dir); err != nil {
			return nil, err
		}
		return out, nil
	}

	err = filepath.WalkDir(l.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return walk(path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
