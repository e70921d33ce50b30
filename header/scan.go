package header

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/logger"
	"github.com/teranos/plugcfg/plugin"
)

// ScanResult holds what a directory scan found. A file that failed to parse
// contributes an error but never stops the scan.
type ScanResult struct {
	Descriptors []*plugin.Descriptor
	Errors      []error
	// Skipped lists files without any header; they are not errors.
	Skipped []string
}

// Scan reads every regular file below dirs, in lexical order. When
// extensions is non-empty only files with one of those extensions (".py",
// "go") are read. Missing directories are reported as errors.
func (r *Reader) Scan(extensions []string, dirs ...string) ScanResult {
	var res ScanResult
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[strings.ToLower(ext)] = true
	}

	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				res.Errors = append(res.Errors, errors.Wrapf(err, "failed to scan %s", path))
				if entry != nil && entry.IsDir() && path != dir {
					return filepath.SkipDir
				}
				return nil
			}
			if entry.IsDir() {
				if path != dir && strings.HasPrefix(entry.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !entry.Type().IsRegular() {
				return nil
			}
			if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			d, err := r.Read(path)
			switch {
			case err == nil:
				res.Descriptors = append(res.Descriptors, d)
			case errors.Is(err, errors.ErrMetadataMissing):
				res.Skipped = append(res.Skipped, path)
				r.logger.Debugw("No plugin header", logger.FieldFile, path)
			default:
				res.Errors = append(res.Errors, err)
				r.logger.Warnw("Failed to read plugin header", logger.FieldFile, path, logger.FieldError, err)
			}
			return nil
		})
		if err != nil {
			res.Errors = append(res.Errors, errors.Wrapf(err, "failed to scan %s", dir))
		}
	}

	r.logger.Infow("Scanned plugin directories",
		logger.FieldCount, len(res.Descriptors),
		"errors", len(res.Errors),
		"skipped", len(res.Skipped))
	return res
}

// Register adds scanned descriptors to reg in scan order. When enabled is
// non-empty only those ids are added. Failures, such as a duplicate id, are
// returned per descriptor and do not stop the remaining additions.
func Register(reg *plugin.Registry, descriptors []*plugin.Descriptor, enabled []string) []error {
	allow := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		allow[id] = true
	}
	var errs []error
	for _, d := range descriptors {
		if len(allow) > 0 && !allow[d.ID] {
			continue
		}
		if err := reg.Add(d); err != nil {
			errs = append(errs, errors.Wrapf(err, "%s", d.Source))
		}
	}
	return errs
}

// exists reports whether path is present; used to ignore configured plugin
// directories that were never created.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ExistingDirs filters dirs down to those present on disk.
func ExistingDirs(dirs []string) []string {
	var out []string
	for _, d := range dirs {
		if exists(d) {
			out = append(out, d)
		}
	}
	return out
}
