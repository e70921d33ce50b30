package layer

import (
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/logger"
	"github.com/teranos/plugcfg/shape"
)

// backupCount is how many rotated copies (.back1 ... .back3) are kept.
const backupCount = 3

// File system permissions for the store, its backups and created directories.
const (
	DirPermissions  = 0750
	FilePermissions = 0644
)

// WriteMarker is told before the store writes its file, so a watcher can
// ignore the resulting change event.
type WriteMarker interface {
	MarkOwnWrite(path string)
}

// Store is the writable file layer behind "set" and "reset".
type Store struct {
	path   string
	format Format
	marker WriteMarker
	logger *zap.SugaredLogger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithWriteMarker registers a watcher to notify before writes.
func WithWriteMarker(m WriteMarker) StoreOption {
	return func(s *Store) { s.marker = m }
}

// WithStoreLogger sets the store's logger.
func WithStoreLogger(l *zap.SugaredLogger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a store for the file at path. The format follows the
// file extension.
func NewStore(path string, opts ...StoreOption) *Store {
	s := &Store{
		path:   path,
		format: FormatOf(path),
		logger: logger.ComponentLogger("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file the store manages.
func (s *Store) Path() string { return s.path }

// Document reads the stored file. A missing file yields an empty document.
func (s *Store) Document() (*shape.Map, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return shape.NewMap(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", s.path)
	}
	doc, err := ParseDocument(s.format, data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", s.path)
	}
	return doc, nil
}

// Layer loads the stored file as a file-origin layer. A missing file yields
// an empty layer.
func (s *Store) Layer(priority int) (*Layer, error) {
	doc, err := s.Document()
	if err != nil {
		return nil, err
	}
	l, err := FromDocument(OriginFile, priority, s.path, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", s.path)
	}
	return l, nil
}

// Set stores an encoded value at path, replacing any previous value.
func (s *Store) Set(path string, value any) error {
	plugin, option, ok := shape.SplitPath(path)
	if !ok {
		return errors.Newf("invalid option path %q", path)
	}
	doc, err := s.Document()
	if err != nil {
		return err
	}
	if err := checkVersion(doc); err != nil {
		return err
	}

	options, _ := doc.Get(plugin)
	table, ok := options.(*shape.Map)
	if !ok {
		table = shape.NewMap()
		doc.Set(plugin, table)
	}
	table.Set(option, shape.Clone(value))

	if err := s.save(doc); err != nil {
		return err
	}
	s.logger.Infow("Stored option",
		logger.FieldPath, path,
		logger.FieldFile, s.path)
	return nil
}

// Reset removes path from the file so the next resolve falls back to lower
// layers or the declared default. It reports whether anything was removed;
// nothing is written otherwise.
func (s *Store) Reset(path string) (bool, error) {
	plugin, option, ok := shape.SplitPath(path)
	if !ok {
		return false, errors.Newf("invalid option path %q", path)
	}
	doc, err := s.Document()
	if err != nil {
		return false, err
	}
	options, _ := doc.Get(plugin)
	table, ok := options.(*shape.Map)
	if !ok {
		return false, nil
	}
	if _, ok := table.Get(option); !ok {
		return false, nil
	}
	if err := checkVersion(doc); err != nil {
		return false, err
	}

	table.Delete(option)
	if table.Len() == 0 {
		doc.Delete(plugin)
	}
	if err := s.save(doc); err != nil {
		return false, err
	}
	s.logger.Infow("Reset option",
		logger.FieldPath, path,
		logger.FieldFile, s.path)
	return true, nil
}

func checkVersion(doc *shape.Map) error {
	_, err := DocumentEntries(doc)
	return err
}

// save writes doc with schema_version first, after rotating backups.
func (s *Store) save(doc *shape.Map) error {
	out := shape.NewMap()
	out.Set(SchemaVersionKey, int64(SchemaVersion))
	for _, p := range doc.Pairs() {
		if p.Key != SchemaVersionKey {
			out.Set(p.Key, p.Value)
		}
	}

	data, err := MarshalDocument(s.format, out)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), DirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", s.path)
	}
	if err := s.backup(); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	if s.marker != nil {
		s.marker.MarkOwnWrite(s.path)
	}
	if err := os.WriteFile(s.path, data, FilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", s.path)
	}
	return nil
}

// backup rotates .back1 -> .back2 -> .back3 and copies the current file to
// .back1.
func (s *Store) backup() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	oldest := BackupPath(s.path, backupCount)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		s.logger.Warnw("Failed to delete old backup", logger.FieldFile, oldest, logger.FieldError, err)
	}
	for i := backupCount - 1; i >= 1; i-- {
		from, to := BackupPath(s.path, i), BackupPath(s.path, i+1)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return errors.Wrapf(err, "failed to rotate %s", filepath.Base(from))
			}
		}
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(err, "failed to read file for backup")
	}
	if err := os.WriteFile(BackupPath(s.path, 1), content, FilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

// BackupPath names the n-th rotated backup of path.
func BackupPath(path string, n int) string {
	return path + ".back" + strconv.Itoa(n)
}
