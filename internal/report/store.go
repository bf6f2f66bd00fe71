// Package report persists the migration report, the JSON document shared by
// the structure-creation and execution phases.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kurihiro0119/omeka-channel-migrator/internal/domain"
	apperrors "github.com/kurihiro0119/omeka-channel-migrator/internal/errors"
)

// Store is read-modify-write access to a report
type Store interface {
	// Load returns the stored report. A missing report is empty.
	Load(ctx context.Context) (domain.Report, error)

	// Save replaces the stored report as a whole
	Save(ctx context.Context, report domain.Report) error

	// Exists reports whether a report has been written
	Exists(ctx context.Context) (bool, error)

	// Path identifies the report location
	Path() string
}

// fileStore keeps the report as an indented JSON array on disk
type fileStore struct {
	path string
}

// NewFileStore creates a store backed by the JSON file at path
func NewFileStore(path string) Store {
	return &fileStore{path: path}
}

func (s *fileStore) Path() string { return s.path }

func (s *fileStore) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperrors.NewConfigError(fmt.Sprintf("cannot stat report %s", s.path), err)
}

// Load reads the report. A missing or zero-length file is an empty report;
// anything that is not a JSON array of outcomes is a configuration error.
func (s *fileStore) Load(ctx context.Context) (domain.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Report{}, nil
		}
		return nil, apperrors.NewConfigError(fmt.Sprintf("cannot read report %s", s.path), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.Report{}, nil
	}

	var r domain.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("malformed report %s", s.path), err)
	}
	if r == nil {
		r = domain.Report{}
	}
	for i := range r {
		if r[i].TasksCreated == nil {
			r[i].TasksCreated = []domain.TaskRecord{}
		}
	}
	return r, nil
}

// Save serializes the whole report to a temporary file next to the
// destination and renames it into place, so readers only ever see a
// complete document.
func (s *fileStore) Save(ctx context.Context, r domain.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil {
		r = domain.Report{}
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return apperrors.NewReportIOError("cannot encode report", err)
	}
	data = append(data, '\n')

	if err := WriteFileAtomic(s.path, data, 0o644); err != nil {
		return apperrors.NewReportIOError(fmt.Sprintf("cannot write report %s", s.path), err)
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file in the destination
// directory, syncs it and renames it over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

// LoadSelector reads an execute-only task selector file
func LoadSelector(path string) (domain.TaskSelector, error) {
	var sel domain.TaskSelector
	data, err := os.ReadFile(path)
	if err != nil {
		return sel, apperrors.NewConfigError(fmt.Sprintf("cannot read task selector %s", path), err)
	}
	if err := json.Unmarshal(data, &sel); err != nil {
		return sel, apperrors.NewConfigError(fmt.Sprintf("malformed task selector %s", path), err)
	}
	if len(sel.Tasks) == 0 {
		return sel, apperrors.NewConfigError(fmt.Sprintf("task selector %s names no tasks", path), nil)
	}
	return sel, nil
}
