// Package store persists stage artifacts between pipeline invocations. Each
// artifact is a JSON document named after the stage that produced it.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// Artifact names
const (
	ArtifactRaw          = "raw"
	ArtifactIntermediate = "intermediate"
	ArtifactPrimary      = "primary"
	ArtifactFeature      = "feature"
)

// Store reads and writes artifacts under a work directory
type Store struct {
	dir    string
	logger logger.Logger
}

// New creates the work directory if needed
func New(dir string, log logger.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "work_dir", dir, fmt.Errorf("work directory cannot be empty"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, dir, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Store{dir: dir, logger: log.WithComponent("store")}, nil
}

// Dir returns the work directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file backing an artifact
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Exists reports whether an artifact has been written
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Save writes v as the named artifact. The previous artifact is replaced
// only once the new one is fully written.
func (s *Store) Save(name string, v interface{}) error {
	path := s.Path(name)
	return logger.TimedOperation("save artifact "+name, s.logger.WithField("path", path), func() error {
		tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
		if err != nil {
			return errors.FileError(errors.CodeFileWrite, path, err)
		}
		defer os.Remove(tmp.Name())

		enc := json.NewEncoder(tmp)
		if err := enc.Encode(v); err != nil {
			tmp.Close()
			return errors.InternalError(errors.CodeUnexpectedError, "encode artifact "+name, err)
		}
		if err := tmp.Close(); err != nil {
			return errors.FileError(errors.CodeFileWrite, path, err)
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			return errors.FileError(errors.CodeFileWrite, path, err)
		}
		return nil
	})
}

// Load reads the named artifact into v. A missing artifact is reported as
// ArtifactMissing for the stage that needed it.
func (s *Store) Load(stage, name string, v interface{}) error {
	path := s.Path(name)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.PipelineStageError(errors.CodeArtifactMissing, stage, err).
				WithContext("artifact", name).
				WithContext("path", path)
		}
		return errors.FileError(errors.CodeFileRead, path, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		return errors.FileError(errors.CodeFileRead, path, err).
			WithSuggestion("the artifact is corrupt; rerun the stage that produces " + name)
	}

	s.logger.WithFields(logger.Fields{
		"artifact": name,
		"stage":    stage,
	}).Debug("Artifact loaded")
	return nil
}
