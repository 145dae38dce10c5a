package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveLoad(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "work"), logger.Discard())
	require.NoError(t, err)

	assert.False(t, s.Exists(ArtifactPrimary))
	require.NoError(t, s.Save(ArtifactPrimary, sample{Name: "a", Count: 3}))
	assert.True(t, s.Exists(ArtifactPrimary))

	var got sample
	require.NoError(t, s.Load("feature_engineering", ArtifactPrimary, &got))
	assert.Equal(t, sample{Name: "a", Count: 3}, got)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadMissing(t *testing.T) {
	s, err := New(t.TempDir(), logger.Discard())
	require.NoError(t, err)

	var got sample
	err = s.Load("primary", ArtifactIntermediate, &got)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeArtifactMissing))
	assert.Equal(t, 5, errors.GetExitCode(err))
}

func TestLoadCorrupt(t *testing.T) {
	s, err := New(t.TempDir(), logger.Discard())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(ArtifactRaw), []byte("{not json"), 0o644))

	var got sample
	err = s.Load("intermediate", ArtifactRaw, &got)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeFileRead))
}

func TestNewRejectsEmptyDir(t *testing.T) {
	_, err := New("  ", logger.Discard())
	require.Error(t, err)
	assert.Equal(t, 4, errors.GetExitCode(err))
}
