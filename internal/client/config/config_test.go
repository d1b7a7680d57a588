package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openmined/localsync/internal/client/filesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_NormalizesAndDefaults(t *testing.T) {
	tmp := t.TempDir()
	cfg := &Config{
		LocalDir:       tmp,
		CasePreserving: " TRUE ",
		Path:           filepath.Join(tmp, "config.json"),
	}

	require.NoError(t, cfg.Validate())
	assert.True(t, filepath.IsAbs(cfg.LocalDir))
	assert.True(t, filepath.IsAbs(cfg.Path))
	assert.Equal(t, filepath.Join(cfg.LocalDir, ".localsync", "journal.db"), cfg.JournalPath)
	assert.Equal(t, DefaultWorkers, cfg.Workers)
	assert.Equal(t, CaseTrue, cfg.CasePreserving)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestConfig_Validate_ErrorsOnInvalidInputs(t *testing.T) {
	tmp := t.TempDir()

	t.Run("missing local dir", func(t *testing.T) {
		cfg := &Config{}
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad case mode", func(t *testing.T) {
		cfg := &Config{LocalDir: tmp, CasePreserving: "sometimes"}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidCaseMode)
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := &Config{LocalDir: tmp, LogLevel: "loud"}
		assert.Error(t, cfg.Validate())
	})
}

func TestConfig_FilesystemOptions(t *testing.T) {
	cfg := &Config{CasePreserving: CaseTrue}
	assert.True(t, filesystem.New(cfg.FilesystemOptions()...).CasePreserving())

	cfg.CasePreserving = CaseFalse
	assert.False(t, filesystem.New(cfg.FilesystemOptions()...).CasePreserving())

	cfg.CasePreserving = CaseAuto
	assert.Equal(t, filesystem.DefaultCasePreserving(), filesystem.New(cfg.FilesystemOptions()...).CasePreserving())
}

func TestConfig_SaveAndLoad_Roundtrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "nested", "config.json")

	cfg := &Config{
		LocalDir:       filepath.Join(tmp, "tree"),
		JournalPath:    filepath.Join(tmp, "state", "journal.db"),
		Workers:        8,
		CasePreserving: CaseFalse,
		LogLevel:       "debug",
		Path:           path,
	}

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Save())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.LocalDir, loaded.LocalDir)
	assert.Equal(t, cfg.JournalPath, loaded.JournalPath)
	assert.Equal(t, 8, loaded.Workers)
	assert.Equal(t, CaseFalse, loaded.CasePreserving)
	assert.Equal(t, "debug", loaded.LogLevel)
	assert.Equal(t, path, loaded.Path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Path")
}

func TestLoadFromFile_Errors(t *testing.T) {
	tmp := t.TempDir()

	_, err := LoadFromFile(filepath.Join(tmp, "missing.json"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(tmp, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)
}
