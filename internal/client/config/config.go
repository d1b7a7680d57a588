package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/openmined/localsync/internal/client/filesystem"
	"github.com/openmined/localsync/internal/utils"
)

const (
	CaseAuto  = "auto"
	CaseTrue  = "true"
	CaseFalse = "false"

	DefaultWorkers  = 4
	DefaultLogLevel = "info"
	metadataDirName = ".localsync"
	journalFileName = "journal.db"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".localsync", "config.json")
	DefaultLocalDir   = filepath.Join(home, "LocalSync")
)

var ErrInvalidCaseMode = errors.New("case_preserving must be auto, true or false")

type Config struct {
	LocalDir       string `json:"local_dir"`
	JournalPath    string `json:"journal_path,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	CasePreserving string `json:"case_preserving,omitempty"`
	LogLevel       string `json:"log_level,omitempty"`
	Path           string `json:"-"`
}

// Validate resolves every path to an absolute one and fills in defaults
func (c *Config) Validate() error {
	if c.LocalDir == "" {
		return errors.New("local_dir is required")
	}

	localDir, err := utils.ResolvePath(c.LocalDir)
	if err != nil {
		return fmt.Errorf("local_dir: %w", err)
	}
	c.LocalDir = localDir

	if c.JournalPath == "" {
		c.JournalPath = filepath.Join(c.LocalDir, metadataDirName, journalFileName)
	}
	if c.JournalPath, err = utils.ResolvePath(c.JournalPath); err != nil {
		return fmt.Errorf("journal_path: %w", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}

	c.CasePreserving = strings.ToLower(strings.TrimSpace(c.CasePreserving))
	switch c.CasePreserving {
	case "":
		c.CasePreserving = CaseAuto
	case CaseAuto, CaseTrue, CaseFalse:
	default:
		return fmt.Errorf("%w, got %q", ErrInvalidCaseMode, c.CasePreserving)
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := utils.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// FilesystemOptions maps the case mode onto the adapter; auto keeps the platform default
func (c *Config) FilesystemOptions() []filesystem.Option {
	switch c.CasePreserving {
	case CaseTrue:
		return []filesystem.Option{filesystem.WithCasePreserving(true)}
	case CaseFalse:
		return []filesystem.Option{filesystem.WithCasePreserving(false)}
	}
	return nil
}

func (c *Config) Save() error {
	if c.Path == "" {
		return errors.New("config path not set")
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0o644)
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
