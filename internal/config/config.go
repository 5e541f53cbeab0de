package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Direction controls which way a sync pair moves data.
type Direction string

const (
	DirectionPull          Direction = "notion-to-obsidian"
	DirectionPush          Direction = "obsidian-to-notion"
	DirectionBidirectional Direction = "bidirectional"
)

// Mode controls how a sync pair is triggered.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeAuto      Mode = "auto"
	ModeScheduled Mode = "scheduled"
)

// Conflict resolution policies for bidirectional pairs.
const (
	PolicyNotionWins   = "notion-wins"
	PolicyObsidianWins = "obsidian-wins"
	PolicyNewerWins    = "newer-wins"
	PolicyManual       = "manual"
)

// MappingType is the declared semantic type of a field mapping.
type MappingType string

const (
	MappingText     MappingType = "text"
	MappingList     MappingType = "list"
	MappingNumber   MappingType = "number"
	MappingCheckbox MappingType = "checkbox"
	MappingDate     MappingType = "date"
	MappingDateTime MappingType = "date-time"
)

// FieldMapping links one Notion property to one front-matter key.
type FieldMapping struct {
	NotionProperty   string      `mapstructure:"notion_property" yaml:"notion_property" validate:"required"`
	ObsidianProperty string      `mapstructure:"obsidian_property" yaml:"obsidian_property" validate:"required"`
	Type             MappingType `mapstructure:"type" yaml:"type" validate:"required,oneof=text list number checkbox date date-time"`
}

// SyncConfig identifies one Notion database <-> vault folder pair.
// The engine receives it by value and returns an updated copy; only the
// caller writes it back to disk.
type SyncConfig struct {
	ID             string         `mapstructure:"id" yaml:"id" validate:"required"`
	Name           string         `mapstructure:"name" yaml:"name"`
	FolderPath     string         `mapstructure:"folder_path" yaml:"folder_path"`
	DatabaseID     string         `mapstructure:"database_id" yaml:"database_id"`
	Direction      Direction      `mapstructure:"direction" yaml:"direction" validate:"required,oneof=notion-to-obsidian obsidian-to-notion bidirectional"`
	Mode           Mode           `mapstructure:"mode" yaml:"mode" validate:"omitempty,oneof=manual auto scheduled"`
	Mappings       []FieldMapping `mapstructure:"mappings" yaml:"mappings,omitempty" validate:"dive"`
	LastSyncMillis int64          `mapstructure:"last_sync_millis" yaml:"last_sync_millis"`
	Enabled        bool           `mapstructure:"enabled" yaml:"enabled"`
}

// Settings holds all application configuration. Sync pair folder paths
// are relative to VaultPath.
type Settings struct {
	NotionToken     string       `mapstructure:"notion_token" yaml:"notion_token,omitempty"`
	VaultPath       string       `mapstructure:"vault_path" yaml:"vault_path" validate:"required"`
	SyncConfigs     []SyncConfig `mapstructure:"sync_configs" yaml:"sync_configs" validate:"dive"`
	ConflictPolicy  string       `mapstructure:"conflict_policy" yaml:"conflict_policy" validate:"required,oneof=notion-wins obsidian-wins newer-wins manual"`
	AutoSync        bool         `mapstructure:"auto_sync" yaml:"auto_sync"`
	AutoSyncMinutes int          `mapstructure:"auto_sync_minutes" yaml:"auto_sync_minutes" validate:"min=0"`
	IgnorePatterns  []string     `mapstructure:"ignore_patterns" yaml:"ignore_patterns,omitempty"`
	IncludePatterns []string     `mapstructure:"include_patterns" yaml:"include_patterns,omitempty"`
	RetryAttempts   int          `mapstructure:"retry_attempts" yaml:"retry_attempts" validate:"min=0"`
	RequestDelayMs  int          `mapstructure:"request_delay_ms" yaml:"request_delay_ms" validate:"min=0"`

	sourceFile string
}

// FindSyncConfig returns the pair with the given id or name, or nil.
func (s *Settings) FindSyncConfig(idOrName string) *SyncConfig {
	for i := range s.SyncConfigs {
		if s.SyncConfigs[i].ID == idOrName || s.SyncConfigs[i].Name == idOrName {
			return &s.SyncConfigs[i]
		}
	}
	return nil
}

// ReplaceSyncConfig stores an updated copy of a pair back into the
// settings, matching on id. Unknown ids are appended.
func (s *Settings) ReplaceSyncConfig(cfg SyncConfig) {
	for i := range s.SyncConfigs {
		if s.SyncConfigs[i].ID == cfg.ID {
			s.SyncConfigs[i] = cfg
			return
		}
	}
	s.SyncConfigs = append(s.SyncConfigs, cfg)
}

// SourceFile returns the path the settings were loaded from, or the
// default config path when loaded purely from environment.
func (s *Settings) SourceFile() string {
	if s.sourceFile != "" {
		return s.sourceFile
	}
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultSettings returns Settings with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		ConflictPolicy:  PolicyNewerWins,
		AutoSyncMinutes: 30,
		RetryAttempts:   3,
		RequestDelayMs:  350,
		IgnorePatterns: []string{
			".obsidian/**",
			".trash/**",
			".git/**",
			"**/.DS_Store",
		},
	}
}

// Load reads configuration from file and environment.
func Load(configPath string) (*Settings, error) {
	v := viper.New()

	defaults := DefaultSettings()
	v.SetDefault("conflict_policy", defaults.ConflictPolicy)
	v.SetDefault("auto_sync_minutes", defaults.AutoSyncMinutes)
	v.SetDefault("retry_attempts", defaults.RetryAttempts)
	v.SetDefault("request_delay_ms", defaults.RequestDelayMs)
	v.SetDefault("ignore_patterns", defaults.IgnorePatterns)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("OBSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// AutomaticEnv alone does not surface env-only keys through
	// Unmarshal; keys without a default need an explicit binding.
	v.BindEnv("notion_token")
	v.BindEnv("vault_path")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is okay if environment supplies the rest
	}

	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.sourceFile = v.ConfigFileUsed()

	cfg.NotionToken = os.ExpandEnv(cfg.NotionToken)
	cfg.VaultPath = expandPath(cfg.VaultPath)
	for i := range cfg.SyncConfigs {
		if cfg.SyncConfigs[i].Mode == "" {
			cfg.SyncConfigs[i].Mode = ModeManual
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings struct against its declared rules.
func Validate(cfg *Settings) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Save writes the settings back to the file they were loaded from,
// creating the config directory when needed.
func Save(cfg *Settings) error {
	path := cfg.SourceFile()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// getConfigDir returns the appropriate config directory for the OS.
func getConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "obsync-notion")
		}
		return filepath.Join(os.Getenv("USERPROFILE"), ".config", "obsync-notion")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "obsync-notion")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "obsync-notion")
	}
}

// GetStateDir returns the directory for storing state files.
func GetStateDir() (string, error) {
	dir := getConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// expandPath expands ~ and environment variables in a path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path)
}
