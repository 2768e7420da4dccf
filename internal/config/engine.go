package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EngineConfig represents tuning parameters for the telemetry workbench
// engine. Fields omitted from the JSON file retain their default values,
// so partial configs are safe.
type EngineConfig struct {
	// Scheduler params
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "1s"

	// Stream params
	LiveBufferCap *int    `json:"live_buffer_cap,omitempty"`
	HTTPTimeout   *string `json:"http_timeout,omitempty"` // duration string like "10s"

	// History params
	HistoryPageSize  *int `json:"history_page_size,omitempty"`
	HistoryMaxPoints *int `json:"history_max_points,omitempty"`

	// Local persistence
	StatePath   *string `json:"state_path,omitempty"`
	ArchivePath *string `json:"archive_path,omitempty"`
}

// EmptyEngineConfig returns an EngineConfig with all fields set to nil.
func EmptyEngineConfig() *EngineConfig {
	return &EngineConfig{}
}

// LoadEngineConfig loads an EngineConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEngineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *EngineConfig) Validate() error {
	if c.TickInterval != nil && *c.TickInterval != "" {
		if _, err := time.ParseDuration(*c.TickInterval); err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
	}
	if c.HTTPTimeout != nil && *c.HTTPTimeout != "" {
		if _, err := time.ParseDuration(*c.HTTPTimeout); err != nil {
			return fmt.Errorf("invalid http_timeout '%s': %w", *c.HTTPTimeout, err)
		}
	}
	if c.LiveBufferCap != nil && *c.LiveBufferCap < 1 {
		return fmt.Errorf("live_buffer_cap must be positive, got %d", *c.LiveBufferCap)
	}
	if c.HistoryPageSize != nil && *c.HistoryPageSize < 1 {
		return fmt.Errorf("history_page_size must be positive, got %d", *c.HistoryPageSize)
	}
	if c.HistoryMaxPoints != nil && *c.HistoryMaxPoints < 1 {
		return fmt.Errorf("history_max_points must be positive, got %d", *c.HistoryMaxPoints)
	}
	return nil
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *EngineConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetHTTPTimeout parses and returns the HTTPTimeout as a time.Duration.
func (c *EngineConfig) GetHTTPTimeout() time.Duration {
	if c.HTTPTimeout == nil || *c.HTTPTimeout == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.HTTPTimeout)
	if err != nil {
		return 10 * time.Second // default on parse error
	}
	return d
}

// GetLiveBufferCap returns the live_buffer_cap value or the default.
func (c *EngineConfig) GetLiveBufferCap() int {
	if c.LiveBufferCap == nil {
		return 200
	}
	return *c.LiveBufferCap
}

// GetHistoryPageSize returns the history_page_size value or the default.
func (c *EngineConfig) GetHistoryPageSize() int {
	if c.HistoryPageSize == nil {
		return 2000
	}
	return *c.HistoryPageSize
}

// GetHistoryMaxPoints returns the history_max_points value or the default.
func (c *EngineConfig) GetHistoryMaxPoints() int {
	if c.HistoryMaxPoints == nil {
		return 20000
	}
	return *c.HistoryMaxPoints
}

// GetStatePath returns the state_path value or the default.
func (c *EngineConfig) GetStatePath() string {
	if c.StatePath == nil || *c.StatePath == "" {
		return "sensors.json"
	}
	return *c.StatePath
}

// GetArchivePath returns the archive_path value or the default.
func (c *EngineConfig) GetArchivePath() string {
	if c.ArchivePath == nil || *c.ArchivePath == "" {
		return "telemetry_archive.db"
	}
	return *c.ArchivePath
}
