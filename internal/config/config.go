package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	WorkspaceRoot string `yaml:"workspace_root"`
}

// NewConfig loads configuration with the following priority:
// Environment variables > Config file (required)
func NewConfig() (*Config, error) {
	config := &Config{}
	if err := loadConfigFile(config); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found. Please run 'radioscribe config init' to create it")
		}
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Apply environment variables (can override config file)
	if envRoot := os.Getenv("RADIOSCRIBE_WORKSPACE"); envRoot != "" {
		config.WorkspaceRoot = envRoot
	}

	if config.WorkspaceRoot == "" {
		return nil, fmt.Errorf("workspace_root is empty in config file")
	}
	return config, nil
}

// InitConfig creates a new configuration file with the given workspace root
func InitConfig(workspaceRoot string) error {
	configDir, err := getConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath, err := getConfigFilePath()
	if err != nil {
		return err
	}

	// Check if config file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if workspaceRoot == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		workspaceRoot = filepath.Join(homeDir, "radioscribe")
	}

	yamlContent := fmt.Sprintf(`# radioscribe configuration file
# workspace_root is the directory holding the recording session trees
# (radio_recordings/ and recordings/). Provider credentials live in
# <workspace_root>/radio_recordings/.env

workspace_root: "%s"
`, workspaceRoot)

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the configuration file
func GetConfigPath() (string, error) {
	return getConfigFilePath()
}

// getConfigDir returns the configuration directory path (~/.radioscribe)
func getConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".radioscribe"), nil
}

// getConfigFilePath returns the full path to the config file
func getConfigFilePath() (string, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// loadConfigFile loads configuration from ~/.radioscribe/config.yaml
func loadConfigFile(config *Config) error {
	configPath, err := getConfigFilePath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}
