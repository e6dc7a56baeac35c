package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/govgate"
	projectConfigDir = ".govgate"
	configFileName   = "config.yaml"
)

// LoadConfig loads the gateway configuration by layering default, user, and
// project settings. User and project files are both optional.
func LoadConfig() (GatewayConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return GatewayConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return GatewayConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	if err := validateConfig(config); err != nil {
		return GatewayConfig{}, err
	}

	return config, nil
}

// LoadConfigFromPath loads configuration from a single directory instead of
// the layered user/project chain.
func LoadConfigFromPath(configDir string) (GatewayConfig, error) {
	config := GetDefaultConfig()

	path := filepath.Join(configDir, configFileName)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		fileConfig, err := loadConfigFromFile(path)
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
		config = mergeConfigs(config, fileConfig)
	}

	if err := validateConfig(config); err != nil {
		return GatewayConfig{}, err
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a GatewayConfig from a YAML file.
func loadConfigFromFile(filePath string) (GatewayConfig, error) {
	var config GatewayConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return GatewayConfig{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return GatewayConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config.
func mergeConfigs(base, overlay GatewayConfig) GatewayConfig {
	merged := base

	if overlay.GlobalSettings.LogLevel != "" {
		merged.GlobalSettings.LogLevel = overlay.GlobalSettings.LogLevel
	}
	if overlay.GlobalSettings.LogFile != "" {
		merged.GlobalSettings.LogFile = overlay.GlobalSettings.LogFile
	}

	if overlay.Server.Transport != "" {
		merged.Server.Transport = overlay.Server.Transport
	}
	if overlay.Server.Host != "" {
		merged.Server.Host = overlay.Server.Host
	}
	if overlay.Server.Port != 0 {
		merged.Server.Port = overlay.Server.Port
	}

	if overlay.Telemetry.JournalPath != "" {
		merged.Telemetry.JournalPath = overlay.Telemetry.JournalPath
	}
	if overlay.Telemetry.StorePath != "" {
		merged.Telemetry.StorePath = overlay.Telemetry.StorePath
	}

	if overlay.Dashboard.Listen != "" {
		merged.Dashboard.Listen = overlay.Dashboard.Listen
	}

	// Environments merge by name, overlay wins on conflicts but original
	// declaration order is preserved so the default selection is stable.
	if len(overlay.Environments) > 0 {
		index := make(map[string]int, len(merged.Environments))
		for i, env := range merged.Environments {
			index[env.Name] = i
		}
		for _, env := range overlay.Environments {
			if i, exists := index[env.Name]; exists {
				merged.Environments[i] = env
			} else {
				merged.Environments = append(merged.Environments, env)
			}
		}
	}

	if len(overlay.Groups.Enabled) > 0 {
		merged.Groups.Enabled = overlay.Groups.Enabled
	}

	return merged
}

// validateConfig rejects configurations the gateway cannot start with.
func validateConfig(config GatewayConfig) error {
	switch config.Server.Transport {
	case TransportStdio, TransportSSE:
	default:
		return fmt.Errorf("unknown server transport %q", config.Server.Transport)
	}

	seen := make(map[string]bool, len(config.Environments))
	defaults := 0
	for _, env := range config.Environments {
		if env.Name == "" {
			return fmt.Errorf("environment with empty name")
		}
		if seen[env.Name] {
			return fmt.Errorf("duplicate environment %q", env.Name)
		}
		seen[env.Name] = true
		if env.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("multiple environments marked as default")
	}

	return nil
}

// DefaultEnvironment returns the environment selected at startup: the one
// marked default, otherwise the first declared one.
func (c GatewayConfig) DefaultEnvironment() (EnvironmentConfig, bool) {
	for _, env := range c.Environments {
		if env.Default {
			return env, true
		}
	}
	if len(c.Environments) > 0 {
		return c.Environments[0], true
	}
	return EnvironmentConfig{}, false
}
