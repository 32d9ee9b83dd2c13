package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/storyline/errors"
)

// EnvPrefix prefixes every environment override, e.g. STORYLINE_LINTER_ENABLED.
const EnvPrefix = "STORYLINE"

// SystemConfigPath is the lowest-precedence config file.
var SystemConfigPath = "/etc/storyline/config.toml"

var (
	mu            sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper
	explicitFile  string
)

// Load reads the storyline configuration using Viper
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v, err := initViper()
	if err != nil {
		return nil, err
	}
	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for flag overrides and `config show`.
func GetViper() (*viper.Viper, error) {
	mu.Lock()
	defer mu.Unlock()
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// SetConfigFile names a file merged above the user config, as given by
// --config. It must exist. Cached configuration is dropped.
func SetConfigFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	explicitFile = path
	globalConfig = nil
	viperInstance = nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
	explicitFile = ""
}

// UserConfigPath returns ~/.storyline/config.toml, or "" without a home directory.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".storyline", "config.toml")
}

// initViper initializes Viper with configuration sources and defaults.
// Callers hold mu.
func initViper() (*viper.Viper, error) {
	if viperInstance != nil {
		return viperInstance, nil
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := mergeConfigFiles(v); err != nil {
		return nil, err
	}

	viperInstance = v
	return v, nil
}

// mergeConfigFiles merges configuration files in precedence order
// (lowest to highest): system < user < explicit. Environment variables
// still win over every file.
func mergeConfigFiles(v *viper.Viper) error {
	configPaths := []string{SystemConfigPath}
	if user := UserConfigPath(); user != "" {
		configPaths = append(configPaths, user)
	}

	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}
		if err := mergeFile(v, configPath); err != nil {
			return err
		}
	}

	if explicitFile != "" {
		if _, err := os.Stat(explicitFile); err != nil {
			return errors.Wrapf(err, "config file %s", explicitFile)
		}
		if err := mergeFile(v, explicitFile); err != nil {
			return err
		}
	}
	return nil
}

func mergeFile(v *viper.Viper, configPath string) error {
	tempViper := viper.New()
	tempViper.SetConfigFile(configPath)
	tempViper.SetConfigType("toml")

	if err := tempViper.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	if err := v.MergeConfigMap(tempViper.AllSettings()); err != nil {
		return errors.Wrapf(err, "failed to merge config file %s", configPath)
	}
	return nil
}

// FileSource is one file of the configuration cascade.
type FileSource struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// Sources lists the config files in merge order, lowest precedence first.
// Environment variables override all of them.
func Sources() []FileSource {
	mu.Lock()
	explicit := explicitFile
	mu.Unlock()

	sources := []FileSource{{Name: "system", Path: SystemConfigPath}}
	if user := UserConfigPath(); user != "" {
		sources = append(sources, FileSource{Name: "user", Path: user})
	}
	if explicit != "" {
		sources = append(sources, FileSource{Name: "explicit", Path: explicit})
	}
	for i := range sources {
		_, err := os.Stat(sources[i].Path)
		sources[i].Exists = err == nil
	}
	return sources
}
