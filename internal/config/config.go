// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

// Narrator API keys are encrypted at rest when an API secret is set.
const encryptedKeyPrefix = "enc:"

var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// AppConfig holds the full runtime configuration, including the
// narrator settings that can be updated while the server runs.
type AppConfig struct {
	Port        string `json:"port"`
	DataDir     string `json:"data_dir"`
	SaveDir     string `json:"save_dir"`
	LogDir      string `json:"log_dir"`
	AuditDBPath string `json:"audit_db_path"`
	DebugMode   bool   `json:"debug_mode"`
	APISecret   string `json:"api_secret,omitempty"`
	RandomSeed  int64  `json:"random_seed,omitempty"`

	// Narrator settings. Provider empty means the narrator is driven
	// purely through the submit-response API.
	NarratorProvider string            `json:"narrator_provider,omitempty"`
	NarratorConfig   map[string]string `json:"narrator_config,omitempty"`
}

// Config is the base configuration parsed from the environment.
type Config struct {
	Port             string `env:"PORT" envDefault:"8080"`
	DataDir          string `env:"DATA_DIR" envDefault:"data"`
	SaveDir          string `env:"SAVE_DIR" envDefault:"data/saves"`
	LogDir           string `env:"LOG_DIR" envDefault:"logs"`
	AuditDBPath      string `env:"AUDIT_DB_PATH" envDefault:"data/audit.db"`
	DebugMode        bool   `env:"DEBUG_MODE" envDefault:"true"`
	APISecret        string `env:"API_SECRET"`
	RandomSeed       int64  `env:"RANDOM_SEED"`
	NarratorProvider string `env:"NARRATOR_PROVIDER"`
	NarratorAPIKey   string `env:"NARRATOR_API_KEY"`
	NarratorBaseURL  string `env:"NARRATOR_BASE_URL"`
	NarratorModel    string `env:"NARRATOR_MODEL"`
}

// Load reads configuration from the environment, after loading an
// optional .env file, and ensures the configured directories exist.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	for _, dir := range []string{cfg.DataDir, cfg.SaveDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	if cfg.APISecret == "" {
		log.Println("warning: API_SECRET not set, API authentication is disabled")
	}

	return cfg, nil
}

// InitConfig builds the runtime configuration from the environment and
// merges any settings previously saved to data/config.json.
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:             baseConfig.Port,
		DataDir:          baseConfig.DataDir,
		SaveDir:          baseConfig.SaveDir,
		LogDir:           baseConfig.LogDir,
		AuditDBPath:      baseConfig.AuditDBPath,
		DebugMode:        baseConfig.DebugMode,
		APISecret:        baseConfig.APISecret,
		RandomSeed:       baseConfig.RandomSeed,
		NarratorProvider: baseConfig.NarratorProvider,
		NarratorConfig: map[string]string{
			"api_key":  baseConfig.NarratorAPIKey,
			"base_url": baseConfig.NarratorBaseURL,
			"model":    baseConfig.NarratorModel,
		},
	}

	// Settings saved through the API win for narrator configuration;
	// the environment wins for paths and secrets.
	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if json.Unmarshal(data, &saved) == nil {
			saved.Port = baseConfig.Port
			saved.DataDir = baseConfig.DataDir
			saved.SaveDir = baseConfig.SaveDir
			saved.LogDir = baseConfig.LogDir
			saved.AuditDBPath = baseConfig.AuditDBPath
			saved.DebugMode = baseConfig.DebugMode
			saved.APISecret = baseConfig.APISecret
			saved.RandomSeed = baseConfig.RandomSeed

			if saved.NarratorConfig == nil {
				saved.NarratorConfig = currentConfig.NarratorConfig
			} else if key := saved.NarratorConfig["api_key"]; key == "" {
				saved.NarratorConfig["api_key"] = baseConfig.NarratorAPIKey
			} else {
				saved.NarratorConfig["api_key"] = decryptKey(key, baseConfig.APISecret)
			}
			if saved.NarratorProvider == "" {
				saved.NarratorProvider = baseConfig.NarratorProvider
			}

			currentConfig = &saved
		}
	}

	return saveConfigLocked()
}

// GetCurrentConfig returns a copy of the current configuration.
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, _ := Load()
		return &AppConfig{
			Port:        baseConfig.Port,
			DataDir:     baseConfig.DataDir,
			SaveDir:     baseConfig.SaveDir,
			LogDir:      baseConfig.LogDir,
			AuditDBPath: baseConfig.AuditDBPath,
			DebugMode:   baseConfig.DebugMode,
			APISecret:   baseConfig.APISecret,
			RandomSeed:  baseConfig.RandomSeed,
		}
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateNarratorConfig swaps the narrator provider settings and persists
// the result.
func UpdateNarratorConfig(provider string, settings map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("config not initialized")
	}

	currentConfig.NarratorProvider = provider
	currentConfig.NarratorConfig = settings

	return saveConfigLocked()
}

// SaveConfig persists the current configuration to data/config.json.
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()
	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("no config to save")
	}

	dir := filepath.Dir(configFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	toSave := *currentConfig
	if key := toSave.NarratorConfig["api_key"]; key != "" && toSave.APISecret != "" {
		encrypted, err := utils.Encrypt(key, toSave.APISecret)
		if err == nil {
			cfgCopy := make(map[string]string, len(toSave.NarratorConfig))
			for k, v := range toSave.NarratorConfig {
				cfgCopy[k] = v
			}
			cfgCopy["api_key"] = encryptedKeyPrefix + encrypted
			toSave.NarratorConfig = cfgCopy
		}
	}
	// The secret itself never lands on disk.
	toSave.APISecret = ""

	data, err := json.MarshalIndent(&toSave, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}

func decryptKey(stored, secret string) string {
	encrypted, ok := strings.CutPrefix(stored, encryptedKeyPrefix)
	if !ok {
		return stored
	}
	if secret == "" {
		return ""
	}
	key, err := utils.Decrypt(encrypted, secret)
	if err != nil {
		return ""
	}
	return key
}
