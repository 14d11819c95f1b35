// internal/config/config_test.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

func setTestEnv(t *testing.T, dataDir string) {
	t.Helper()
	t.Setenv("DATA_DIR", dataDir)
	t.Setenv("SAVE_DIR", filepath.Join(dataDir, "saves"))
	t.Setenv("LOG_DIR", filepath.Join(dataDir, "logs"))
	t.Setenv("AUDIT_DB_PATH", filepath.Join(dataDir, "audit.db"))
	t.Setenv("API_SECRET", "test-api-secret-for-config")
	t.Setenv("NARRATOR_PROVIDER", "openai")
	t.Setenv("NARRATOR_API_KEY", "sk-plaintext-key")
}

func TestLoadDefaults(t *testing.T) {
	dataDir := t.TempDir()
	setTestEnv(t, dataDir)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Errorf("port = %q, want default 8080", cfg.Port)
	}
	if cfg.DataDir != dataDir {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "saves")); err != nil {
		t.Errorf("save dir not created: %v", err)
	}
}

func TestNarratorKeyEncryptedAtRest(t *testing.T) {
	dataDir := t.TempDir()
	setTestEnv(t, dataDir)

	if err := InitConfig(dataDir); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dataDir, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-plaintext-key") {
		t.Error("narrator key written to disk in plaintext")
	}
	if strings.Contains(string(data), "test-api-secret-for-config") {
		t.Error("API secret written to disk")
	}

	var saved AppConfig
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	stored := saved.NarratorConfig["api_key"]
	if !strings.HasPrefix(stored, "enc:") {
		t.Fatalf("stored key = %q, want enc: prefix", stored)
	}
	plain, err := utils.Decrypt(strings.TrimPrefix(stored, "enc:"), "test-api-secret-for-config")
	if err != nil || plain != "sk-plaintext-key" {
		t.Errorf("decrypt = %q/%v", plain, err)
	}

	// A second init reads the encrypted file back into a usable key.
	if err := InitConfig(dataDir); err != nil {
		t.Fatal(err)
	}
	if got := GetCurrentConfig().NarratorConfig["api_key"]; got != "sk-plaintext-key" {
		t.Errorf("runtime key = %q, want decrypted plaintext", got)
	}
}

func TestDecryptKeyFallbacks(t *testing.T) {
	if got := decryptKey("sk-unprefixed", "secret"); got != "sk-unprefixed" {
		t.Errorf("unprefixed key = %q, want passthrough", got)
	}
	if got := decryptKey("enc:garbage", "secret"); got != "" {
		t.Errorf("undecryptable key = %q, want empty", got)
	}
	if got := decryptKey("enc:whatever", ""); got != "" {
		t.Errorf("missing secret = %q, want empty", got)
	}
}

func TestUpdateNarratorConfigPersists(t *testing.T) {
	dataDir := t.TempDir()
	setTestEnv(t, dataDir)

	if err := InitConfig(dataDir); err != nil {
		t.Fatal(err)
	}
	if err := UpdateNarratorConfig("openai", map[string]string{
		"api_key": "sk-rotated-key",
		"model":   "gpt-4o-mini",
	}); err != nil {
		t.Fatal(err)
	}

	cfg := GetCurrentConfig()
	if cfg.NarratorConfig["api_key"] != "sk-rotated-key" || cfg.NarratorConfig["model"] != "gpt-4o-mini" {
		t.Errorf("runtime config = %+v", cfg.NarratorConfig)
	}

	data, err := os.ReadFile(filepath.Join(dataDir, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-rotated-key") {
		t.Error("rotated key written to disk in plaintext")
	}
}
