package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snapetech/xc-timeshift/internal/urltemplate"
)

const (
	DefaultTimezone = "Europe/Brussels"
	DefaultLanguage = "en"
)

// Settings are the catch-up options an operator can change at runtime.
type Settings struct {
	Enabled            bool
	Timezone           string
	Language           string
	CatchupURLTemplate string
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		Enabled:            true,
		Timezone:           DefaultTimezone,
		Language:           DefaultLanguage,
		CatchupURLTemplate: urltemplate.DefaultCatchup,
	}
}

// SettingsSource yields the current settings. Callers take one value per
// request and use it for the whole request.
type SettingsSource interface {
	Settings() Settings
}

// StaticSettings is a fixed SettingsSource.
type StaticSettings Settings

// Settings implements SettingsSource.
func (s StaticSettings) Settings() Settings { return Settings(s) }

type fileSettings struct {
	Enabled            *bool  `yaml:"enabled"`
	Timezone           string `yaml:"timezone"`
	Language           string `yaml:"language"`
	CatchupURLTemplate string `yaml:"catchup_url_template"`
}

// ParseSettings decodes a YAML settings document. Absent or blank keys take
// their defaults.
func ParseSettings(data []byte) (Settings, error) {
	var f fileSettings
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	s := DefaultSettings()
	if f.Enabled != nil {
		s.Enabled = *f.Enabled
	}
	if v := strings.TrimSpace(f.Timezone); v != "" {
		s.Timezone = v
	}
	if v := strings.TrimSpace(f.Language); v != "" {
		s.Language = v
	}
	if v := strings.TrimSpace(f.CatchupURLTemplate); v != "" {
		s.CatchupURLTemplate = v
	}
	return s, nil
}

// LoadSettings reads path. A missing file yields DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return Settings{}, err
	}
	return ParseSettings(data)
}

// SettingsFile is a SettingsSource backed by a YAML file that is re-read
// whenever its modification time or size changes, so the feature can be
// toggled without a restart. A file that fails to parse keeps the last good
// settings in effect. TIMESHIFT_ENABLED, when set, overrides the file.
type SettingsFile struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	exists  bool
	cur     Settings
}

// NewSettingsFile loads path once and returns the source.
func NewSettingsFile(path string) *SettingsFile {
	f := &SettingsFile{path: path, cur: DefaultSettings()}
	f.refresh()
	return f
}

// Settings implements SettingsSource.
func (f *SettingsFile) Settings() Settings {
	f.refresh()
	f.mu.Lock()
	s := f.cur
	f.mu.Unlock()
	if v, ok := os.LookupEnv("TIMESHIFT_ENABLED"); ok && strings.TrimSpace(v) != "" {
		s.Enabled = parseBool(v)
	}
	return s
}

func (f *SettingsFile) refresh() {
	if f.path == "" {
		return
	}
	info, err := os.Stat(f.path)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		if f.exists {
			log.Printf("settings: %s removed; using defaults", f.path)
			f.exists = false
			f.cur = DefaultSettings()
		}
		return
	}
	if f.exists && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return
	}
	s, err := LoadSettings(f.path)
	f.exists = true
	f.modTime = info.ModTime()
	f.size = info.Size()
	if err != nil {
		log.Printf("settings: reload %s failed, keeping previous: %v", f.path, err)
		return
	}
	if s != f.cur {
		log.Printf("settings: loaded %s enabled=%t timezone=%s language=%s", f.path, s.Enabled, s.Timezone, s.Language)
	}
	f.cur = s
}
