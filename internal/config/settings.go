package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the process-wide configuration object. It is constructed once
// at startup and passed into every component; nothing reads ambient globals.
type Settings struct {
	StackDir    string `yaml:"stack_dir"`
	ComposeFile string `yaml:"compose_file"`
	EnvFile     string `yaml:"env_file"`
	SecretsDir  string `yaml:"secrets_dir"`
	StatusDir   string `yaml:"status_dir"`
	HistoryDB   string `yaml:"history_db"`
	Version     string `yaml:"version"`

	Services ServiceSettings  `yaml:"services"`
	SSL      SSLSettings      `yaml:"ssl"`
	HTTP     []HTTPEndpoint   `yaml:"http_endpoints"`
	Limits   ResourceSettings `yaml:"resources"`
	Backup   BackupSettings   `yaml:"backup"`
	Env      EnvValidation    `yaml:"env_validation"`
	Security SecuritySettings `yaml:"security"`
}

type ServiceSettings struct {
	Required []string `yaml:"required"`
	Networks []string `yaml:"networks"`
	Database string   `yaml:"database"`
	Cache    string   `yaml:"cache"`
	Proxy    string   `yaml:"proxy"`
}

type SSLSettings struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	WarnDays int    `yaml:"warn_days"`
	CritDays int    `yaml:"crit_days"`
	HTTPSURL string `yaml:"https_url"`
}

type HTTPEndpoint struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Accept []int  `yaml:"accept"`
}

type ResourceSettings struct {
	MinMemoryMB int `yaml:"min_memory_mb"`
	MinDiskGB   int `yaml:"min_disk_gb"`
	MinCPUCores int `yaml:"min_cpu_cores"`
	DiskWarnPct int `yaml:"disk_warn_pct"`
	DiskCritPct int `yaml:"disk_crit_pct"`
}

type BackupSettings struct {
	Dir            string         `yaml:"dir"`
	Mode           string         `yaml:"mode"`
	Required       bool           `yaml:"encryption_required"`
	RecipientsFile string         `yaml:"recipients_file"`
	RetentionDays  int            `yaml:"retention_days"`
	Isolated       bool           `yaml:"isolated_dump"`
	Database       string         `yaml:"database_name"`
	AppDataDir     string         `yaml:"app_data_dir"`
	ConfigDir      string         `yaml:"config_dir"`
	WebhookURL     string         `yaml:"webhook_url"`
	WarnAgeHours   int            `yaml:"warn_age_hours"`
	CritAgeHours   int            `yaml:"crit_age_hours"`
	Remote         RemoteSettings `yaml:"remote"`
}

type RemoteSettings struct {
	Target     string `yaml:"target"` // sftp, gcs, local or empty
	Addr       string `yaml:"addr"`
	User       string `yaml:"user"`
	KeyPath    string `yaml:"key_path"`
	KnownHosts string `yaml:"known_hosts"`
	BaseDir    string `yaml:"base_dir"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	Dir        string `yaml:"dir"`
}

type EnvValidation struct {
	Required    []string `yaml:"required"`
	Recommended []string `yaml:"recommended"`
}

type SecuritySettings struct {
	ProfileFile string `yaml:"profile_file"`
}

// DefaultSettings returns the baseline configuration for a stack rooted at dir.
func DefaultSettings(dir string) Settings {
	return Settings{
		StackDir:    dir,
		ComposeFile: filepath.Join(dir, "docker-compose.yml"),
		EnvFile:     filepath.Join(dir, ".env"),
		SecretsDir:  filepath.Join(dir, "secrets"),
		StatusDir:   filepath.Join(dir, "status"),
		HistoryDB:   filepath.Join(dir, "status", "history.db"),
		Services: ServiceSettings{
			Required: []string{"app", "db", "cache", "proxy"},
			Networks: []string{"frontend", "backend"},
			Database: "db",
			Cache:    "cache",
			Proxy:    "proxy",
		},
		SSL: SSLSettings{
			WarnDays: 30,
			CritDays: 7,
		},
		Limits: ResourceSettings{
			MinMemoryMB: 2048,
			MinDiskGB:   10,
			MinCPUCores: 2,
			DiskWarnPct: 80,
			DiskCritPct: 90,
		},
		Backup: BackupSettings{
			Dir:           filepath.Join(dir, "backups"),
			Mode:          "auto",
			RetentionDays: 30,
			Database:      "app",
			AppDataDir:    filepath.Join(dir, "data"),
			ConfigDir:     filepath.Join(dir, "config"),
			WarnAgeHours:  26,
			CritAgeHours:  50,
		},
		Env: EnvValidation{
			Required:    []string{"APP_HOST", "POSTGRES_DB", "POSTGRES_USER"},
			Recommended: []string{"APP_PROTOCOL", "APP_PORT", "TZ"},
		},
	}
}

// LoadSettings reads YAML settings from path. If path is empty, it resolves
// $XDG_CONFIG_HOME/stackward/config.yaml or ~/.config/stackward/config.yaml.
// A missing file yields the defaults.
func LoadSettings(path string) (Settings, error) {
	if path == "" {
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".config")
		}
		path = filepath.Join(base, "stackward", "config.yaml")
	}
	cfg := DefaultSettings(filepath.Dir(path))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
