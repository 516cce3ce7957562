package config

import (
	"os"

	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

type WebConfig struct {
	Host          string `yaml:"host" json:"host"`
	Port          int    `yaml:"port" json:"port"`
	BaseURL       string `yaml:"base_url" json:"base_url"`
	Secret        string `yaml:"secret" json:"secret"`
	AdminUsername string `yaml:"admin_username" json:"admin_username"`
	AdminPassword string `yaml:"admin_password" json:"admin_password"`
}

type DBConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
}

type StorageConfig struct {
	// Path of the bbolt file holding all blob buckets, relative to workdir
	// when not absolute.
	Path     string `yaml:"path" json:"path"`
	QrBucket string `yaml:"qr_bucket" json:"qr_bucket"`
}

type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System   SysConfig     `yaml:"system" json:"system"`
	Web      WebConfig     `yaml:"web" json:"web"`
	Database DBConfig      `yaml:"database" json:"database"`
	Storage  StorageConfig `yaml:"storage" json:"storage"`
	Logger   LogConfig     `yaml:"logger" json:"logger"`
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "VeriTag",
		Location: "Asia/Shanghai",
		Workdir:  "/var/veritag",
		Debug:    true,
	},
	Web: WebConfig{
		Host:          "0.0.0.0",
		Port:          1816,
		BaseURL:       "http://127.0.0.1:1816",
		Secret:        "9b6de5cc-0001-1203-xxtt-0f568ac9da37",
		AdminUsername: "admin",
	},
	Database: DBConfig{
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "veritag",
		User:     "postgres",
		Passwd:   "postgres",
		MaxConn:  100,
		IdleConn: 10,
	},
	Storage: StorageConfig{
		Path:     "blobstore.db",
		QrBucket: "product-qr",
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: true,
		Filename:   "/var/veritag/veritag.log",
	},
}

func setEnvValue(name string, f func(v string)) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		f(v)
	}
}

// LoadConfig reads the YAML configuration file and applies environment
// overrides. A missing file is not an error; defaults apply.
func LoadConfig(cfile string) *AppConfig {
	cfg := *DefaultAppConfig
	if cfile != "" {
		if data, err := os.ReadFile(cfile); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				zap.S().Errorf("parse config %s error: %s", cfile, err)
			}
		}
	}

	setEnvValue("VERITAG_SYSTEM_WORKDIR", func(v string) { cfg.System.Workdir = v })
	setEnvValue("VERITAG_SYSTEM_DEBUG", func(v string) { cfg.System.Debug = cast.ToBool(v) })
	setEnvValue("VERITAG_WEB_HOST", func(v string) { cfg.Web.Host = v })
	setEnvValue("VERITAG_WEB_PORT", func(v string) { cfg.Web.Port = cast.ToInt(v) })
	setEnvValue("VERITAG_WEB_BASE_URL", func(v string) { cfg.Web.BaseURL = v })
	setEnvValue("VERITAG_WEB_SECRET", func(v string) { cfg.Web.Secret = v })
	setEnvValue("VERITAG_WEB_ADMIN_USERNAME", func(v string) { cfg.Web.AdminUsername = v })
	setEnvValue("VERITAG_WEB_ADMIN_PASSWORD", func(v string) { cfg.Web.AdminPassword = v })
	setEnvValue("VERITAG_DB_HOST", func(v string) { cfg.Database.Host = v })
	setEnvValue("VERITAG_DB_PORT", func(v string) { cfg.Database.Port = cast.ToInt(v) })
	setEnvValue("VERITAG_DB_NAME", func(v string) { cfg.Database.Name = v })
	setEnvValue("VERITAG_DB_USER", func(v string) { cfg.Database.User = v })
	setEnvValue("VERITAG_DB_PASSWD", func(v string) { cfg.Database.Passwd = v })
	setEnvValue("VERITAG_STORAGE_PATH", func(v string) { cfg.Storage.Path = v })
	setEnvValue("VERITAG_STORAGE_QR_BUCKET", func(v string) { cfg.Storage.QrBucket = v })
	setEnvValue("VERITAG_LOGGER_MODE", func(v string) { cfg.Logger.Mode = v })

	return &cfg
}
