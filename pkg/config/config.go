package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type ScriptOptions struct {
	URL         string `env:"SCRIPT_URL"`
	Sheet       string `env:"SCRIPT_SHEET"`
	ReadAction  string `env:"SCRIPT_READ_ACTION" envDefault:"getUsers"`
	WriteAction string `env:"SCRIPT_WRITE_ACTION" envDefault:"saveCommitments"`
}

type Configuration struct {
	Script ScriptOptions

	Port        int           `env:"PORT" envDefault:"3200"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"20s"`
	ViewsFile   string        `env:"VIEWS_FILE" envDefault:"views.toml"`
	ExportURL   string        `env:"SHEETS_EXPORT_URL" envDefault:"https://docs.google.com/spreadsheets/d/"`
	MetricsPath string        `env:"METRICS_PATH" envDefault:"/metrics"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envSeparator:","`
	// Hosts the avatar endpoint may fetch from.
	ImageHosts []string `env:"IMAGE_HOSTS" envSeparator:"," envDefault:"drive.google.com,lh3.googleusercontent.com,drive.usercontent.google.com"`

	// Only read by the authenticated Sheets API source.
	GoogleCredentials string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// LoadEnv loads whichever of the given dotenv files exist. Missing files are skipped.
func LoadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads .env files then parses the process environment.
func Load(envFiles ...string) (*Configuration, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env", ".env.local"}
	}
	n, err := LoadEnv(envFiles)
	if err != nil {
		return nil, errors.Wrap(err, "load env files")
	}
	c := &Configuration{}
	if err := env.Parse(c); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	if c.HTTPTimeout <= 0 {
		return nil, errors.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if n > 0 {
		log.Debugf("loaded %d env file(s)", n)
	}
	return c, nil
}

// LogrusLogLevel maps LOG_LEVEL to a logrus level; unknown values fall back to info.
func (c *Configuration) LogrusLogLevel() log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(c.LogLevel)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func (c *Configuration) ListenAddress() string {
	return ":" + strconv.Itoa(c.Port)
}
