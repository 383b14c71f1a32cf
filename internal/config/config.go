// Package config loads dm settings from ~/.deadline-mate/config.toml and
// DM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Gribbirg/deadline-mate/internal/domain"
	"github.com/Gribbirg/deadline-mate/internal/pkg/apiurl"
)

const (
	KeyAPIURL         = "api.url"
	KeyAPITimeout     = "api.timeout"
	KeyQueueTimeout   = "session.queue_timeout"
	KeyRefreshTimeout = "session.refresh_timeout"
	KeyProfile        = "profile"
	KeyProfilesPath   = "profiles.path"
	KeySecretsDir     = "secrets.dir"
	KeySecretsBackend = "secrets.backend"
	KeyLogLevel       = "log.level"
	KeyLogFormat      = "log.format"
	KeyLogFile        = "log.file"
	KeyRenderTheme    = "render.theme"

	EnvPrefix  = "DM"
	DirName    = ".deadline-mate"
	configName = "config"
	configType = "toml"

	DefaultAPIURL = "http://localhost:8000/api/"
)

const (
	BackendChain = "chain"
	BackendFile  = "file"
	BackendPass  = "pass"
)

// Settings is the resolved configuration of one dm invocation.
type Settings struct {
	APIURL string
	// APIURLExplicit is set when the URL came from a flag, the environment
	// or the config file rather than the built-in default.
	APIURLExplicit bool
	APITimeout     time.Duration
	QueueTimeout   time.Duration
	RefreshTimeout time.Duration
	Profile        domain.ProfileName
	ProfilesPath   string
	SecretsDir     string
	SecretsBackend string
	LogLevel       string
	LogFormat      string
	LogFile        string
	RenderTheme    string
}

// New returns a viper instance with dm defaults and environment binding.
// Nothing is read from disk yet.
func New(home string) *viper.Viper {
	v := viper.New()
	base := filepath.Join(home, DirName)

	v.SetDefault(KeyAPIURL, DefaultAPIURL)
	v.SetDefault(KeyAPITimeout, 30*time.Second)
	v.SetDefault(KeyQueueTimeout, 30*time.Second)
	v.SetDefault(KeyRefreshTimeout, 15*time.Second)
	v.SetDefault(KeyProfile, string(domain.DefaultProfile))
	v.SetDefault(KeyProfilesPath, filepath.Join(base, "profiles.toml"))
	v.SetDefault(KeySecretsDir, filepath.Join(base, "secrets"))
	v.SetDefault(KeySecretsBackend, BackendChain)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyRenderTheme, "auto")

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(base)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Read loads the config file. A missing default file is fine; a missing
// file named explicitly is not.
func Read(v *viper.Viper, explicitFile string) error {
	if explicitFile != "" {
		v.SetConfigFile(explicitFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicitFile, err)
		}
		return nil
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Resolve validates v and converts it into Settings.
func Resolve(v *viper.Viper) (Settings, error) {
	s := Settings{
		APIURL:         strings.TrimSpace(v.GetString(KeyAPIURL)),
		APIURLExplicit: v.IsSet(KeyAPIURL),
		APITimeout:     v.GetDuration(KeyAPITimeout),
		QueueTimeout:   v.GetDuration(KeyQueueTimeout),
		RefreshTimeout: v.GetDuration(KeyRefreshTimeout),
		Profile:        domain.ProfileName(strings.TrimSpace(v.GetString(KeyProfile))),
		ProfilesPath:   v.GetString(KeyProfilesPath),
		SecretsDir:     v.GetString(KeySecretsDir),
		SecretsBackend: strings.ToLower(strings.TrimSpace(v.GetString(KeySecretsBackend))),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFormat:      v.GetString(KeyLogFormat),
		LogFile:        v.GetString(KeyLogFile),
		RenderTheme:    v.GetString(KeyRenderTheme),
	}

	if err := apiurl.ValidateBase(s.APIURL); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", KeyAPIURL, err)
	}
	if s.Profile == "" {
		s.Profile = domain.DefaultProfile
	}
	switch s.SecretsBackend {
	case BackendChain, BackendFile, BackendPass:
	default:
		return Settings{}, fmt.Errorf("%s: unknown backend %q (want chain, file or pass)", KeySecretsBackend, s.SecretsBackend)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return Settings{}, fmt.Errorf("%s: unknown format %q (want text or json)", KeyLogFormat, s.LogFormat)
	}
	for key, d := range map[string]time.Duration{
		KeyAPITimeout:     s.APITimeout,
		KeyQueueTimeout:   s.QueueTimeout,
		KeyRefreshTimeout: s.RefreshTimeout,
	} {
		if d <= 0 {
			return Settings{}, fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	return s, nil
}
