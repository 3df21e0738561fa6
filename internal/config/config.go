// Package config loads server and client settings from a "key = value;" file,
// the environment and built-in defaults, in increasing order of precedence
// for the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Setting keys recognised in a settings file.
const (
	KeyHost           = "HOST"
	KeyPort           = "PORT"
	KeyPassword       = "PASSWORD"
	KeyNickLimit      = "NICK_LENGTH_LIMIT"
	KeyLogInbound     = "LOG_INBOUND"
	KeyLogOutbound    = "LOG_OUTBOUND"
	KeyLogTransferred = "LOG_TRANSFERRED"
	KeyLogEvents      = "LOG_EVENTS"
	KeyLogFile        = "LOG_FILE"
	KeyLogQueue       = "LOG_QUEUE"
	KeyMetricsAddr    = "METRICS_ADDR"
	KeyName           = "NAME"
)

const envPrefix = "CHATWORK_"

// Config holds everything the server needs at start.
type Config struct {
	Host           string `env:"CHATWORK_HOST" validate:"required"`
	Port           int    `env:"CHATWORK_PORT" validate:"min=0,max=65535"`
	Password       string `env:"CHATWORK_PASSWORD" validate:"required"`
	NickLimit      int    `env:"CHATWORK_NICK_LIMIT" validate:"min=1,max=64"`
	LogInbound     bool   `env:"CHATWORK_LOG_INBOUND"`
	LogOutbound    bool   `env:"CHATWORK_LOG_OUTBOUND"`
	LogTransferred bool   `env:"CHATWORK_LOG_TRANSFERRED"`
	LogEvents      bool   `env:"CHATWORK_LOG_EVENTS"`
	LogFile        string `env:"CHATWORK_LOG_FILE" validate:"required"`
	LogQueue       int    `env:"CHATWORK_LOG_QUEUE" validate:"min=1"`
	MetricsAddr    string `env:"CHATWORK_METRICS_ADDR"`
	// Name is the participant name a client registers with.
	Name string `env:"CHATWORK_NAME"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Host:        "localhost",
		Port:        7777,
		Password:    "0000",
		NickLimit:   15,
		LogOutbound: true,
		LogFile:     "chatwork.log",
		LogQueue:    128,
	}
}

// Addr is the host:port the server listens on and clients dial.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Load reads the settings file at path (a missing file means defaults),
// applies environment overrides and resets invalid fields to their default.
func Load(path string, logger *slog.Logger) (Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("settings file not found, using defaults", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("open settings: %w", err)
		default:
			settings, err := ReadSettings(f)
			_ = f.Close()
			if err != nil {
				return cfg, err
			}
			cfg = Apply(cfg, settings)
		}
	}

	cfg = applyEnviron(cfg, os.Environ(), logger)
	return Sanitize(cfg, logger), nil
}

// applyEnviron overlays CHATWORK_* variables on cfg. A variable that does not
// parse is reported and leaves its field as it was.
func applyEnviron(cfg Config, environ []string, logger *slog.Logger) Config {
	own := lo.Filter(environ, func(kv string, _ int) bool { return strings.HasPrefix(kv, envPrefix) })
	es, err := env.EnvironToEnvSet(own)
	if err != nil {
		logger.Warn("environment not readable, ignoring overrides", "error", err)
		return cfg
	}
	next := cfg
	// Unmarshal consumes the set it is given.
	if err := env.Unmarshal(maps.Clone(es), &next); err == nil {
		return next
	}
	for _, key := range slices.Sorted(maps.Keys(es)) {
		next := cfg
		if err := env.Unmarshal(env.EnvSet{key: es[key]}, &next); err != nil {
			logger.Warn("invalid environment setting, keeping previous value", "key", key, "error", err)
			continue
		}
		cfg = next
	}
	return cfg
}

// ReadSettings parses ";"-separated "key = value" pairs. Pairs without "=" or
// with a blank key or value are skipped.
func ReadSettings(r io.Reader) (map[string]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	settings := make(map[string]string)
	for _, pair := range strings.Split(string(raw), ";") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		settings[key] = value
	}
	return settings, nil
}

// WriteSettings writes settings in the format ReadSettings accepts, sorted by key.
func WriteSettings(w io.Writer, settings map[string]string) error {
	for _, key := range slices.Sorted(maps.Keys(settings)) {
		if _, err := fmt.Fprintf(w, "%s = %s;\r\n", key, settings[key]); err != nil {
			return fmt.Errorf("write settings: %w", err)
		}
	}
	return nil
}

// Settings renders cfg as the map WriteSettings expects.
func (c Config) Settings() map[string]string {
	return map[string]string{
		KeyHost:           c.Host,
		KeyPort:           strconv.Itoa(c.Port),
		KeyPassword:       c.Password,
		KeyNickLimit:      strconv.Itoa(c.NickLimit),
		KeyLogInbound:     strconv.FormatBool(c.LogInbound),
		KeyLogOutbound:    strconv.FormatBool(c.LogOutbound),
		KeyLogTransferred: strconv.FormatBool(c.LogTransferred),
		KeyLogEvents:      strconv.FormatBool(c.LogEvents),
		KeyLogFile:        c.LogFile,
		KeyLogQueue:       strconv.Itoa(c.LogQueue),
		KeyMetricsAddr:    c.MetricsAddr,
		KeyName:           c.Name,
	}
}

// Save replaces the file at path with settings.
func Save(path string, settings map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create settings: %w", err)
	}
	if err := WriteSettings(f, settings); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Apply overlays recognised settings on cfg. Numbers that do not parse keep
// the value already in cfg; booleans are true only for "true" in any case.
func Apply(cfg Config, settings map[string]string) Config {
	str := func(key string, dst *string) {
		if v, ok := settings[key]; ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := settings[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := settings[key]; ok {
			*dst = strings.EqualFold(v, "true")
		}
	}

	str(KeyHost, &cfg.Host)
	num(KeyPort, &cfg.Port)
	str(KeyPassword, &cfg.Password)
	num(KeyNickLimit, &cfg.NickLimit)
	flag(KeyLogInbound, &cfg.LogInbound)
	flag(KeyLogOutbound, &cfg.LogOutbound)
	flag(KeyLogTransferred, &cfg.LogTransferred)
	flag(KeyLogEvents, &cfg.LogEvents)
	str(KeyLogFile, &cfg.LogFile)
	num(KeyLogQueue, &cfg.LogQueue)
	str(KeyMetricsAddr, &cfg.MetricsAddr)
	str(KeyName, &cfg.Name)
	return cfg
}

var validate = validator.New()

// Sanitize resets every field that fails validation to its default.
func Sanitize(cfg Config, logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	err := validate.Struct(cfg)
	if err == nil {
		return cfg
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		logger.Warn("settings not validated", "error", err)
		return cfg
	}

	defaults := reflect.ValueOf(Default())
	current := reflect.ValueOf(&cfg).Elem()
	for _, fe := range fieldErrs {
		field := fe.StructField()
		logger.Warn("invalid setting, using default", "field", field, "rule", fe.Tag())
		current.FieldByName(field).Set(defaults.FieldByName(field))
	}
	return cfg
}
