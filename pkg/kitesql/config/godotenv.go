package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultFileName         = "/.env"
	defaultOverrideFileName = "/.local.env"
)

// Logger is what the loader reports file loading with.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// EnvLoader is a Config backed by the process environment.
type EnvLoader struct {
	logger Logger
}

// NewEnvFile loads <folder>/.env and then <folder>/.<APP_ENV>.env (or .local.env when APP_ENV is
// unset). Values already present in the process environment are never overwritten.
func NewEnvFile(configFolder string, logger Logger) Config {
	conf := &EnvLoader{logger: logger}
	conf.read(configFolder)

	return conf
}

func (e *EnvLoader) read(folder string) {
	var (
		defaultFile  = filepath.Clean(folder + defaultFileName)
		overrideFile = filepath.Clean(folder + defaultOverrideFileName)
		env          = e.Get("APP_ENV")
	)

	initialEnv := environment()

	if err := godotenv.Load(defaultFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.warnf("Failed to load config from file: %v, Err: %v", defaultFile, err)
		}
	} else {
		e.infof("Loaded config from file: %v", defaultFile)
	}

	if env != "" {
		overrideFile = filepath.Clean(folder + "/." + env + ".env")
	}

	if err := godotenv.Overload(overrideFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.warnf("Failed to load config from file: %v, Err: %v", overrideFile, err)
		}
	} else {
		e.infof("Loaded config from file: %v", overrideFile)
	}

	// system environment wins over both files
	for k, v := range initialEnv {
		os.Setenv(k, v)
	}
}

func environment() map[string]string {
	env := make(map[string]string)

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	return env
}

func (e *EnvLoader) infof(format string, args ...any) {
	if e.logger != nil {
		e.logger.Infof(format, args...)
	}
}

func (e *EnvLoader) warnf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Warnf(format, args...)
	}
}

func (*EnvLoader) Get(key string) string {
	return os.Getenv(key)
}

func (*EnvLoader) GetOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}

	return defaultValue
}
