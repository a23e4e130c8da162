// Package config loads application configuration from the environment and from .env files.
package config

// Config reads configuration values by key.
type Config interface {
	Get(string) string
	GetOrDefault(string, string) string
}
