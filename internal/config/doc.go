// Package config provides environment-based configuration.
//
// Loads from .env file (godotenv), maps to Config struct via go-simpler/env struct tags.
// REDIS_URL is optional: without it the service runs in single-instance mode.
package config
