// Package helpers provides common utility functions used across the
// project.
package helpers

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotenv loads variables from the given .env files into the process
// environment (defaulting to ".env"), ignoring files that do not exist.
// Call once at startup before reading configuration.
//
// Example:
//
//	helpers.LoadDotenv()
//	threads := helpers.GetIntFromEnv("DATAFLOW_NUM_THREADS", 4)
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	return nil
}

// GetStringFromEnv returns the environment variable value or default if not
// set or empty.
//
// Example:
//
//	dir := helpers.GetStringFromEnv("DATAFLOW_CACHE_DIR", "/tmp/dataflow")
func GetStringFromEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntFromEnv returns the environment variable value as int or default if
// not set or invalid.
//
// Example:
//
//	threads := helpers.GetIntFromEnv("DATAFLOW_NUM_THREADS", 4)
func GetIntFromEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetBoolFromEnv returns the environment variable value as bool or default
// if not set or invalid.
func GetBoolFromEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetDurationFromEnv returns the environment variable value parsed as a
// time.Duration or default if not set or invalid.
func GetDurationFromEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
