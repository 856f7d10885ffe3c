package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func lookupEnv(key string) *string {
	if value, ok := os.LookupEnv(key); ok {
		return &value
	}
	return nil
}

// GetEnv returns the environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv returns a non-negative integer environment variable or a default.
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); strings.TrimSpace(value) != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && intVal >= 0 {
			return intVal
		}
	}
	return defaultValue
}

// GetDurationEnv returns a duration environment variable or a default.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil && duration >= 0 {
			return duration
		}
	}
	return defaultValue
}

// ParsePipelineEnabled interprets the global kill-switch value.
// Unset means enabled; only an explicit falsy value disables the pipeline.
func ParsePipelineEnabled(value *string) bool {
	if value == nil {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(*value)) {
	case "false", "0", "no", "off", "disabled":
		return false
	default:
		return true
	}
}

// ParseEnabledFlag interprets a subsystem switch value.
// Unset means disabled; only an explicit truthy value enables the subsystem.
func ParseEnabledFlag(value *string) bool {
	if value == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(*value)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	default:
		return false
	}
}
