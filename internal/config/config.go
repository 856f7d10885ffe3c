// Package config loads kill-switches and operator settings from the
// environment exactly once per invocation. Subsystems receive the resulting
// values by argument and never read ambient process state themselves.
package config

import (
	"time"
)

// Default operator settings.
const (
	DefaultTimezone      = "Asia/Bangkok"
	DefaultQueueDir      = "data/queue"
	DefaultWindowMinutes = 10
	DefaultMaxRetries    = 3
	DefaultBackoff       = 10 * time.Second
	DefaultPrivacy       = "unlisted"
)

// Toggles holds the per-subsystem kill-switches. A false value forces the
// owning subsystem into a deterministic no-op path with zero side effects.
type Toggles struct {
	// Pipeline is the global switch; when false every subsystem no-ops.
	Pipeline bool
	// Scheduler gates enqueueing of due plan entries.
	Scheduler bool
	// Worker gates queue consumption.
	Worker bool
	// Upload gates the external publish call.
	Upload bool
}

// Settings holds operator-tunable parameters shared across subsystems.
type Settings struct {
	Timezone      string
	QueueDir      string
	WindowMinutes int

	// Publish gate knobs. MaxRetries and Backoff are operator-configured
	// with defaults of 3 attempts-after-first and 10 seconds.
	UploadMaxRetries     int
	UploadBackoff        time.Duration
	UploadPrivacyStatus  string
	UploadEndpoint       string
	UploadClientID       string
	UploadClientSecret   string
	UploadRefreshToken   string

	// Optional repository-relative files that override individual metadata
	// fields at publish time.
	UploadTitlePath       string
	UploadDescriptionPath string
	UploadTagsPath        string
}

// Config is the full per-invocation configuration.
type Config struct {
	Toggles  Toggles
	Settings Settings
}

// FromEnv reads the configuration from environment variables.
// PIPELINE_ENABLED defaults to enabled; the subsystem switches default to
// disabled and must be turned on explicitly.
func FromEnv() Config {
	privacy := GetEnv("UPLOAD_PRIVACY_STATUS", DefaultPrivacy)
	switch privacy {
	case "private", "unlisted", "public":
	default:
		privacy = DefaultPrivacy
	}

	return Config{
		Toggles: Toggles{
			Pipeline:  ParsePipelineEnabled(lookupEnv("PIPELINE_ENABLED")),
			Scheduler: ParseEnabledFlag(lookupEnv("SCHEDULER_ENABLED")),
			Worker:    ParseEnabledFlag(lookupEnv("WORKER_ENABLED")),
			Upload:    ParseEnabledFlag(lookupEnv("UPLOAD_ENABLED")),
		},
		Settings: Settings{
			Timezone:            GetEnv("SCHEDULER_TIMEZONE", DefaultTimezone),
			QueueDir:            GetEnv("QUEUE_DIR", DefaultQueueDir),
			WindowMinutes:       GetIntEnv("SCHEDULER_WINDOW_MINUTES", DefaultWindowMinutes),
			UploadMaxRetries:    GetIntEnv("UPLOAD_MAX_RETRIES", DefaultMaxRetries),
			UploadBackoff:       GetDurationEnv("UPLOAD_BACKOFF", DefaultBackoff),
			UploadPrivacyStatus: privacy,
			UploadEndpoint:      GetEnv("UPLOAD_ENDPOINT", ""),
			UploadClientID:      GetEnv("UPLOAD_CLIENT_ID", ""),
			UploadClientSecret:  GetEnv("UPLOAD_CLIENT_SECRET", ""),
			UploadRefreshToken:  GetEnv("UPLOAD_REFRESH_TOKEN", ""),

			UploadTitlePath:       GetEnv("CASTLINE_TITLE_PATH", ""),
			UploadDescriptionPath: GetEnv("CASTLINE_DESCRIPTION_PATH", ""),
			UploadTagsPath:        GetEnv("CASTLINE_TAGS_PATH", ""),
		},
	}
}
