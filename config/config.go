package config

import (
	"maps"

	"github.com/lambda-feedback/procpipe/runtime"
	"github.com/lambda-feedback/procpipe/util/conf"
)

type AuthConfig struct {
	// Key is the api key callers must present in the api-key header.
	// Authorization is disabled if the key is empty.
	Key string `conf:"key"`
}

type Config struct {
	// LogLevel is the log level for the application
	LogLevel string `conf:"log_level"`

	// LogFormat is the log format for the application
	LogFormat string `conf:"log_format"`

	// Auth is the authorization configuration of the http front ends
	Auth AuthConfig `conf:"auth"`

	// Runtime is the runtime configuration
	Runtime runtime.Config `conf:"runtime"`
}

var runtimeDefaults = conf.DefaultConfig{
	"max_workers":  0,
	"dedicated":    false,
	"timeout":      "0s",
	"poll_timeout": "1s",
}

// DefaultConfig holds the defaults applied before dotenv files, env vars
// and flags.
var DefaultConfig = func() conf.DefaultConfig {
	defaults := conf.DefaultConfig{
		"log_level":  "info",
		"log_format": "production",
	}

	maps.Copy(defaults, conf.MergeDefaults("runtime", runtimeDefaults))

	return defaults
}()
