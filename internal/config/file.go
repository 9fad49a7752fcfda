package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors the TOML layout. Pointers distinguish "unset" from
// zero values for fields whose zero value is meaningful.
type fileConfig struct {
	LogLevel string `toml:"log_level"`

	Database struct {
		URL      string `toml:"url"`
		Host     string `toml:"host"`
		Port     int    `toml:"port"`
		Name     string `toml:"name"`
		User     string `toml:"user"`
		Password string `toml:"password"`
	} `toml:"database"`

	Output struct {
		Path        string `toml:"path"`
		Encoding    string `toml:"encoding"`
		IncludeUser *bool  `toml:"include_user"`
	} `toml:"output"`

	Listener struct {
		Channels                []string `toml:"channels"`
		ReconnectBackoffSeconds float64  `toml:"reconnect_backoff_seconds"`
		PollTimeoutSeconds      float64  `toml:"poll_timeout_seconds"`
		CompletionField         string   `toml:"completion_field"`
		StrictProvision         *bool    `toml:"strict_provision"`
		SkipProvision           *bool    `toml:"skip_provision"`
	} `toml:"listener"`

	API struct {
		Port  *int   `toml:"port"`
		Token string `toml:"token"`
	} `toml:"api"`

	NATS struct {
		URL     string `toml:"url"`
		Token   string `toml:"token"`
		Subject string `toml:"subject"`
	} `toml:"nats"`
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	setStr(&cfg.LogLevel, fc.LogLevel)

	setStr(&cfg.DatabaseURL, fc.Database.URL)
	setStr(&cfg.DBHost, fc.Database.Host)
	if fc.Database.Port != 0 {
		cfg.DBPort = fc.Database.Port
	}
	setStr(&cfg.DBName, fc.Database.Name)
	setStr(&cfg.DBUser, fc.Database.User)
	setStr(&cfg.DBPassword, fc.Database.Password)

	setStr(&cfg.OutputPath, fc.Output.Path)
	setStr(&cfg.Encoding, fc.Output.Encoding)
	if fc.Output.IncludeUser != nil {
		cfg.IncludeUser = *fc.Output.IncludeUser
	}

	if fc.Listener.Channels != nil {
		cfg.Channels = fc.Listener.Channels
	}
	if fc.Listener.ReconnectBackoffSeconds != 0 {
		cfg.ReconnectBackoff = seconds(fc.Listener.ReconnectBackoffSeconds)
	}
	if fc.Listener.PollTimeoutSeconds != 0 {
		cfg.PollTimeout = seconds(fc.Listener.PollTimeoutSeconds)
	}
	setStr(&cfg.CompletionField, fc.Listener.CompletionField)
	if fc.Listener.StrictProvision != nil {
		cfg.StrictProvision = *fc.Listener.StrictProvision
	}
	if fc.Listener.SkipProvision != nil {
		cfg.SkipProvision = *fc.Listener.SkipProvision
	}

	if fc.API.Port != nil {
		cfg.Port = *fc.API.Port
	}
	setStr(&cfg.APIToken, fc.API.Token)

	setStr(&cfg.NatsURL, fc.NATS.URL)
	setStr(&cfg.NatsToken, fc.NATS.Token)
	setStr(&cfg.RelaySubject, fc.NATS.Subject)
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
