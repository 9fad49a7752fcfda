package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/sink"
	"github.com/MikeSquared-Agency/scribe/internal/transcript"
)

type Config struct {
	DatabaseURL string // overrides the discrete DB fields when set
	DBHost      string
	DBPort      int
	DBName      string
	DBUser      string
	DBPassword  string

	OutputPath  string
	Encoding    string
	IncludeUser bool

	Channels         []string
	ReconnectBackoff time.Duration
	PollTimeout      time.Duration
	CompletionField  string
	StrictProvision  bool
	SkipProvision    bool

	LogLevel     string
	Port         int // status API; 0 disables it
	APIToken     string
	NatsURL      string // empty disables the relay
	NatsToken    string
	RelaySubject string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBHost:           "localhost",
		DBPort:           5432,
		DBName:           "dify",
		DBUser:           "postgres",
		OutputPath:       "transcripts/output.txt",
		Encoding:         "utf-8",
		IncludeUser:      true,
		Channels:         append([]string(nil), transcript.KnownChannels...),
		ReconnectBackoff: 5 * time.Second,
		PollTimeout:      5 * time.Second,
		CompletionField:  "answer_tokens",
		LogLevel:         "info",
		Port:             8760,
		RelaySubject:     "swarm.scribe.entry",
	}
}

// Load layers the TOML file at path (or $SCRIBE_CONFIG) and then the
// environment over Default, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SCRIBE_CONFIG")
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DatabaseURL = envStr("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBHost = envStr("PGHOST", cfg.DBHost)
	cfg.DBPort = envInt("PGPORT", cfg.DBPort)
	cfg.DBName = envStr("PGDATABASE", cfg.DBName)
	cfg.DBUser = envStr("PGUSER", cfg.DBUser)
	cfg.DBPassword = envStr("PGPASSWORD", cfg.DBPassword)

	cfg.OutputPath = envStr("SCRIBE_OUTPUT", cfg.OutputPath)
	cfg.Encoding = envStr("SCRIBE_ENCODING", cfg.Encoding)
	cfg.IncludeUser = envBool("SCRIBE_INCLUDE_USER", cfg.IncludeUser)

	cfg.Channels = envList("SCRIBE_CHANNELS", cfg.Channels)
	cfg.ReconnectBackoff = envSeconds("SCRIBE_RECONNECT_BACKOFF_SECONDS", cfg.ReconnectBackoff)
	cfg.PollTimeout = envSeconds("SCRIBE_POLL_TIMEOUT_SECONDS", cfg.PollTimeout)
	cfg.CompletionField = envStr("SCRIBE_COMPLETION_FIELD", cfg.CompletionField)
	cfg.StrictProvision = envBool("SCRIBE_STRICT_PROVISION", cfg.StrictProvision)
	cfg.SkipProvision = envBool("SCRIBE_SKIP_PROVISION", cfg.SkipProvision)

	cfg.LogLevel = envStr("LOG_LEVEL", cfg.LogLevel)
	cfg.Port = envInt("SCRIBE_PORT", cfg.Port)
	cfg.APIToken = envStr("SCRIBE_API_TOKEN", cfg.APIToken)
	cfg.NatsURL = envStr("NATS_URL", cfg.NatsURL)
	cfg.NatsToken = envStr("NATS_TOKEN", cfg.NatsToken)
	cfg.RelaySubject = envStr("SCRIBE_RELAY_SUBJECT", cfg.RelaySubject)
}

// Validate rejects configurations the listener cannot run with. Unknown
// channels are caught here, before any connection is made.
func (c Config) Validate() error {
	var errs []error

	if c.OutputPath == "" {
		errs = append(errs, errors.New("output path is required"))
	}
	if _, err := sink.LookupEncoding(c.Encoding); err != nil {
		errs = append(errs, err)
	}

	if len(c.Channels) == 0 {
		errs = append(errs, errors.New("at least one channel is required"))
	}
	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		switch {
		case !transcript.IsKnownChannel(ch):
			errs = append(errs, fmt.Errorf("unknown channel %q (known: %s)", ch, strings.Join(transcript.KnownChannels, ", ")))
		case seen[ch]:
			errs = append(errs, fmt.Errorf("channel %q listed twice", ch))
		}
		seen[ch] = true
	}
	if seen[transcript.ChannelMessageUpdated] && c.CompletionField == "" {
		errs = append(errs, fmt.Errorf("completion field is required for %s", transcript.ChannelMessageUpdated))
	}

	if c.ReconnectBackoff <= 0 {
		errs = append(errs, errors.New("reconnect backoff must be positive"))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("poll timeout must be positive"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.DatabaseURL == "" && (c.DBHost == "" || c.DBName == "") {
		errs = append(errs, errors.New("database host and name are required when DATABASE_URL is unset"))
	}

	return errors.Join(errs...)
}

// ConnString returns DatabaseURL or a URL assembled from the DB fields.
func (c Config) ConnString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:   "/" + c.DBName,
	}
	switch {
	case c.DBUser != "" && c.DBPassword != "":
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	case c.DBUser != "":
		u.User = url.User(c.DBUser)
	}
	return u.String()
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envSeconds accepts a number of seconds ("5", "0.5") or a Go duration ("5s").
func envSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, ok := parseSeconds(v); ok {
			return d
		}
	}
	return fallback
}

func parseSeconds(v string) (time.Duration, bool) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
