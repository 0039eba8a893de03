// Package config provides application settings loaded from a TOML file
// with environment variable overrides.
//
// Settings are created via Load() which handles:
// - Default value application
// - TOML file parsing
// - Environment variable parsing with validation
// - Struct validation of the merged result

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"

	"github.com/richinex/querygate/llm"
)

// DefaultPath is read when Load is given an empty path and the file exists.
const DefaultPath = "querygate.toml"

// Settings holds all application configuration.
type Settings struct {
	Log       LogConfig        `toml:"log"`
	Server    ServerConfig     `toml:"server"`
	Engine    EngineConfig     `toml:"engine"`
	Providers []ProviderConfig `toml:"providers" validate:"required,min=1,dive"`
	Breaker   BreakerConfig    `toml:"breaker"`
	Search    SearchConfig     `toml:"search"`
	Storage   StorageConfig    `toml:"storage"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=trace debug info warn error"`
	Format string `toml:"format" validate:"oneof=console json"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string   `toml:"addr" validate:"required"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	AllowedOrigins  []string `toml:"allowed_origins"`
}

// EngineConfig holds the query pipeline constants.
type EngineConfig struct {
	MaxIterations      int     `toml:"max_iterations" validate:"gte=1"`
	TokenBudget        int     `toml:"token_budget" validate:"gte=1"`
	SystemPrompt       string  `toml:"system_prompt"`
	ClosingInstruction string  `toml:"closing_instruction"`
	TitleBonus         float64 `toml:"title_bonus" validate:"gte=0"`
	TitlePrefixLen     int     `toml:"title_prefix_len" validate:"gte=1"`
	MinTokenLen        int     `toml:"min_token_len" validate:"gte=1"`
	CharsPerToken      int     `toml:"chars_per_token" validate:"gte=1"`
	MaxDocuments       int     `toml:"max_documents" validate:"gte=1"`
	// Deadline overrides the computed overall request deadline. Zero keeps
	// the computed value.
	Deadline Duration `toml:"deadline"`
}

// ProviderConfig is one entry of the fallback chain, in order.
type ProviderConfig struct {
	ID          string   `toml:"id"`
	Type        string   `toml:"type" validate:"required,oneof=openai gpt anthropic claude deepseek gemini google offline ollama local"`
	Model       string   `toml:"model"`
	BaseURL     string   `toml:"base_url" validate:"omitempty,url"`
	Timeout     Duration `toml:"timeout"`
	MaxTokens   uint32   `toml:"max_tokens"`
	Temperature *float64 `toml:"temperature" validate:"omitempty,gte=0,lte=2"`
}

// Name is the ID used in traces, defaulting to the type.
func (p ProviderConfig) Name() string {
	if p.ID != "" {
		return p.ID
	}
	return strings.ToLower(p.Type)
}

// BreakerConfig configures the per-provider circuit breaker. A zero
// threshold disables it.
type BreakerConfig struct {
	Threshold int      `toml:"threshold" validate:"gte=0"`
	Cooldown  Duration `toml:"cooldown"`
}

// SearchConfig configures the web_search tool.
type SearchConfig struct {
	Backend     string   `toml:"backend" validate:"oneof=duckduckgo api none"`
	Endpoint    string   `toml:"endpoint" validate:"omitempty,url"`
	Rate        int      `toml:"rate" validate:"gte=0"`
	MaxResults  int      `toml:"max_results" validate:"gte=0"`
	CacheTTL    Duration `toml:"cache_ttl"`
	TimeoutSecs uint64   `toml:"timeout_secs"`
	MaxRetries  uint32   `toml:"max_retries"`
}

// StorageConfig selects persistence backends. Empty values disable them.
type StorageConfig struct {
	SqlitePath    string `toml:"sqlite_path"`
	PostgresDSN   string `toml:"postgres_dsn"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDB       string `toml:"mongo_db"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"-"`
}

// Duration is a time.Duration that decodes from strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the settings used before any file or environment is applied.
func Defaults() Settings {
	return Settings{
		Log: LogConfig{Level: "info", Format: "console"},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration{10 * time.Second},
			AllowedOrigins:  []string{"*"},
		},
		Engine: EngineConfig{
			MaxIterations:  5,
			TokenBudget:    4000,
			TitleBonus:     10,
			TitlePrefixLen: 20,
			MinTokenLen:    4,
			CharsPerToken:  4,
			MaxDocuments:   10,
		},
		Providers: []ProviderConfig{
			{ID: "primary", Type: "anthropic", Timeout: Duration{30 * time.Second}},
			{ID: "secondary", Type: "openai", Timeout: Duration{30 * time.Second}},
			{ID: "offline", Type: "offline", Timeout: Duration{60 * time.Second}},
		},
		Breaker: BreakerConfig{Threshold: 3, Cooldown: Duration{30 * time.Second}},
		Search: SearchConfig{
			Backend:     "duckduckgo",
			Rate:        1,
			MaxResults:  5,
			CacheTTL:    Duration{15 * time.Minute},
			TimeoutSecs: 10,
			MaxRetries:  2,
		},
		Storage: StorageConfig{SqlitePath: "data/querygate.db", MongoDB: "querygate"},
	}
}

// Load builds settings with priority: defaults -> file -> environment.
// An empty path reads DefaultPath when it exists.
func Load(path string) (Settings, error) {
	settings := Defaults()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := Parse(data, &settings); err != nil {
			return Settings{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// Parse decodes TOML into settings, keeping values the document omits.
// A [[providers]] array replaces the default chain.
func Parse(data []byte, settings *Settings) error {
	var probe struct {
		Providers []ProviderConfig `toml:"providers"`
	}
	if err := toml.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Providers != nil {
		settings.Providers = nil
	}
	return toml.Unmarshal(data, settings)
}

// Validate checks field constraints and chain consistency.
func (s Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if s.Search.Backend == "api" && s.Search.Endpoint == "" {
		return errors.New("invalid config: search.endpoint is required for the api backend")
	}

	seen := make(map[string]bool, len(s.Providers))
	for _, p := range s.Providers {
		if _, err := llm.ParseProviderType(p.Type); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if p.Timeout.Duration < 0 {
			return fmt.Errorf("invalid config: provider %s: negative timeout", p.Name())
		}
		if seen[p.Name()] {
			return fmt.Errorf("invalid config: duplicate provider id %q", p.Name())
		}
		seen[p.Name()] = true
	}
	return nil
}

// applyEnv applies environment variable overrides.
func applyEnv(s *Settings) error {
	var err error

	s.Log.Level = getEnvString("QUERYGATE_LOG_LEVEL", s.Log.Level)
	s.Log.Format = getEnvString("QUERYGATE_LOG_FORMAT", s.Log.Format)
	s.Server.Addr = getEnvString("QUERYGATE_ADDR", s.Server.Addr)

	if s.Engine.MaxIterations, err = getEnvInt("QUERYGATE_MAX_ITERATIONS", s.Engine.MaxIterations); err != nil {
		return err
	}
	if s.Engine.TokenBudget, err = getEnvInt("QUERYGATE_TOKEN_BUDGET", s.Engine.TokenBudget); err != nil {
		return err
	}
	if s.Engine.Deadline.Duration, err = getEnvDuration("QUERYGATE_DEADLINE", s.Engine.Deadline.Duration); err != nil {
		return err
	}
	if s.Breaker.Threshold, err = getEnvInt("QUERYGATE_BREAKER_THRESHOLD", s.Breaker.Threshold); err != nil {
		return err
	}

	if chain := os.Getenv("QUERYGATE_PROVIDERS"); chain != "" {
		s.Providers = parseChain(chain, s.Providers)
	}
	for i := range s.Providers {
		key := "QUERYGATE_" + strings.ToUpper(s.Providers[i].Name()) + "_TIMEOUT"
		if s.Providers[i].Timeout.Duration, err = getEnvDuration(key, s.Providers[i].Timeout.Duration); err != nil {
			return err
		}
	}
	if url := os.Getenv("OLLAMA_BASE_URL"); url != "" {
		for i := range s.Providers {
			if t, _ := llm.ParseProviderType(s.Providers[i].Type); t == llm.ProviderOffline {
				s.Providers[i].BaseURL = url
			}
		}
	}

	s.Search.Backend = getEnvString("QUERYGATE_SEARCH_BACKEND", s.Search.Backend)
	s.Search.Endpoint = getEnvString("QUERYGATE_SEARCH_ENDPOINT", s.Search.Endpoint)
	if s.Search.Rate, err = getEnvInt("QUERYGATE_SEARCH_RATE", s.Search.Rate); err != nil {
		return err
	}

	s.Storage.SqlitePath = getEnvString("QUERYGATE_SQLITE_PATH", s.Storage.SqlitePath)
	s.Storage.PostgresDSN = getEnvString("DATABASE_URL", s.Storage.PostgresDSN)
	s.Storage.MongoURI = getEnvString("MONGO_URI", s.Storage.MongoURI)
	s.Storage.MongoDB = getEnvString("MONGO_DB", s.Storage.MongoDB)
	s.Storage.RedisAddr = getEnvString("REDIS_ADDR", s.Storage.RedisAddr)
	s.Storage.RedisPassword = getEnvString("REDIS_PASSWORD", s.Storage.RedisPassword)
	return nil
}

// parseChain turns "anthropic,openai,offline" into a chain, reusing the
// settings of existing entries of the same type.
func parseChain(chain string, existing []ProviderConfig) []ProviderConfig {
	byType := make(map[string]ProviderConfig, len(existing))
	for _, p := range existing {
		byType[strings.ToLower(p.Type)] = p
	}

	out := []ProviderConfig{}
	for _, name := range strings.Split(chain, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		p, ok := byType[name]
		if !ok {
			p = ProviderConfig{Type: name, Timeout: Duration{30 * time.Second}}
		}
		p.ID = name
		out = append(out, p)
	}
	return out
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
