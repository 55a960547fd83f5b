// Package config loads tokenauthd settings from defaults, a YAML file, TOKENAUTH_*
// environment variables and command-line flags, in that order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/geochat/tokenauth"
	"github.com/geochat/tokenauth/jwt"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override, e.g. TOKENAUTH_TOKEN_SECRET.
const EnvPrefix = "TOKENAUTH_"

// Settings is the full tokenauthd configuration.
type Settings struct {
	Token     TokenSettings     `koanf:"token"`
	ResetCode ResetCodeSettings `koanf:"resetCode"`
	Notify    NotifySettings    `koanf:"notify"`
	HTTP      HTTPSettings      `koanf:"http"`
	Gateway   GatewaySettings   `koanf:"gateway"`
	Redis     RedisSettings     `koanf:"redis"`
	UserDir   UserDirSettings   `koanf:"userdir"`
	SMTP      SMTPSettings      `koanf:"smtp"`
	Log       LogSettings       `koanf:"log"`
	Metrics   MetricsSettings   `koanf:"metrics"`
}

// TokenSettings configures token signing. Secret is base64.
type TokenSettings struct {
	Secret     string        `koanf:"secret"`
	Issuer     string        `koanf:"issuer"`
	AccessTTL  time.Duration `koanf:"accessTtl"`
	RefreshTTL time.Duration `koanf:"refreshTtl"`
}

type ResetCodeSettings struct {
	TTL            time.Duration `koanf:"ttl"`
	Digits         int           `koanf:"digits"`
	RequestLimit   int           `koanf:"requestLimit"`
	RequestWindow  time.Duration `koanf:"requestWindow"`
	RevokeSessions bool          `koanf:"revokeSessions"`
}

type NotifySettings struct {
	Async      bool `koanf:"async"`
	BufferSize int  `koanf:"bufferSize"`
	DropIfFull bool `koanf:"dropIfFull"`
}

type HTTPSettings struct {
	Addr string `koanf:"addr"`
}

// GatewaySettings configures the edge reverse proxy.
type GatewaySettings struct {
	Addr           string   `koanf:"addr"`
	Upstream       string   `koanf:"upstream"`
	PublicPrefixes []string `koanf:"publicPrefixes"`
}

type RedisSettings struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// UserDirSettings selects the user directory. An empty DSN uses the in-memory directory.
type UserDirSettings struct {
	DSN    string `koanf:"dsn"`
	Hasher string `koanf:"hasher"`
}

// SMTPSettings configures reset code mail. An empty Host writes codes to stderr.
type SMTPSettings struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
	Subject  string `koanf:"subject"`
}

type LogSettings struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsSettings configures the Prometheus endpoint. An empty Addr disables it.
type MetricsSettings struct {
	Addr string `koanf:"addr"`
}

func defaults() map[string]any {
	return map[string]any{
		"token.secret":             "",
		"token.issuer":             "",
		"token.accessTtl":          15 * time.Minute,
		"token.refreshTtl":         7 * 24 * time.Hour,
		"resetCode.ttl":            10 * time.Minute,
		"resetCode.digits":         6,
		"resetCode.requestLimit":   5,
		"resetCode.requestWindow":  15 * time.Minute,
		"resetCode.revokeSessions": true,
		"notify.async":             true,
		"notify.bufferSize":        256,
		"notify.dropIfFull":        true,
		"http.addr":                ":8080",
		"gateway.addr":             ":8000",
		"gateway.upstream":         "http://127.0.0.1:8080",
		"gateway.publicPrefixes":   []string{"/auth/", "/swagger-ui/", "/v3/api-docs"},
		"redis.addr":               "127.0.0.1:6379",
		"redis.password":           "",
		"redis.db":                 0,
		"userdir.dsn":              "",
		"userdir.hasher":           "bcrypt",
		"smtp.host":                "",
		"smtp.port":                587,
		"smtp.username":            "",
		"smtp.password":            "",
		"smtp.from":                "",
		"smtp.subject":             "Password reset",
		"log.format":               "json",
		"log.level":                "info",
		"metrics.addr":             "127.0.0.1:9100",
	}
}

// flagKeys maps command-line flag names to settings keys.
var flagKeys = map[string]string{
	"http-addr":     "http.addr",
	"gateway-addr":  "gateway.addr",
	"upstream":      "gateway.upstream",
	"redis-addr":    "redis.addr",
	"userdir-dsn":   "userdir.dsn",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"metrics-addr":  "metrics.addr",
	"token-issuer":  "token.issuer",
	"access-ttl":    "token.accessTtl",
	"refresh-ttl":   "token.refreshTtl",
	"reset-ttl":     "resetCode.ttl",
	"reset-limit":   "resetCode.requestLimit",
	"notify-async":  "notify.async",
	"smtp-host":     "smtp.host",
	"smtp-port":     "smtp.port",
	"smtp-from":     "smtp.from",
	"smtp-username": "smtp.username",
}

// RegisterFlags adds the flags Load understands to fs. Only flags the user sets override
// file and environment values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", "", "auth API listen address")
	fs.String("gateway-addr", "", "gateway listen address")
	fs.String("upstream", "", "gateway upstream base URL")
	fs.String("redis-addr", "", "redis address")
	fs.String("userdir-dsn", "", "postgres DSN for the user directory (empty = in-memory)")
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "metrics listen address (empty = disabled)")
	fs.String("token-issuer", "", "iss claim for minted tokens")
	fs.Duration("access-ttl", 0, "access token lifetime")
	fs.Duration("refresh-ttl", 0, "refresh token lifetime")
	fs.Duration("reset-ttl", 0, "reset code lifetime")
	fs.Int("reset-limit", 0, "reset requests per email per window (0 = unlimited)")
	fs.Bool("notify-async", false, "deliver reset codes in the background")
	fs.String("smtp-host", "", "SMTP host (empty = print codes to stderr)")
	fs.Int("smtp-port", 0, "SMTP port")
	fs.String("smtp-from", "", "SMTP sender address")
	fs.String("smtp-username", "", "SMTP username")
}

// Load reads settings. path may be empty; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Settings, error) {
	k := koanf.New(".")

	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return Settings{}, oops.Code("CONFIG_DEFAULTS").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Settings{}, oops.Code("CONFIG_FILE").With("path", path).Wrap(err)
		}
	}

	canonical := make(map[string]string, len(k.Keys()))
	for _, key := range k.Keys() {
		canonical[strings.ToLower(key)] = key
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
		return canonical[key]
	}), nil); err != nil {
		return Settings{}, oops.Code("CONFIG_ENV").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return Settings{}, oops.Code("CONFIG_FLAGS").Wrap(err)
		}
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, oops.Code("CONFIG_DECODE").Wrap(err)
	}
	return s, nil
}

// LoadFromEnv is Load with the config path taken from TOKENAUTH_CONFIG.
func LoadFromEnv(flags *pflag.FlagSet) (Settings, error) {
	return Load(os.Getenv(EnvPrefix+"CONFIG"), flags)
}

// EngineConfig converts the token, reset, notify and metrics sections.
func (s Settings) EngineConfig() (tokenauth.Config, error) {
	secret, err := jwt.DecodeSecret(s.Token.Secret)
	if err != nil {
		return tokenauth.Config{}, oops.Code("CONFIG_TOKEN_SECRET").
			Hint("set token.secret or TOKENAUTH_TOKEN_SECRET to a base64 key of at least 32 bytes").
			Wrap(err)
	}

	cfg := tokenauth.DefaultConfig()
	cfg.Token.Secret = secret
	cfg.Token.Issuer = s.Token.Issuer
	cfg.Token.AccessTTL = s.Token.AccessTTL
	cfg.Token.RefreshTTL = s.Token.RefreshTTL
	cfg.ResetCode.TTL = s.ResetCode.TTL
	cfg.ResetCode.Digits = s.ResetCode.Digits
	cfg.ResetCode.RequestLimit = s.ResetCode.RequestLimit
	cfg.ResetCode.RequestWindow = s.ResetCode.RequestWindow
	cfg.ResetCode.RevokeSessions = s.ResetCode.RevokeSessions
	cfg.Notify.Async = s.Notify.Async
	cfg.Notify.BufferSize = s.Notify.BufferSize
	cfg.Notify.DropIfFull = s.Notify.DropIfFull
	cfg.Metrics.Enabled = true

	if err := cfg.Validate(); err != nil {
		return tokenauth.Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return cfg, nil
}

// Validate checks the sections EngineConfig does not cover.
func (s Settings) Validate() error {
	switch s.Log.Format {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").With("log.format", s.Log.Format).
			Errorf("log.format must be 'json' or 'text'")
	}
	switch s.UserDir.Hasher {
	case "bcrypt", "argon2id":
	default:
		return oops.Code("CONFIG_INVALID").With("userdir.hasher", s.UserDir.Hasher).
			Errorf("userdir.hasher must be 'bcrypt' or 'argon2id'")
	}
	if s.SMTP.Host != "" && s.SMTP.From == "" {
		return oops.Code("CONFIG_INVALID").Errorf("smtp.from is required when smtp.host is set")
	}
	return nil
}
