package config

import "github.com/casys-ai/mcpserver/internal/queue"

// Allowed enum values for config validation.
var (
	AuthProviders   = []string{"github", "google", "auth0", "oidc", "apikey", "none"}
	QueueStrategies = []string{"reject", "queue", "sleep"}
	RateLimitModes  = []string{"reject", "wait"}
	LogFormats      = []string{"console", "json"}
)

func stringIn(s string, allowed []string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// Config holds the full resolved configuration.
// Precedence: environment > YAML file > defaults.
type Config struct {
	Auth      Auth      `yaml:"auth"`
	Server    Server    `yaml:"server"`
	Queue     Queue     `yaml:"queue"`
	RateLimit RateLimit `yaml:"rateLimit"`
	Session   Session   `yaml:"session"`
	Logging   Logging   `yaml:"logging"`
}

// Auth holds bearer-token verification settings. File absence is not an
// error; unset fields simply leave that provider's optional requirements
// unsatisfied, which Validate rejects when Provider needs them.
type Auth struct {
	Provider        string   `yaml:"provider"` // github | google | auth0 | oidc | apikey | none
	Audience        string   `yaml:"audience"`
	Resource        string   `yaml:"resource"`
	Domain          string   `yaml:"domain,omitempty"`  // required when provider=auth0
	Issuer          string   `yaml:"issuer,omitempty"`  // required when provider=oidc
	JWKSURI         string   `yaml:"jwksUri,omitempty"` // optional; oidc defaults to issuer + /.well-known/jwks.json
	ScopesSupported []string `yaml:"scopesSupported,omitempty"`
	APIKeys         []string `yaml:"-"` // loaded from env only, never persisted to YAML
}

// Server holds HTTP listener and transport settings.
type Server struct {
	Listen          string    `yaml:"listen"`
	MCPPath         string    `yaml:"mcpPath"`
	ProtocolVersion string    `yaml:"protocolVersion"`
	// MaxBodyBytes is a pointer so the three states the spec
	// distinguishes stay representable: nil (an explicit YAML null) disables
	// the body-size check entirely, *0 rejects every body including an empty
	// one, and *n>0 enforces that limit. An absent key keeps Default()'s 1 MiB.
	MaxBodyBytes   *int64    `yaml:"maxBodyBytes"`
	AllowedOrigins []string  `yaml:"allowedOrigins"`
	TLS            ServerTLS `yaml:"tls"`
	// ResourceCSP, when set, is injected as a Content-Security-Policy
	// meta tag into any resources/read result whose mimeType is
	// text/html. The header/meta construction itself is a trivial
	// out-of-scope helper; only the decision to apply it belongs here.
	ResourceCSP string `yaml:"resourceCsp,omitempty"`
}

// ServerTLS holds TLS certificate paths; off by default for local
// development, matching the teacher's default posture.
type ServerTLS struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// Queue holds backpressure queue tuning.
type Queue struct {
	MaxConcurrent   int    `yaml:"maxConcurrent"`
	Strategy        string `yaml:"strategy"` // reject | queue | sleep
	SleepIntervalMs int    `yaml:"sleepIntervalMs"`
}

// StrategyValue parses Strategy into a queue.Strategy. Validate rejects
// any value not in QueueStrategies before a server is ever built from
// this config, so the default case here is unreachable in practice.
func (q Queue) StrategyValue() queue.Strategy {
	switch q.Strategy {
	case "queue":
		return queue.StrategyQueue
	case "sleep":
		return queue.StrategySleep
	default:
		return queue.StrategyReject
	}
}

// RateLimit holds per-tool and per-IP sliding-window rate limit tuning.
type RateLimit struct {
	MaxRequests   int    `yaml:"maxRequests"`
	WindowMs      int    `yaml:"windowMs"`
	Mode          string `yaml:"mode"` // reject | wait
	IPMaxRequests int    `yaml:"ipMaxRequests"`
	IPWindowMs    int    `yaml:"ipWindowMs"`
}

// Session holds session lifecycle tuning (§4.G: 30 min TTL + 60s grace,
// reaped every 5 minutes, by default).
type Session struct {
	TTLMinutes          int `yaml:"ttlMinutes"`
	GraceSeconds        int `yaml:"graceSeconds"`
	ReapIntervalMinutes int `yaml:"reapIntervalMinutes"`
	MaxSessions         int `yaml:"maxSessions"`
}

// Logging holds structured-logging output settings.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}
