package config

// DefaultYAML is a config file template mirroring Default(). Auth
// fields are commented out by default since auth.provider=none is the
// safe default; uncommenting them (or setting the matching MCP_AUTH_*
// env var) opts a deployment into bearer-token verification.
const DefaultYAML = `auth:
  provider: none
  # provider: oidc
  # audience: "https://api.example.com"
  # resource: "https://api.example.com"
  # issuer: "https://accounts.example.com"
  # jwksUri: "https://accounts.example.com/.well-known/jwks.json"
  # scopesSupported:
  #   - "tools:read"
  #   - "tools:write"

server:
  listen: "127.0.0.1:8443"
  mcpPath: "/mcp"
  protocolVersion: "2025-06-18"
  # 0 rejects every request body; set null to disable the check (omitting it keeps 1 MiB)
  maxBodyBytes: 1048576
  allowedOrigins:
    - "http://localhost"
    - "http://127.0.0.1"
  # resourceCsp: "default-src 'self'"
  tls:
    enabled: false
    certFile: ""
    keyFile: ""

queue:
  maxConcurrent: 64
  strategy: reject
  sleepIntervalMs: 50

rateLimit:
  maxRequests: 100
  windowMs: 60000
  mode: reject
  ipMaxRequests: 20
  ipWindowMs: 60000

session:
  ttlMinutes: 30
  graceSeconds: 60
  reapIntervalMinutes: 5
  maxSessions: 10000

logging:
  level: info
  format: console
`
