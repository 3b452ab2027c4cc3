package config

// Default returns a config with the server's default tuning: no auth
// provider configured (operators must opt in), a 64-slot backpressure
// queue that rejects over capacity, a generous per-tool rate limit, and
// the session lifecycle spec.md §4.G fixes (30 min TTL, 60s grace, reaped
// every 5 minutes).
func Default() Config {
	return Config{
		Auth: Auth{
			Provider: "none",
		},
		Server: Server{
			Listen:          "127.0.0.1:8443",
			MCPPath:         "/mcp",
			ProtocolVersion: "2025-06-18",
			MaxBodyBytes:    int64Ptr(1 << 20), // 1 MiB
			AllowedOrigins:  []string{"http://localhost", "http://127.0.0.1"},
		},
		Queue: Queue{
			MaxConcurrent:   64,
			Strategy:        "reject",
			SleepIntervalMs: 50,
		},
		RateLimit: RateLimit{
			MaxRequests:   100,
			WindowMs:      60_000,
			Mode:          "reject",
			IPMaxRequests: 20,
			IPWindowMs:    60_000,
		},
		Session: Session{
			TTLMinutes:          30,
			GraceSeconds:        60,
			ReapIntervalMinutes: 5,
			MaxSessions:         10_000,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

func int64Ptr(v int64) *int64 {
	return &v
}
