package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// loadDotEnvFiles loads each path into the process environment via
// godotenv, skipping files that don't exist and never overwriting a
// variable already set in the environment (godotenv.Load's default
// behavior), so real deployment env vars always win over a stray .env
// checked into a working directory.
func loadDotEnvFiles(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}
