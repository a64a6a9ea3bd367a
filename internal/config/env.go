package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error, and variables already set win.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
