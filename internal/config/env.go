package config

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// LoadEnv loads variables from a .env file in the working directory.
// Variables already present in the environment are not overwritten.
// Callers should treat os.IsNotExist errors as non-fatal.
func LoadEnv() error {
	return godotenv.Load()
}

// process fills target from lookuper, or from the process environment when
// lookuper is nil.
func process(ctx context.Context, target any, lookuper envconfig.Lookuper) error {
	if lookuper == nil {
		return envconfig.Process(ctx, target)
	}
	return envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   target,
		Lookuper: lookuper,
	})
}
