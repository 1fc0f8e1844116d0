// internal/workers/application/apply-on-behalf/config.go
package applyonbehalf

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 15 * time.Second,
	}
}
