// internal/workers/jobs/refresh-match-scores/config.go
package refreshmatchscores

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}
