// internal/workers/scraping/trigger-scraping-session/config.go
package triggerscrapingsession

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
