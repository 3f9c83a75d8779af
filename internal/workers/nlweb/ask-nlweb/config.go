// internal/workers/nlweb/ask-nlweb/config.go
package asknlweb

import "time"

type Config struct {
	Timeout time.Duration
	// MaxResults caps the results copied into the job variables.
	MaxResults int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    30 * time.Second,
		MaxResults: 10,
	}
}
