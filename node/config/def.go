package config

import (
	"encoding"
	"time"
)

// Default returns the default config
func Default() *Config {
	return &Config{
		DB: DB{
			Driver:         "pgx",
			Hosts:          []string{"127.0.0.1"},
			Port:           "5432",
			Username:       "postgres",
			Database:       "postgres",
			SSLMode:        "disable",
			ConnectTimeout: Duration(10 * time.Second),
		},
		Dir: Dir{
			Path: "./sql",
		},
	}
}

var _ encoding.TextMarshaler = (*Duration)(nil)
var _ encoding.TextUnmarshaler = (*Duration)(nil)

// Duration is a wrapper type for time.Duration
// for decoding and encoding from/to TOML
type Duration time.Duration

// UnmarshalText implements interface for TOML decoding
func (dur *Duration) UnmarshalText(text []byte) error {
	d, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*dur = Duration(d)
	return err
}

func (dur Duration) MarshalText() ([]byte, error) {
	d := time.Duration(dur)
	return []byte(d.String()), nil
}
