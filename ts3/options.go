package ts3

import (
	"time"

	"github.com/joeshaw/envdecode"
)

// Options bundles connection settings. Defaults can be loaded from the
// environment with OptionsFromEnv.
type Options struct {
	URI               string        `env:"TS3_URI,default=telnet://127.0.0.1:10011"`
	Username          string        `env:"TS3_USERNAME"`
	Password          string        `env:"TS3_PASSWORD"`
	KeepaliveInterval time.Duration `env:"TS3_KEEPALIVE_INTERVAL,default=5s"`
	DialTimeout       time.Duration `env:"TS3_DIAL_TIMEOUT,default=10s"`
}

// OptionsFromEnv populates Options from the environment. Missing variables
// fall back to the struct tag defaults.
func OptionsFromEnv() Options {
	var options Options
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&options)
	return options
}

// Dial connects and logs in according to options.
func Dial(options Options) (*Connection, error) {
	conn := NewConnection().
		SetDialTimeout(options.DialTimeout).
		SetKeepalive(options.KeepaliveInterval)

	if err := conn.Connect(options.URI); err != nil {
		return nil, err
	}

	if options.Username != "" {
		if err := conn.Login(options.Username, options.Password); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	return conn, nil
}
