package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// worldConfig is the YAML description of the virtual servers the fake
// serves. Every section is optional; missing parts fall back to the
// built-in default world.
type worldConfig struct {
	// Credentials accepted by the login command. Empty means any
	// login succeeds.
	Credentials map[string]string `yaml:"credentials"`

	Servers []serverConfig `yaml:"servers"`
}

type serverConfig struct {
	ID       int             `yaml:"id"`
	Name     string          `yaml:"name"`
	Channels []channelConfig `yaml:"channels"`
	Clients  []clientConfig  `yaml:"clients"`
	Groups   []groupConfig   `yaml:"groups"`
}

type channelConfig struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type clientConfig struct {
	ID        int    `yaml:"id"`
	Nickname  string `yaml:"nickname"`
	ChannelID int    `yaml:"channel"`
	UID       string `yaml:"uid"`
}

type groupConfig struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
	Type int    `yaml:"type"`
}

func loadWorldConfig(path string) (*worldConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var config worldConfig
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(config.Servers) == 0 {
		config.Servers = defaultWorldConfig().Servers
	}
	return &config, nil
}

// defaultWorldConfig is one virtual server with a lobby, an AFK channel,
// and a single connected client. Enough world for the client test suite.
func defaultWorldConfig() *worldConfig {
	return &worldConfig{
		Servers: []serverConfig{
			{
				ID:   1,
				Name: "TeamSpeak ]I[ Server",
				Channels: []channelConfig{
					{ID: 1, Name: "Lobby", Description: "Default Channel"},
					{ID: 2, Name: "AFK"},
				},
				Clients: []clientConfig{
					{ID: 2, Nickname: "Resident", ChannelID: 1, UID: "resident-uid="},
				},
				Groups: []groupConfig{
					{ID: 6, Name: "Server Admin", Type: 1},
					{ID: 8, Name: "Guest", Type: 1},
				},
			},
		},
	}
}
