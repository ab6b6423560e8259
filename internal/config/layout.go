package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Layout describes the venue the service starts with: the feature catalog,
// the rooms and the seed accounts.
type Layout struct {
	Features []string        `yaml:"features"`
	Rooms    []RoomLayout    `yaml:"rooms"`
	Accounts []AccountLayout `yaml:"accounts"`
}

// RoomLayout is one room of the venue.
type RoomLayout struct {
	// ID defaults to the slug of Name.
	ID        string      `yaml:"id,omitempty"`
	Name      string      `yaml:"name"`
	Capacity  int         `yaml:"capacity"`
	OpenHours []HourRange `yaml:"open_hours,omitempty"`
	Features  []string    `yaml:"features,omitempty"`
}

// HourRange is a daily window [From, To) in whole hours.
type HourRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// AccountLayout is a seed account.
type AccountLayout struct {
	Kind     string `yaml:"kind"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadLayout reads and validates the YAML venue layout at path.
func LoadLayout(path string) (Layout, error) {
	if strings.TrimSpace(path) == "" {
		return Layout{}, errors.New("layout path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout decodes a YAML layout. Unknown keys are rejected.
func ParseLayout(data []byte) (Layout, error) {
	var layout Layout
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&layout); err != nil && !errors.Is(err, io.EOF) {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// Validate checks the shape of the layout. Business rules such as unknown
// features or duplicate usernames are left to the services that seed it.
func (l Layout) Validate() error {
	var problems []string
	for i, r := range l.Rooms {
		if strings.TrimSpace(r.Name) == "" {
			problems = append(problems, fmt.Sprintf("rooms[%d]: name is required", i))
		}
		if r.Capacity <= 0 {
			problems = append(problems, fmt.Sprintf("rooms[%d]: capacity must be positive", i))
		}
		for j, h := range r.OpenHours {
			if h.From < 0 || h.To > 24 || h.From >= h.To {
				problems = append(problems, fmt.Sprintf("rooms[%d].open_hours[%d]: invalid range %d-%d", i, j, h.From, h.To))
			}
		}
	}
	for i, a := range l.Accounts {
		if strings.TrimSpace(a.Username) == "" {
			problems = append(problems, fmt.Sprintf("accounts[%d]: username is required", i))
		}
		if strings.TrimSpace(a.Kind) == "" {
			problems = append(problems, fmt.Sprintf("accounts[%d]: kind is required", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid layout: %s", strings.Join(problems, "; "))
	}
	return nil
}
