// Package config loads and validates the channel list MPAT senders and
// receivers operate over, per spec.md §6.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ErrConfiguration is the sentinel wrapped by every validation failure
// in this package; spec.md §7 calls these ConfigurationErrors, "an
// empty channel list, invalid address; surfaced synchronously at
// startup."
var ErrConfiguration = fmt.Errorf("configuration error")

// Channel is one entry in a channel list: a display name and the
// transport address it resolves to.
type Channel struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns the host:port address this channel dials or listens on.
func (c Channel) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks a single channel record for the minimum fields
// required to dial or listen on it.
func (c Channel) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: channel has an empty name", ErrConfiguration)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: channel %q has an empty host", ErrConfiguration, c.Name)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: channel %q has invalid port %d", ErrConfiguration, c.Name, c.Port)
	}
	return nil
}

// ValidateChannels checks a whole channel list: it must be non-empty
// and every entry must validate individually.
func ValidateChannels(channels []Channel) error {
	if len(channels) == 0 {
		return fmt.Errorf("%w: channel list is empty", ErrConfiguration)
	}
	for _, c := range channels {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadChannels reads and validates a JSON array of channel records from
// path.
func LoadChannels(path string) ([]Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", ErrConfiguration, path, err)
	}
	var channels []Channel
	if err := json.Unmarshal(data, &channels); err != nil {
		return nil, fmt.Errorf("%w: parsing %q: %v", ErrConfiguration, path, err)
	}
	if err := ValidateChannels(channels); err != nil {
		return nil, err
	}
	return channels, nil
}
