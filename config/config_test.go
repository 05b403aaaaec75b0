package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mpat-go/mpat/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "channels.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadChannelsValid(t *testing.T) {
	path := writeConfig(t, `[{"name":"fast","host":"127.0.0.1","port":9001},{"name":"slow","host":"127.0.0.1","port":9002}]`)
	channels, err := config.LoadChannels(path)
	if err != nil {
		t.Fatalf("LoadChannels: %v", err)
	}
	if len(channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(channels))
	}
	if channels[0].Addr() != "127.0.0.1:9001" {
		t.Errorf("got addr %q, want 127.0.0.1:9001", channels[0].Addr())
	}
}

func TestLoadChannelsEmptyIsConfigurationError(t *testing.T) {
	path := writeConfig(t, `[]`)
	_, err := config.LoadChannels(path)
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("got %v, want an ErrConfiguration", err)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	c := config.Channel{Name: "x", Host: "127.0.0.1", Port: 0}
	if err := c.Validate(); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("got %v, want an ErrConfiguration", err)
	}
}

func TestValidateRejectsEmptyName(t *testing.T) {
	c := config.Channel{Name: "", Host: "127.0.0.1", Port: 10}
	if err := c.Validate(); !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("got %v, want an ErrConfiguration", err)
	}
}
