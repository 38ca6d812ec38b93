package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	d := Defaults()

	assert.Equal(t, uint32(2048), d.Session.IncomingWindow)
	assert.Equal(t, uint32(2048), d.Session.OutgoingWindow)
	assert.Equal(t, uint32(1), d.Session.InitialOutgoingID, "delivery ids start at 1")
	assert.Equal(t, uint32(1023), d.Session.HandleMax)
	assert.Equal(t, uint16(65535), d.Connection.ChannelMax)
	assert.Equal(t, 10*time.Second, d.Connection.BeginTimeout)
	assert.Equal(t, "accepted", d.Loopback.Outcome)
	assert.Zero(t, d.Loopback.GrantRate)
	assert.NoError(t, Validate(d))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConfigDefaults)
		want   string
	}{
		{"zero incoming window", func(c *ConfigDefaults) { c.Session.IncomingWindow = 0 }, "Session.IncomingWindow"},
		{"short begin timeout", func(c *ConfigDefaults) { c.Connection.BeginTimeout = time.Millisecond }, "Connection.BeginTimeout"},
		{"negative grant rate", func(c *ConfigDefaults) { c.Loopback.GrantRate = -1 }, "Loopback.GrantRate"},
		{"unknown outcome", func(c *ConfigDefaults) { c.Loopback.Outcome = "lost" }, "Loopback.Outcome"},
		{"unknown level", func(c *ConfigDefaults) { c.Logging.Level = "trace" }, "Logging.Level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, strings.HasPrefix(err.Error(), "config validation error: "))
		})
	}
}

func TestValidateAcceptsOutcomeCase(t *testing.T) {
	cfg := Defaults()
	cfg.Loopback.Outcome = "Rejected"
	cfg.Logging.Level = "off"
	assert.NoError(t, Validate(cfg))
}

func TestDefaultsYAML(t *testing.T) {
	out, err := Defaults().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "incoming_window: 2048")
	assert.Contains(t, string(out), "outcome: accepted")

	var back ConfigDefaults
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, Defaults().Session, back.Session)
}

func BenchmarkValidate(b *testing.B) {
	cfg := Defaults()
	for i := 0; i < b.N; i++ {
		_ = Validate(cfg)
	}
}
