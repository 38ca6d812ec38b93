package config

import (
	"strings"
	"time"

	"github.com/go-i2p/logger"
	"gopkg.in/yaml.v3"
)

// ConfigDefaults contains all default configuration values for go-amqp.
// This centralizes default values to make them easy to discover, document, and modify.
type ConfigDefaults struct {
	// Session flow-control defaults
	Session SessionDefaults `yaml:"session"`

	// Connection multiplexer defaults
	Connection ConnectionDefaults `yaml:"connection"`

	// Loopback peer defaults
	Loopback LoopbackDefaults `yaml:"loopback"`

	// Logging defaults
	Logging LoggingDefaults `yaml:"logging"`
}

// SessionDefaults contains default values advertised in Begin and used to
// seed the session engine's flow-control state.
type SessionDefaults struct {
	// IncomingWindow is the number of transfers we accept before the peer
	// must wait for a Flow.
	// Default: 2048
	IncomingWindow uint32 `yaml:"incoming_window"`

	// OutgoingWindow is the outgoing window advertised in our Begin. The
	// usable window is recomputed from every Flow the peer sends.
	// Default: 2048
	OutgoingWindow uint32 `yaml:"outgoing_window"`

	// InitialOutgoingID is the first delivery-id assigned on the session.
	// Default: 1
	InitialOutgoingID uint32 `yaml:"initial_outgoing_id"`

	// HandleMax is the highest link handle the session will allocate.
	// Default: 1023
	HandleMax uint32 `yaml:"handle_max"`
}

// ConnectionDefaults contains default values for the channel multiplexer.
type ConnectionDefaults struct {
	// ChannelMax is the highest channel id a session may use.
	// Default: 65535
	ChannelMax uint16 `yaml:"channel_max"`

	// BeginTimeout bounds how long a new session waits for the peer's Begin.
	// Default: 10 seconds
	BeginTimeout time.Duration `yaml:"begin_timeout"`
}

// LoopbackDefaults contains default values for the in-process peer.
type LoopbackDefaults struct {
	// IncomingWindow is the session window the peer grants with each Flow.
	// Default: 100
	IncomingWindow uint32 `yaml:"incoming_window"`

	// LinkCredit is the link credit granted after each Attach.
	// Default: 100
	LinkCredit uint32 `yaml:"link_credit"`

	// GrantRate limits how many Flow grants per second the peer emits.
	// 0 disables pacing.
	// Default: 0
	GrantRate float64 `yaml:"grant_rate"`

	// Outcome is the outcome the peer settles every transfer with.
	// Valid values: "accepted", "rejected", "released", "modified"
	// Default: "accepted"
	Outcome string `yaml:"outcome"`
}

// LoggingDefaults contains default values for logging.
type LoggingDefaults struct {
	// Level is the level of the CLI console logger. Library logging is
	// controlled separately with DEBUG_I2P.
	// Valid values: "", "debug", "info", "warn", "error", "off"
	// Default: ""
	Level string `yaml:"level"`
}

// Defaults returns a ConfigDefaults populated with all default values.
func Defaults() ConfigDefaults {
	return ConfigDefaults{
		Session:    buildSessionDefaults(),
		Connection: buildConnectionDefaults(),
		Loopback:   buildLoopbackDefaults(),
		Logging:    LoggingDefaults{},
	}
}

func buildSessionDefaults() SessionDefaults {
	return SessionDefaults{
		IncomingWindow:    2048,
		OutgoingWindow:    2048,
		InitialOutgoingID: 1,
		HandleMax:         1023,
	}
}

func buildConnectionDefaults() ConnectionDefaults {
	return ConnectionDefaults{
		ChannelMax:   65535,
		BeginTimeout: 10 * time.Second,
	}
}

func buildLoopbackDefaults() LoopbackDefaults {
	return LoopbackDefaults{
		IncomingWindow: 100,
		LinkCredit:     100,
		GrantRate:      0,
		Outcome:        "accepted",
	}
}

// YAML renders the configuration the way it is stored in config.yaml.
func (c ConfigDefaults) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks that configuration values are within acceptable ranges.
// Returns an error describing the first invalid value found.
func Validate(cfg ConfigDefaults) error {
	log.WithFields(logger.Fields{
		"at":     "Validate",
		"reason": "verification_requested",
	}).Debug("validating configuration")
	validators := []func() error{
		func() error { return validateSession(cfg.Session) },
		func() error { return validateConnection(cfg.Connection) },
		func() error { return validateLoopback(cfg.Loopback) },
		func() error { return validateLogging(cfg.Logging) },
	}

	for _, validator := range validators {
		if err := validator(); err != nil {
			log.WithError(err).Error("Configuration validation failed")
			return err
		}
	}
	return nil
}

func validateSession(session SessionDefaults) error {
	if session.IncomingWindow < 1 {
		log.WithField("incoming_window", session.IncomingWindow).Error("Invalid session configuration")
		return newValidationError("Session.IncomingWindow must be at least 1")
	}
	return nil
}

func validateConnection(connection ConnectionDefaults) error {
	if connection.BeginTimeout < 100*time.Millisecond {
		log.WithField("begin_timeout", connection.BeginTimeout).Error("Invalid connection configuration")
		return newValidationError("Connection.BeginTimeout must be at least 100ms")
	}
	return nil
}

func validateLoopback(loopback LoopbackDefaults) error {
	if loopback.GrantRate < 0 {
		return newValidationError("Loopback.GrantRate must not be negative")
	}
	switch strings.ToLower(loopback.Outcome) {
	case "accepted", "rejected", "released", "modified":
	default:
		log.WithField("outcome", loopback.Outcome).Error("Invalid loopback configuration")
		return newValidationError("Loopback.Outcome must be one of accepted, rejected, released, modified")
	}
	return nil
}

func validateLogging(logging LoggingDefaults) error {
	switch strings.ToLower(logging.Level) {
	case "", "debug", "info", "warn", "error", "off":
		return nil
	default:
		return newValidationError("Logging.Level must be one of debug, info, warn, error, off")
	}
}

type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "config validation error: " + e.message
}
