// Package config provides configuration management for the go-amqp session engine.
//
// # Configuration Sources
//
// Values are resolved by viper in the usual order: explicit Set calls (CLI
// flags), the config file, then the defaults registered by setDefaults. The
// config file lives in $HOME/.go-amqp/config.yaml and is created with the
// defaults on first run when no --config flag is given.
//
// # Sections
//
//   - session: flow-control windows advertised in Begin and handle limits
//   - connection: channel-max and the Begin handshake timeout
//   - loopback: behaviour of the in-process peer used by the CLI and tests
//   - logging: level of the command line tool's console logger
//
// Reload re-reads the file in place; the CLI calls it on SIGHUP.
package config
