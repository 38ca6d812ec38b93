package config

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/go-i2p/go-amqp/lib/util"
	"github.com/go-i2p/logger"
	"github.com/spf13/viper"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const GOAMQP_BASE_DIR = ".go-amqp"

func InitConfig() {
	if CfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(CfgFile)
	} else {
		// Set up viper to use the default config path $HOME/.go-amqp/
		viper.AddConfigPath(BuildConfigDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Load defaults
	setDefaults()

	// handle config file creating it if needed
	handleConfigFile()
}

func setDefaults() {
	d := Defaults()

	// Session defaults
	viper.SetDefault("session.incoming_window", d.Session.IncomingWindow)
	viper.SetDefault("session.outgoing_window", d.Session.OutgoingWindow)
	viper.SetDefault("session.initial_outgoing_id", d.Session.InitialOutgoingID)
	viper.SetDefault("session.handle_max", d.Session.HandleMax)

	// Connection defaults
	viper.SetDefault("connection.channel_max", d.Connection.ChannelMax)
	viper.SetDefault("connection.begin_timeout", d.Connection.BeginTimeout)

	// Loopback peer defaults
	viper.SetDefault("loopback.incoming_window", d.Loopback.IncomingWindow)
	viper.SetDefault("loopback.link_credit", d.Loopback.LinkCredit)
	viper.SetDefault("loopback.grant_rate", d.Loopback.GrantRate)
	viper.SetDefault("loopback.outcome", d.Loopback.Outcome)

	// Logging defaults
	viper.SetDefault("logging.level", d.Logging.Level)
}

// CurrentConfig builds a ConfigDefaults from the current viper settings.
// Keys must match the ones registered in setDefaults.
func CurrentConfig() ConfigDefaults {
	return ConfigDefaults{
		Session: SessionDefaults{
			IncomingWindow:    viper.GetUint32("session.incoming_window"),
			OutgoingWindow:    viper.GetUint32("session.outgoing_window"),
			InitialOutgoingID: viper.GetUint32("session.initial_outgoing_id"),
			HandleMax:         viper.GetUint32("session.handle_max"),
		},
		Connection: ConnectionDefaults{
			ChannelMax:   viper.GetUint16("connection.channel_max"),
			BeginTimeout: viper.GetDuration("connection.begin_timeout"),
		},
		Loopback: LoopbackDefaults{
			IncomingWindow: viper.GetUint32("loopback.incoming_window"),
			LinkCredit:     viper.GetUint32("loopback.link_credit"),
			GrantRate:      viper.GetFloat64("loopback.grant_rate"),
			Outcome:        viper.GetString("loopback.outcome"),
		},
		Logging: LoggingDefaults{
			Level: viper.GetString("logging.level"),
		},
	}
}

func createDefaultConfig(defaultConfigDir string) {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	if util.CheckFileExists(defaultConfigFile) {
		return
	}
	// Ensure directory exists
	if err := os.MkdirAll(defaultConfigDir, 0o755); err != nil {
		log.Fatalf("Could not create config directory: %s", err)
	}

	// Write current config file
	if err := viper.SafeWriteConfigAs(defaultConfigFile); err != nil {
		log.WithError(err).Warn("Could not write default config file")
		return
	}

	log.Debugf("Created default configuration at: %s", defaultConfigFile)
}

func handleConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if CfgFile != "" {
				log.Fatalf("Config file %s is not found: %s", CfgFile, err)
			} else {
				createDefaultConfig(BuildConfigDirPath())
			}
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	} else {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

func BuildConfigDirPath() string {
	return filepath.Join(util.UserHome(), GOAMQP_BASE_DIR)
}

// Reload re-reads the config file and returns the validated result. On error
// the previous values stay in effect for keys viper could not read.
func Reload() (ConfigDefaults, error) {
	if err := viper.ReadInConfig(); err != nil {
		return ConfigDefaults{}, oops.Wrapf(err, "reloading %s", viper.ConfigFileUsed())
	}
	cfg := CurrentConfig()
	if err := Validate(cfg); err != nil {
		return ConfigDefaults{}, err
	}
	log.WithField("file", viper.ConfigFileUsed()).Debug("configuration reloaded")
	return cfg, nil
}
