package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-i2p/go-amqp/lib/amqp/connection"
	"github.com/go-i2p/go-amqp/lib/amqp/loopback"
	"github.com/go-i2p/go-amqp/lib/amqp/message"
	"github.com/go-i2p/go-amqp/lib/amqp/session"
	"github.com/go-i2p/go-amqp/lib/config"
	"github.com/go-i2p/go-amqp/lib/util"
	"github.com/go-i2p/go-amqp/lib/util/logger"
	"github.com/go-i2p/go-amqp/lib/util/signals"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetLogger()

var rootCmd = &cobra.Command{
	Use:   "go-amqp",
	Short: "AMQP 1.0 session engine with an in-process peer",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.SetLevel(viper.GetString("logging.level"))
	},
	SilenceUsage: true,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send messages over a sender link to the loopback peer",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		address, _ := cmd.Flags().GetString("address")
		name, _ := cmd.Flags().GetString("link")
		body, _ := cmd.Flags().GetString("body")
		return runSend(cmd.Context(), count, address, name, body)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.CurrentConfig().YAML()
		if err != nil {
			return oops.Wrapf(err, "rendering configuration")
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	cobra.OnInitialize(config.InitConfig)

	rootCmd.PersistentFlags().StringVar(&config.CfgFile, "config", "", "config file (default is $HOME/.go-amqp/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "console log level: debug, info, warn, error or off")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	sendCmd.Flags().Int("count", 10, "number of messages to send")
	sendCmd.Flags().String("address", "queue/demo", "target address of the sender link")
	sendCmd.Flags().String("link", "go-amqp-sender", "link name")
	sendCmd.Flags().String("body", "hello", "message body")
	sendCmd.Flags().String("outcome", "accepted", "outcome the loopback peer settles with")
	sendCmd.Flags().Uint32("window", 100, "session window the loopback peer grants")
	sendCmd.Flags().Float64("grant-rate", 0, "window grants per second, 0 for unlimited")
	viper.BindPFlag("loopback.outcome", sendCmd.Flags().Lookup("outcome"))
	viper.BindPFlag("loopback.incoming_window", sendCmd.Flags().Lookup("window"))
	viper.BindPFlag("loopback.grant_rate", sendCmd.Flags().Lookup("grant-rate"))

	rootCmd.AddCommand(sendCmd, configCmd)
}

func runSend(parent context.Context, count int, address, name, body string) error {
	cfg := config.CurrentConfig()
	if err := config.Validate(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go signals.Handle(ctx)
	signals.RegisterInterruptHandler(signals.Handler(cancel))
	signals.RegisterReloadHandler(func() {
		if _, err := config.Reload(); err != nil {
			log.WithError(err).Warn("reload failed; keeping running configuration")
			return
		}
		log.Info("configuration reloaded; takes effect on the next run")
	})

	peer := loopback.NewPeer(cfg.Loopback)
	mux := connection.NewMux(peer, cfg)
	util.RegisterCloser(peer)
	defer util.CloseAll()
	go func() {
		if err := peer.Run(ctx, mux); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("loopback peer stopped")
		}
	}()

	s, err := mux.Begin(ctx)
	if err != nil {
		return oops.Wrapf(err, "beginning session")
	}
	defer s.Release()
	signals.RegisterPreShutdownHandler(func() {
		_ = s.Close(context.Background())
	})

	link, err := s.OpenSenderLink(ctx, address, name)
	if err != nil {
		return oops.Wrapf(err, "attaching link %q", name)
	}
	log.WithFields(logger.Fields{
		"link":          link.Name(),
		"address":       link.Address(),
		"remote_handle": link.Handle(),
	}).Info("link attached")

	promises := make([]*session.DeliveryPromise, 0, count)
	for i := 0; i < count; i++ {
		msg := message.New([]byte(fmt.Sprintf("%s %d", body, i)))
		p, err := link.Send(msg)
		if err != nil {
			return oops.Wrapf(err, "sending message %d", i)
		}
		promises = append(promises, p)
	}

	tally := make(map[string]int)
	for i, p := range promises {
		outcome, err := p.Wait(ctx)
		if err != nil {
			return oops.Wrapf(err, "waiting for message %d", i)
		}
		id, _ := p.DeliveryID()
		log.WithFields(logger.Fields{"delivery_id": id, "outcome": outcome}).Debug("settled")
		tally[outcome.String()]++
	}
	for outcome, n := range tally {
		fmt.Printf("%s: %d\n", outcome, n)
	}

	stats := s.Stats()
	log.WithFields(logger.Fields{
		"next_outgoing_id": stats.NextOutgoingID,
		"unsettled":        stats.Unsettled,
		"received":         peer.Received(),
	}).Info("done")

	if err := link.Close(ctx); err != nil {
		log.WithError(err).Warn("link close")
	}
	return s.Close(ctx)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
