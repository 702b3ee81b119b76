package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/huddlehq/huddle-signal/internals/config"
	"github.com/huddlehq/huddle-signal/internals/coordinator"
	"github.com/huddlehq/huddle-signal/internals/feed"
	"github.com/huddlehq/huddle-signal/internals/signaling"
	"github.com/huddlehq/huddle-signal/internals/utils"
)

type serveOptions struct {
	EnvFile   string
	Host      string
	Port      int
	LogLevel  string
	LogFormat string
	Redis     bool
}

func rootCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:          "signald",
		Short:        "signald coordinates presence and WebRTC signaling",
		Long:         `signald tracks who is online in a workspace and who is in which room, and relays offers, answers and ICE candidates between peers. Media never passes through it.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fs.StringVar(&opts.Host, "host", "", "listen host (overrides SIGNAL_HOST)")
	fs.IntVarP(&opts.Port, "port", "p", 0, "listen port (overrides SIGNAL_PORT)")
	fs.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&opts.LogFormat, "log-format", "", "log format: json or console")
	fs.BoolVar(&opts.Redis, "redis", false, "publish the activity feed to Redis (overrides REDIS_ENABLED)")
	return cmd
}

func run(cmd *cobra.Command, opts serveOptions) error {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return err
	}

	cfg := config.LoadConfig()
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = opts.Host
	}
	if flags.Changed("port") {
		cfg.Server.Port = opts.Port
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.LogLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.LogFormat
	}
	if flags.Changed("redis") {
		cfg.Redis.Enabled = opts.Redis
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	logger := utils.GetLogger()
	defer logger.Sync()
	logger.Info("Starting signald")

	var publisher feed.Publisher = feed.Noop{}
	if cfg.Redis.Enabled {
		publisher = feed.NewRedisPublisher(feed.RedisOptions{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			ChannelPrefix: cfg.Redis.ChannelPrefix,
		}, utils.Component("feed"))
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close activity feed", zap.Error(err))
		}
	}()

	hub := signaling.NewHub(utils.Component("hub"))
	coord := coordinator.New(coordinator.OptionsFromConfig(cfg), hub, publisher, utils.Component("coordinator"))
	server := coordinator.NewServer(cfg, coord, hub, publisher, utils.Component("server"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loopDone := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(loopDone)
	}()

	err := server.Start(ctx)
	stop()
	<-loopDone
	if err != nil {
		return err
	}
	logger.Info("signald stopped")
	return nil
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
