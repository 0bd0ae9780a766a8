package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/veiloq/ws-session/pkg/config"
	"github.com/veiloq/ws-session/pkg/logging"
	"github.com/veiloq/ws-session/pkg/ratelimit"
	"github.com/veiloq/ws-session/pkg/session"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		addr       = flag.String("addr", "ws://localhost:8080/socket", "endpoint address")
	)
	flag.Parse()

	cfg := &config.Config{Address: *addr}
	if *configPath != "" {
		loaded, err := config.LoadAndValidate(*configPath)
		if err != nil {
			logging.NewLogger().Error("failed to load config", logging.Error(err))
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg.ApplyDefaults()
	}

	logger := logging.NewZapLogger(
		logging.WithLogLevel(logging.ParseLevel(cfg.LogLevel)),
	)

	mgr := session.NewManager(session.Options{
		ReconnectInterval: cfg.ReconnectInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SendRate: ratelimit.Rate{
			Limit:    cfg.SendLimit,
			Interval: cfg.SendInterval,
		},
		Transport: func() session.Transport {
			return session.NewGorillaTransport(logger,
				session.WithDialRetry(cfg.DialRetries, cfg.DialRetryDelay),
			)
		},
		Logger: logger,
	})

	mgr.Subscribe(func(resp session.Response) {
		logger.Info("inbound message",
			logging.String("cmd", resp.Command),
			logging.String("payload", string(resp.Payload)),
		)
	})

	logger.Info("connecting", logging.String("addr", cfg.Address))
	mgr.Connect(cfg.Address)
	defer mgr.Close()

	// Give the handshake a moment, then announce ourselves.
	time.Sleep(time.Second)
	if err := mgr.SendJSONMessage(map[string]string{"cmd": "hello"}); err != nil {
		logger.Warn("hello not sent", logging.Error(err))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down", logging.String("state", mgr.State().String()))
}
