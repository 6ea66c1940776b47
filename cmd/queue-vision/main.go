package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/kyled7/queue-vision/go/bullmq"
	"github.com/kyled7/queue-vision/go/dashboard"
	"github.com/kyled7/queue-vision/go/ops"
	"github.com/kyled7/queue-vision/go/redisclient"
)

const iniFilename = "queue-vision.ini"

// Config is the top-level configuration object of queue-vision.
var Config = new(struct {
	Serve struct {
		Address string `long:"address" env:"ADDRESS" default:"127.0.0.1" description:"Address to listen on"`
		Port    int    `long:"port" env:"PORT" default:"8080" description:"Port to listen on"`
		UIPath  string `long:"ui-path" env:"UI_PATH" description:"Serve the UI from this directory instead of the embedded build"`
	} `group:"Serve" namespace:"serve" env-namespace:"SERVE"`

	Redis struct {
		URL            string        `long:"url" env:"URL" default:"redis://localhost:6379/0" description:"Redis URL of the broker"`
		Prefix         string        `long:"prefix" env:"PREFIX" default:"bull" description:"BullMQ key prefix"`
		SampleHorizon  int           `long:"sample-horizon" env:"SAMPLE_HORIZON" default:"100" description:"Newest terminal jobs sampled per metrics call"`
		ConnectTimeout time.Duration `long:"connect-timeout" env:"CONNECT_TIMEOUT" default:"10s" description:"Bound on establishing broker connections"`
		NoVerifyNotify bool          `long:"no-verify-notifications" env:"NO_VERIFY_NOTIFICATIONS" description:"Skip verifying that keyspace notifications are enabled before subscribing"`
	} `group:"Redis" namespace:"redis" env-namespace:"REDIS"`

	Log ops.LogConfig `group:"Logging" namespace:"log" env-namespace:"LOG"`
})

// shutdownTimeout bounds graceful HTTP shutdown; streaming responses hold
// Shutdown open, so remaining connections are closed after it elapses.
const shutdownTimeout = 5 * time.Second

func adapterConfig() bullmq.Config {
	return bullmq.Config{
		Prefix:              Config.Redis.Prefix,
		SampleHorizon:       Config.Redis.SampleHorizon,
		ConnectTimeout:      Config.Redis.ConnectTimeout,
		VerifyNotifications: !Config.Redis.NoVerifyNotify,
	}
}

type cmdServe struct{}

func (cmdServe) Execute(_ []string) error {
	ops.InitLog(Config.Log)

	log.WithFields(log.Fields{
		"config": Config,
	}).Info("queue-vision configuration")

	var broker, err = bullmq.New(adapterConfig())
	if err != nil {
		return fmt.Errorf("building broker adapter: %w", err)
	}
	if err = broker.Connect(context.Background(), Config.Redis.URL); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer func() {
		if err := broker.Disconnect(); err != nil {
			log.WithField("err", err).Warn("failed to disconnect from broker")
		}
	}()

	var addr = fmt.Sprintf("%s:%d", Config.Serve.Address, Config.Serve.Port)
	var server = &http.Server{
		Addr:    addr,
		Handler: dashboard.NewServer(broker, dashboard.Config{UIPath: Config.Serve.UIPath}),
	}

	var serveErr = make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"address":  addr,
			"endpoint": broker.Endpoint().String(),
		}).Info("starting queue-vision dashboard")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		} else {
			serveErr <- nil
		}
	}()

	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-signalCh:
		log.WithField("signal", sig).Info("caught signal")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving dashboard: %w", err)
		}
		return nil
	}

	var shutdownCtx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithField("err", err).Info("closing remaining connections")
		_ = server.Close()
	}

	log.Info("goodbye")
	return nil
}

var green = color.New(color.FgGreen).SprintFunc()
var red = color.New(color.FgRed).SprintFunc()

type cmdCheck struct{}

func (cmdCheck) Execute(_ []string) error {
	ops.InitLog(Config.Log)

	var ctx, cancel = context.WithTimeout(context.Background(), Config.Redis.ConnectTimeout)
	defer cancel()

	var failed bool
	var report = func(name string, err error) {
		if err != nil {
			failed = true
			fmt.Printf("%s %s: %s\n", red("FAIL"), name, err)
		} else {
			fmt.Printf("%s %s\n", green("PASS"), name)
		}
	}

	fmt.Printf("Checking broker %s\n\n", Config.Redis.URL)

	client, err := redisclient.Dial(ctx, Config.Redis.URL, Config.Redis.ConnectTimeout)
	report("dial and ping", err)
	if err != nil {
		return errors.New("broker is unreachable")
	}

	if value, err := client.ConfigValue(ctx, "notify-keyspace-events"); err != nil {
		report("read notify-keyspace-events", err)
	} else if !bullmq.NotificationsEnabled(value) {
		report("keyspace notifications",
			fmt.Errorf("notify-keyspace-events=%q lacks K plus g, h, l, z or A", value))
	} else {
		report("keyspace notifications", nil)
	}

	if err := client.Close(); err != nil {
		log.WithField("err", err).Warn("failed to close probe connection")
	}

	broker, err := bullmq.New(adapterConfig())
	if err != nil {
		return fmt.Errorf("building broker adapter: %w", err)
	}
	if err = broker.Connect(ctx, Config.Redis.URL); err != nil {
		report("connect adapter", err)
	} else {
		var queues, derr = broker.Discover(ctx)
		report(fmt.Sprintf("discover queues (%d found)", len(queues)), derr)
		if err := broker.Disconnect(); err != nil {
			log.WithField("err", err).Warn("failed to disconnect from broker")
		}
	}

	if failed {
		return errors.New("one or more probes failed")
	}
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve the queue dashboard", `
Serve the queue-vision dashboard over the configured broker, until
signaled to exit (via SIGTERM).
`, &cmdServe{})

	_, _ = parser.AddCommand("check", "Check broker connectivity", `
Probe the configured broker: dial and ping, verify the keyspace
notification configuration, and discover queues. Exits non-zero when a
probe fails.
`, &cmdCheck{})

	ops.AddPrintConfigCmd(parser, iniFilename)
	ops.MustParseConfig(parser, iniFilename)
}
