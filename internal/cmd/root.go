// Package cmd contains the Cobra commands of queuectl.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/architeacher/svc-pubsub/internal/config"
)

// ConfigFunc provides the base configuration, usually read from the environment.
type ConfigFunc func() (*config.ServiceConfig, error)

// globalFlags override the environment for a single invocation.
type globalFlags struct {
	backend      string
	rxURL        string
	txURL        string
	name         string
	exchange     string
	exchangeType string
	logLevel     string
	logFormat    string
	trace        bool
}

// NewRootCommand constructs the queuectl root command with the emit, listen
// and serve subcommands.
func NewRootCommand(load ConfigFunc) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "queuectl",
		Short:         "Publish and subscribe through AMQP or Redis",
		Long:          "queuectl emits and listens to topic addressed messages and runs the pub/sub gateway.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.backend, "backend", "", "Queue backend: amqp|redis (default from QUEUE_BACKEND)")
	pf.StringVar(&flags.rxURL, "rx-url", "", "Receiving endpoint; empty resolves from the environment")
	pf.StringVar(&flags.txURL, "tx-url", "", "Transmitting endpoint; empty resolves from the environment")
	pf.StringVar(&flags.name, "name", "", "Queue name")
	pf.StringVar(&flags.exchange, "exchange", "", "Exchange name (AMQP only, defaults to the queue name)")
	pf.StringVar(&flags.exchangeType, "exchange-type", "", "Exchange type (AMQP only)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: json|console")
	pf.BoolVar(&flags.trace, "trace", false, "Print spans to stderr")

	configure := func(cmd *cobra.Command) (*config.ServiceConfig, error) {
		cfg, err := load()
		if err != nil {
			return nil, err
		}

		if err := flags.apply(cfg, cmd.Flags()); err != nil {
			return nil, err
		}

		return cfg, nil
	}

	root.AddCommand(
		newEmitCommand(configure),
		newListenCommand(configure),
		newServeCommand(configure),
	)

	return root
}

type configureFunc func(cmd *cobra.Command) (*config.ServiceConfig, error)

func (f *globalFlags) apply(cfg *config.ServiceConfig, fs *pflag.FlagSet) error {
	if fs.Changed("backend") {
		switch f.backend {
		case config.BackendAMQP, config.BackendRedis:
			cfg.Queue.Backend = f.backend
		default:
			return fmt.Errorf("invalid --backend %q; use amqp|redis", f.backend)
		}
	}

	overrides := []struct {
		flag  string
		value string
		dst   *string
	}{
		{"rx-url", f.rxURL, &cfg.Queue.RxURL},
		{"tx-url", f.txURL, &cfg.Queue.TxURL},
		{"name", f.name, &cfg.Queue.Name},
		{"exchange", f.exchange, &cfg.Queue.ExchangeName},
		{"exchange-type", f.exchangeType, &cfg.Queue.Type},
		{"log-level", f.logLevel, &cfg.Logging.Level},
		{"log-format", f.logFormat, &cfg.Logging.Format},
	}

	for _, o := range overrides {
		if fs.Changed(o.flag) {
			*o.dst = o.value
		}
	}

	if f.trace {
		cfg.Telemetry.Traces.Enabled = true
		cfg.Telemetry.ExporterType = config.ExporterStdout
	}

	return nil
}
