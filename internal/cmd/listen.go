package cmd

import (
	"github.com/spf13/cobra"

	"github.com/architeacher/svc-pubsub/internal/runtime"
)

func newListenCommand(configure configureFunc) *cobra.Command {
	var (
		topics    []string
		store     bool
		validate  bool
		schemaDir string
		probes    bool
		quiet     bool
	)

	listenCmd := &cobra.Command{
		Use:   "listen --topic TOPIC [--topic TOPIC...]",
		Short: "Print every message received on the given topics as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configure(cmd)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("store") {
				cfg.Storage.Enabled = store
			}

			if schemaDir != "" {
				cfg.Validation.SchemaDir = schemaDir
			}

			opts := []runtime.ListenerOption{
				runtime.WithValidation(validate),
				runtime.WithProbes(probes),
			}

			if quiet {
				opts = append(opts, runtime.WithOutput(nil))
			} else {
				opts = append(opts, runtime.WithOutput(cmd.OutOrStdout()))
			}

			return runtime.NewListener(cfg, topics, opts...).Run(cmd.Context())
		},
	}

	flags := listenCmd.Flags()
	flags.StringSliceVarP(&topics, "topic", "t", nil, "Topic to listen on, repeatable")
	flags.BoolVar(&store, "store", false, "Persist accepted messages (requires POSTGRES_* settings)")
	flags.BoolVar(&validate, "validate", false, "Reject messages whose payload fails its schema")
	flags.StringVar(&schemaDir, "schema-dir", "", "Directory of JSON schemas, one file per payload type")
	flags.BoolVar(&probes, "probes", false, "Serve /v1/health and /metrics on the HTTP server address")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Do not print received messages")

	_ = listenCmd.MarkFlagRequired("topic")

	return listenCmd
}
