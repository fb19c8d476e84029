package cmd

import (
	"github.com/spf13/cobra"

	"github.com/architeacher/svc-pubsub/internal/runtime"
)

func newServeCommand(configure configureFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP gateway in front of the configured queue",
		Aliases: []string{"gateway"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configure(cmd)
			if err != nil {
				return err
			}

			return runtime.New(cfg).Run(cmd.Context())
		},
	}
}
