package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/architeacher/svc-pubsub/internal/runtime"
)

func newEmitCommand(configure configureFunc) *cobra.Command {
	var topic string

	emitCmd := &cobra.Command{
		Use:   "emit --topic TOPIC [ARG...]",
		Short: "Emit one message whose arguments are the given JSON values",
		Long: "Each ARG is parsed as JSON. An ARG that is not valid JSON is sent as a string, " +
			"so `queuectl emit --topic greet hello 42` emits [\"hello\", 42].",
		RunE: func(cmd *cobra.Command, args []string) error {
			if topic == "" {
				return errors.New("--topic is required")
			}

			cfg, err := configure(cmd)
			if err != nil {
				return err
			}

			receipt, err := runtime.NewEmitter(cfg).Emit(cmd.Context(), topic, ParseArgs(args))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())

			return enc.Encode(receipt)
		},
	}

	emitCmd.Flags().StringVarP(&topic, "topic", "t", "", "Topic to emit on")

	return emitCmd
}

// ParseArgs turns command line words into message arguments.
func ParseArgs(words []string) []json.RawMessage {
	args := make([]json.RawMessage, 0, len(words))

	for _, w := range words {
		if json.Valid([]byte(w)) {
			args = append(args, json.RawMessage(w))

			continue
		}

		quoted, _ := json.Marshal(w)
		args = append(args, quoted)
	}

	return args
}
