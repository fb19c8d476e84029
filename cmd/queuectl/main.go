package main

import (
	"context"
	"fmt"
	"os"

	"github.com/architeacher/svc-pubsub/internal/cmd"
	"github.com/architeacher/svc-pubsub/internal/config"
)

func main() {
	root := cmd.NewRootCommand(config.Init)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "queuectl: %v\n", err)
		os.Exit(1)
	}
}
