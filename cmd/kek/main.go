// kek is a command line companion for kekbit channels: it creates channels,
// feeds them from stdin, follows them, and inspects their metadata.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/calvinalkan/kekbit/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.App{
		Name:  "kek",
		Short: "kek - persistent single-producer channels over memory mapped files",
		Commands: []*cli.Command{
			initCommand(),
			createCommand(),
			writeCommand(),
			readCommand(),
			statCommand(),
			pathCommand(),
		},
	}

	o := cli.NewIO(os.Stdout, os.Stderr)

	os.Exit(app.Run(ctx, o, os.Args[1:]))
}
