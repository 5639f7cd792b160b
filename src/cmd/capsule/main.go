package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	app "memcap/src/app"
	cli "memcap/src/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", app.Message(err))
		os.Exit(1)
	}
}
