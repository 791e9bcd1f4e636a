package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cantalupo555/backoffice-csv-exporter/cmd"
)

// appVersion is set at build time via -ldflags="-X main.appVersion=x.x.x"
var appVersion = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx, appVersion, os.Args[1:])
	stop()
	os.Exit(code)
}
