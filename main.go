package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/krau/birefnet-go/cli"
	"github.com/krau/birefnet-go/onnx"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	onnx.Shutdown()
	os.Exit(code)
}
