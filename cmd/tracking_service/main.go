package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "path to the YAML config file")
	maxConcurrent := flag.Int("max-concurrent", 0, "max in-flight HTTP requests (0 = unlimited)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// translate termination signals into context cancellation
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if err := Run(ctx, *configPath, *maxConcurrent); err != nil {
		fmt.Fprintf(os.Stderr, "tracking service failed: %v\n", err)
		os.Exit(1)
	}
}
