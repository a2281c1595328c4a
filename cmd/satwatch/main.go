package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/satwatch/satwatch-service/service"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the service configuration file")
	flag.Parse()

	svc, err := service.New(context.Background(), service.Options{
		ConfigPath: *configPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "satwatch: %v\n", err)
		os.Exit(1)
	}

	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "satwatch: %v\n", err)
		os.Exit(1)
	}
}
