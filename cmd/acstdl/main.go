package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/acstdl/internal/app"
)

func main() {
	cfgFileName := flag.String("c", "acst-dl-config.json", "Path to config file")
	serve := flag.Bool("serve", false, "Start the HTTP API and wait for SIGUSR1 to run")
	flag.Parse()

	app := app.New(*cfgFileName)
	app.Init()

	if !*serve {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		ok := app.RunOnce(ctx)
		stop()
		app.Stop()

		if !ok {
			os.Exit(1)
		}

		return
	}

	app.Serve()

	c := make(chan os.Signal, 1)
	done := make(chan struct{})

	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		defer close(done)

		for sig := range c {
			switch sig {
			case syscall.SIGUSR1:
				go app.Run()
			case syscall.SIGTERM, syscall.SIGINT:
				fmt.Println("Received termination signal. Shutting down...")

				return
			}
		}
	}()

	<-done
	signal.Stop(c)
	app.Stop()
	fmt.Println("done")
}
