package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	relay "github.com/SingSongScreamAlong/Ok-Box-Box-sub003"

	"github.com/sirupsen/logrus"
)

func main() {
	relay.InitLogging()

	config, err := relay.ReadConfig("config.yml")

	if err != nil {
		logrus.Fatalf("could not open config file, err: %s", err)
	}

	if config.Monitoring.Enabled {
		relay.InitMonitoring(config.Monitoring.DSN)
	}

	store, err := config.Store.BuildStore()

	if err != nil {
		logrus.Fatalf("could not open store, err: %s", err)
	}

	resolver := relay.NewResolver(config, store)

	ctx, cfn := context.WithCancel(context.Background())
	defer cfn()

	go resolver.ResolveRelayHub().Run(ctx)
	go resolver.ResolveStaleSessionReaper().Run(ctx)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logrus.Infof("shutting down relay server")
		cfn()
		os.Exit(0)
	}()

	logrus.Infof("starting relay server on: %s", config.HTTP.Hostname)
	logrus.Fatal(http.ListenAndServe(config.HTTP.Hostname, resolver.ResolveRouter()))
}
