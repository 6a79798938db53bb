package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/juju/loggo"

	"knx-ev-bridge/bridge"
	"knx-ev-bridge/chargers/twc/client"
	"knx-ev-bridge/config"
	"knx-ev-bridge/gateway"
	"knx-ev-bridge/params"
	"knx-ev-bridge/status"
	"knx-ev-bridge/util"
)

var log = loggo.GetLogger("knxev.cmd")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfgFile := flag.String("config", "", "knx-ev-bridge config file")
	flag.Parse()

	if *cfgFile == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.NewConfig(*cfgFile)
	if err != nil {
		log.Errorf("error parsing config: %q", err)
		os.Exit(1)
	}

	if err := util.SetupLogging(cfg); err != nil {
		log.Errorf("error setting up logging: %q", err)
		os.Exit(1)
	}

	if !cfg.KNX.Enabled {
		log.Warningf("knx bridge is disabled in config; exiting")
		return
	}

	telegrams := make(chan params.Telegram, 10)

	var statusUpdates chan params.SessionStatus
	if cfg.Status.Enabled {
		statusUpdates = make(chan params.SessionStatus, 10)
	}

	chargerClient := client.NewChargerClient(cfg.Charger.StationAddress)

	bridgeWorker, err := bridge.NewWorker(ctx, cfg, telegrams, statusUpdates, chargerClient)
	if err != nil {
		log.Errorf("error creating bridge worker: %q", err)
		os.Exit(1)
	}

	if err := bridgeWorker.Start(); err != nil {
		log.Errorf("starting bridge worker: %q", err)
		os.Exit(1)
	}

	if cfg.Status.Enabled {
		statusWorker, err := status.NewWorker(ctx, cfg, statusUpdates)
		if err != nil {
			log.Errorf("error creating status worker: %q", err)
			os.Exit(1)
		}
		if err := statusWorker.Start(); err != nil {
			log.Errorf("starting status worker: %q", err)
			os.Exit(1)
		}
	}

	gatewayWorker, err := gateway.NewWorker(ctx, cfg, telegrams)
	if err != nil {
		log.Errorf("error creating gateway worker: %q", err)
		os.Exit(1)
	}

	if err := gatewayWorker.Start(); err != nil {
		log.Errorf("starting gateway worker: %q", err)
		os.Exit(1)
	}

	<-ctx.Done()
}
