package main

import (
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ocihub/compute-telemetry/component/audit"
	"github.com/ocihub/compute-telemetry/component/directory"
	"github.com/ocihub/compute-telemetry/component/metrics"
	"github.com/ocihub/compute-telemetry/component/oci"
	"github.com/ocihub/compute-telemetry/config"
	"github.com/ocihub/compute-telemetry/service"
	svchttp "github.com/ocihub/compute-telemetry/service/http"
	"github.com/ocihub/compute-telemetry/utils/printer"

	"github.com/pingcap/log"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	cfg := loadConfig()
	cfg.Log.InitDefaultLogger()
	printer.PrintServerInfo()

	client, err := oci.NewClient(&cfg.OCI)
	if err != nil {
		log.Fatal("failed to initialize backend clients", zap.Error(err))
	}
	defer client.Close()

	auditStore, err := audit.NewStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("failed to open audit store", zap.Error(err))
	}
	defer func() {
		if err := auditStore.Close(); err != nil {
			log.Warn("failed to close audit store", zap.Error(err))
		}
	}()

	dir := directory.New(client)
	fetcher := metrics.NewFetcher(client.Monitoring, &cfg.Metrics)
	aggregator := metrics.NewAggregator(fetcher, &cfg.Metrics)
	apiService := svchttp.NewService(dir, fetcher, aggregator, auditStore,
		time.Duration(cfg.Cache.CompartmentTTLSeconds)*time.Second)

	service.Init(cfg, apiService)
	defer service.Stop()

	sig := waitForSigterm()
	log.Info("received signal", zap.String("sig", sig.String()))
}

func loadConfig() *config.Config {
	configPath := flag.String("config", "", "config file path")
	address := flag.String("address", "", "TCP address to listen for http connections")
	logPath := flag.String("log.path", "", "log file path")
	logLevel := flag.String("log.level", "", "log level")
	version := flag.BoolP("version", "V", false, "print version information and exit")
	flag.Parse()

	if *version {
		fmt.Println(printer.GetServerInfo())
		os.Exit(0)
	}

	cfg, err := config.InitConfig(*configPath, func(cfg *config.Config) {
		if len(*address) > 0 {
			cfg.Address = *address
		}
		if len(*logPath) > 0 {
			cfg.Log.Path = *logPath
		}
		if len(*logLevel) > 0 {
			cfg.Log.Level = *logLevel
		}
	})
	if err != nil {
		stdlog.Fatalf("failed to initialize config, err: %v", err)
	}
	return cfg
}

func waitForSigterm() os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return <-ch
}
