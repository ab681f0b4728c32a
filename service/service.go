package service

import (
	"net"

	"github.com/ocihub/compute-telemetry/config"
	svchttp "github.com/ocihub/compute-telemetry/service/http"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

func Init(cfg *config.Config, service *svchttp.Service) {
	l, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		log.Fatal("failed to listen",
			zap.String("address", cfg.Address),
			zap.Error(err),
		)
	}

	go svchttp.ServeHTTP(&cfg.Log, l, service)

	log.Info(
		"starting http service",
		zap.String("address", cfg.Address),
	)
}

func Stop() {
	log.Info("shutting down http service")
	svchttp.StopHTTP()
}
