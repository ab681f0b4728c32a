package http

import (
	"testing"

	"github.com/ocihub/compute-telemetry/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.StoreGlobalConfig(config.GetDefaultConfig())

	goleak.VerifyTestMain(m)
}
