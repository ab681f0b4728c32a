package printer

import (
	"fmt"
	"runtime"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Version information.
var (
	BuildTS   = "None"
	GitHash   = "None"
	GitBranch = "None"
)

// runtime.Version returns the same string as the former
// go:linkname'd runtime.buildVersion, which Go 1.23+ no longer
// allows to be pull-linked.
var buildVersion = runtime.Version()

// PrintServerInfo prints the server version information.
func PrintServerInfo() {
	log.Info("Welcome to compute-telemetry.",
		zap.String("Git Commit Hash", GitHash),
		zap.String("Git Branch", GitBranch),
		zap.String("UTC Build Time", BuildTS),
		zap.String("GoVersion", buildVersion))
}

func GetServerInfo() string {
	return fmt.Sprintf("Git Commit Hash: %s\n"+
		"Git Branch: %s\n"+
		"UTC Build Time: %s\n"+
		"GoVersion: %s",
		GitHash,
		GitBranch,
		BuildTS,
		buildVersion)
}
