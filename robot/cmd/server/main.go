// Package main runs the rover daemon.
package main

import (
	"go.viam.com/utils"

	// registers all board backends.
	_ "github.com/sonarbot/rover/components/board/register"
	"github.com/sonarbot/rover/logging"
	"github.com/sonarbot/rover/robot/server"
)

var logger = logging.NewLogger("rover")

func main() {
	utils.ContextualMain(server.RunServer, logger)
}
