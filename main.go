package main

import (
	"chronos-server/core/logger"
	"chronos-server/core/server"
)

func main() {
	if err := server.Run(); err != nil {
		logger.Error("run server error", "error", err)
	}
}
