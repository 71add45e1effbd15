package main

import (
	"os"

	appLog "rozklad/internal/log"
)

func main() {
	app := newApp()
	if err := app.Execute(); err != nil {
		appLog.Error("rozklad failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}
