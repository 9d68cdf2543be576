package main

import (
	"log/slog"
	"os"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
