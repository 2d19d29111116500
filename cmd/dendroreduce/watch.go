package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"dendroreduce/internal/watcher"
)

type WatchCommand struct {
	ReduceCommand `embed:""`
}

// Run repeats a dry-run reduction each time the model file is saved
func (r *WatchCommand) Run(app *App) error {
	r.DryRun = true
	preview := func(string) {
		if err := r.ReduceCommand.Run(app); err != nil {
			app.Logger.Printf("Reduction failed: %v", err)
		}
	}
	preview(r.File)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := watcher.New([]string{r.File}, preview).WithLogger(app.Logger).Watch(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
