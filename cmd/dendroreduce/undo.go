package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"dendroreduce/internal/domain"
	"dendroreduce/internal/service"
)

type UndoCommand struct {
	ID     string `arg:"" optional:"" help:"Run ID. Defaults to the latest applied run writing --output."`
	Output string `help:"File whose latest run to undo." short:"o" type:"path"`
	Force  bool   `help:"Undo even if the file changed since the run."`
}

func (r *UndoCommand) Run(app *App) error {
	if r.ID == "" && r.Output == "" {
		return errors.New("give a run ID or --output")
	}

	ctx := context.Background()
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}

	output := r.Output
	if r.ID != "" {
		run, err := svc.Run(ctx, r.ID)
		if err != nil {
			return err
		}
		output = run.Output
	}

	current, err := os.ReadFile(output)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", output, err)
	}
	if current == nil {
		current = []byte{}
	}

	run, _, err := svc.Undo(ctx, service.UndoRequest{
		RunID:   r.ID,
		Output:  output,
		Current: current,
		Force:   r.Force,
		Restore: restoreFile,
	})
	if err != nil {
		if errors.Is(err, service.ErrModelChanged) {
			return fmt.Errorf("%w; use --force to undo anyway", err)
		}
		return err
	}

	fmt.Println(run.Summary())
	return nil
}

func restoreFile(run *domain.Run, before *domain.Snapshot) error {
	// a run that wrote a separate file left the model untouched
	if run.Output != run.Model {
		if err := os.Remove(run.Output); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		fmt.Printf("Removed %s\n", run.Output)
		return nil
	}
	return os.WriteFile(run.Output, before.Data, 0644)
}
