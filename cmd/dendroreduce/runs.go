package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

type RunsCommand struct {
	Model string `help:"Only runs of this model file." short:"m"`
	Limit int    `help:"Maximum number of runs, 0 for all." default:"20"`
}

func (r *RunsCommand) Run(app *App) error {
	ctx := context.Background()
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}

	runs, err := svc.Runs(ctx, r.Model, r.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tMODEL\tSUBTREES\tSEGMENTS\tSTATUS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d -> %d\t%s\n",
			run.ID, run.CreatedAt.Local().Format(time.DateTime), run.Model,
			len(run.Subtrees), run.SegmentsBefore, run.SegmentsAfter, run.Status)
	}
	return w.Flush()
}

type ShowCommand struct {
	ID   string `arg:"" help:"Run ID."`
	JSON bool   `help:"Print the run record as JSON."`
}

func (r *ShowCommand) Run(app *App) error {
	ctx := context.Background()
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}

	run, err := svc.Run(ctx, r.ID)
	if err != nil {
		return err
	}
	if r.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	printRun(run)
	fmt.Printf("  output: %s\n", run.Output)
	fmt.Printf("  config: %g Hz, %s segmentation, missing %s\n", run.Config.Frequency, run.Config.Strategy, run.Config.Missing)
	if run.UndoneAt != nil {
		fmt.Printf("  undone: %s\n", run.UndoneAt.Local().Format(time.DateTime))
	}
	return nil
}
