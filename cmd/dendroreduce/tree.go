package main

import (
	"context"
	"fmt"
	"os"

	"dendroreduce/internal/codec"
)

type TreeCommand struct {
	File     string `arg:"" help:"Model file (.yaml, .json or .swc)." type:"existingfile"`
	Segments bool   `help:"Show segment counts." default:"true" negatable:""`
}

func (r *TreeCommand) Run(app *App) error {
	svc, err := app.Service(context.Background())
	if err != nil {
		return err
	}

	data, err := os.ReadFile(r.File)
	if err != nil {
		return fmt.Errorf("read model: %w", err)
	}
	m, err := svc.Load(formatOf(r.File), data)
	if err != nil {
		return err
	}

	printer := codec.NewTreeExporter()
	printer.Segments = r.Segments
	if err := printer.Export(m, os.Stdout); err != nil {
		return err
	}
	fmt.Printf("%d sections, %d segments\n", len(m.Sections()), m.SegmentCount(m.Sections()))
	return nil
}
