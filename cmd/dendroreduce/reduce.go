package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"dendroreduce/internal/codec"
	"dendroreduce/internal/domain"
	"dendroreduce/internal/reduce"
	"dendroreduce/internal/service"
)

type ReduceCommand struct {
	File     string   `arg:"" help:"Model file (.yaml, .json or .swc)." type:"existingfile"`
	Sections []int    `help:"Subtree root section ids, as printed by tree." short:"s"`
	Domains  []string `help:"Reduce every top section of these domains." short:"d"`

	Frequency   *float64 `help:"Impedance frequency in Hz." short:"f"`
	Strategy    string   `help:"Segmentation strategy." enum:",lambda,manual" default:""`
	Total       *int     `help:"Total segment target for manual segmentation, soma included."`
	MinFraction *float64 `help:"Smallest share of the original segment count to keep."`
	Missing     string   `help:"Value for parameters with no source segment." enum:",unset,zero" default:""`

	Output string `help:"Output file. Defaults to the input, or a .yaml next to SWC input." short:"o" type:"path"`
	DryRun bool   `help:"Print the reduced tree without writing or recording." short:"n"`
}

func (r *ReduceCommand) Run(app *App) error {
	ctx := context.Background()
	svc, err := app.Service(ctx)
	if err != nil {
		return err
	}

	input, err := os.ReadFile(r.File)
	if err != nil {
		return fmt.Errorf("read model: %w", err)
	}

	req := service.ReduceRequest{
		Model:   r.File,
		Output:  r.outputPath(),
		Input:   input,
		Format:  formatOf(r.File),
		Roots:   r.Sections,
		Domains: r.Domains,
		Config:  r.config(app),
		DryRun:  r.DryRun,
	}
	req.OutputFormat = formatOf(req.Output)
	req.Write = func(output []byte) error {
		return os.WriteFile(req.Output, output, 0644)
	}

	res, err := svc.Reduce(ctx, req)
	if err != nil {
		return err
	}

	if r.DryRun {
		if err := codec.NewTreeExporter().Export(res.Morphology, os.Stdout); err != nil {
			return err
		}
	}

	printRun(res.Run)
	if !res.Run.Converged() {
		app.Logger.Printf("Warning: run %s has unconverged searches, see diagnostics", res.Run.ID)
	}
	return nil
}

func (r *ReduceCommand) outputPath() string {
	if r.Output != "" {
		return r.Output
	}
	if formatOf(r.File) == "swc" {
		return strings.TrimSuffix(r.File, ".swc") + ".yaml"
	}
	return r.File
}

// config applies command line overrides to the configured defaults
func (r *ReduceCommand) config(app *App) reduce.Config {
	cfg := app.Config.ReduceConfig()
	if r.Frequency != nil {
		cfg.Frequency = *r.Frequency
	}
	if r.Strategy != "" {
		cfg.Segmentation.Strategy = reduce.Strategy(r.Strategy)
	}
	if r.Total != nil {
		cfg.Segmentation.TotalSegments = *r.Total
	}
	if r.MinFraction != nil {
		cfg.Segmentation.MinFraction = *r.MinFraction
	}
	if r.Missing != "" {
		cfg.Missing = reduce.MissingPolicy(r.Missing)
	}
	return cfg
}

func printRun(run *domain.Run) {
	fmt.Println(run.Summary())
	for _, s := range run.Subtrees {
		fmt.Printf("  section %d -> %s[%d]: %.4g x %.4g um, L=%.4g, nseg %d, |Zin| %.4g MOhm\n",
			s.Root, s.Domain, s.Section, s.Length, s.Diam, s.ElectrotonicLength, s.Nseg, s.InputImpedance)
		for _, d := range s.Diagnostics {
			fmt.Printf("    %s\n", d)
		}
	}
}
