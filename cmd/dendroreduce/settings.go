package main

import (
	"fmt"
	"os"

	"dendroreduce/internal/config"
)

type ConfigCommand struct {
	Show ConfigShowCommand `cmd:"" default:"1" help:"Print the effective config."`
	Init ConfigInitCommand `cmd:"" help:"Write a default config file."`
}

type ConfigShowCommand struct{}

func (r *ConfigShowCommand) Run(app *App) error {
	if app.ConfigPath == "" {
		fmt.Println("Config: defaults (no file found)")
	} else {
		fmt.Printf("Config: %s\n", app.ConfigPath)
	}
	fmt.Println(app.Config.Summary())
	return nil
}

type ConfigInitCommand struct {
	Path  string `arg:"" optional:"" help:"Destination. Defaults to the user config dir." type:"path"`
	Force bool   `help:"Overwrite an existing file."`
}

func (r *ConfigInitCommand) Run(app *App) error {
	path := r.Path
	if path == "" {
		path = config.DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !r.Force {
		return fmt.Errorf("%s exists; use --force to overwrite", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}
