package main

import (
	"github.com/alecthomas/kong"
)

var version = "dev"

type Command struct {
	Config  string           `help:"Config file path." type:"path" env:"DENDROREDUCE_CONFIG"`
	Verbose bool             `help:"Log run events." short:"v"`
	Quiet   bool             `help:"Suppress log output." short:"q"`
	Version kong.VersionFlag `help:"Print the version and exit."`

	Reduce   ReduceCommand `cmd:"" help:"Replace subtrees by equivalent cylinders."`
	Tree     TreeCommand   `cmd:"" help:"Print the section tree of a model file."`
	Runs     RunsCommand   `cmd:"" help:"List recorded reduction runs."`
	Show     ShowCommand   `cmd:"" help:"Show one reduction run."`
	Undo     UndoCommand   `cmd:"" help:"Restore the file content from before a run."`
	Watch    WatchCommand  `cmd:"" help:"Preview a reduction each time the model file changes."`
	Settings ConfigCommand `cmd:"" name:"config" help:"Inspect or create the config file."`
}

func main() {
	command := new(Command)
	ctx := kong.Parse(
		command,
		kong.Name("dendroreduce"),
		kong.Description("Reduce neuron dendritic subtrees to equivalent cylinders"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	app, err := newApp(command.Config, command.Verbose, command.Quiet)
	ctx.FatalIfErrorf(err)

	err = ctx.Run(app)
	app.Close()
	ctx.FatalIfErrorf(err)
}
