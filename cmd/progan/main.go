package main

import (
	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/progan/cmd/progan/commands"
	"git.home.luguber.info/inful/progan/internal/foundation/errors"
	"git.home.luguber.info/inful/progan/internal/version"
)

func main() {
	var cli commands.CLI
	global := &commands.Global{}
	parser := kong.Parse(&cli,
		kong.Name("progan"),
		kong.Description("Progressive-growing GAN trainer"),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Bind(global),
	)
	if err := parser.Run(&cli); err != nil {
		errors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
}
