package commands

import (
	"fmt"

	"git.home.luguber.info/inful/progan/internal/control"
)

// SignalCmd implements the 'signal' command. The trainer consumes the request at its
// next tick boundary: a stable phase skips optimizer steps until the phase changes, a
// transition doubles its acceleration.
type SignalCmd struct {
	File string `help:"Control file (default: paths.control_file)"`
}

func (s *SignalCmd) Run(g *Global, root *CLI) error {
	path := s.File
	if path == "" {
		cfg, err := loadConfig(g, root)
		if err != nil {
			return err
		}
		path = cfg.Paths.ControlFile
	}
	if err := control.NewFileSignal(path, g.Logger).Request(); err != nil {
		return err
	}
	fmt.Printf("Requested at %s\n", path)
	return nil
}
