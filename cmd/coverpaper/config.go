package main

import (
	"flag"
	"fmt"

	"github.com/example/coverpaper/internal/config"
)

type configCmd struct {
	*root
	fs *flag.FlagSet
}

func (c *configCmd) FlagSet() *flag.FlagSet {
	return c.fs
}

func (c *configCmd) Program() string {
	return c.subcommand("config")
}

func parseConfigCmd(args []string, r *root) (*configCmd, error) {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	c := &configCmd{root: r, fs: fs}
	fs.SetOutput(r.stderr)
	fs.Usage = usageFunc(c)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *configCmd) Run() error {
	args := c.fs.Args()
	if len(args) < 1 {
		return &UsageError{of: c}
	}

	switch args[0] {
	case "print":
		fmt.Fprint(c.stdout, c.effective().String())
		return nil
	case "save":
		return c.runSave()
	default:
		return fmt.Errorf("unknown config command: %s", args[0])
	}
}

// effective returns the loaded configuration with command line flags applied.
func (c *configCmd) effective() *config.Config {
	cfg := *c.config
	cfg.Quality = c.quality
	cfg.FPS = c.fps
	cfg.Notify.Change = c.changeAlerts
	cfg.Notify.Copy = c.copyAlerts
	cfg.Store.Enabled = !c.noStore
	return &cfg
}

func (c *configCmd) runSave() error {
	path, err := config.NewLoader(version, configPathOverride).SavePath()
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := c.effective().Save(path); err != nil {
		return fmt.Errorf("save config %s: %w", path, err)
	}
	fmt.Fprintf(c.stderr, "Configuration saved to %s\n", path)
	return nil
}
