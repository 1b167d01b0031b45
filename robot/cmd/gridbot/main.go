// Package main is the gridbot command: it runs a match on the robot or in the simulator, and
// checks config files.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/robot"
)

const (
	flagConfig = "config"
	flagSim    = "sim"
	flagSerial = "serial"
	flagDebug  = "debug"
	flagLog    = "log-file"
)

const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
)

func main() {
	configFlag := &cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "load configuration from `FILE`",
	}
	app := &cli.App{
		Name:  "gridbot",
		Usage: "localize on the grid, cross the board and find the flag",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run a match",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  flagSim,
						Usage: "run on the simulated board",
					},
					&cli.StringFlag{
						Name:  flagSerial,
						Usage: "serial `DEVICE` the motor controller is on",
					},
					&cli.StringFlag{
						Name:  flagLog,
						Usage: "also write logs to `FILE`, rotating it as it grows",
					},
					&cli.BoolFlag{
						Name:    flagDebug,
						Aliases: []string{"vvv"},
						Usage:   "enable debug logging",
					},
				},
				Action: runAction,
			},
			{
				Name:      "validate",
				Usage:     "check a config file and print it with defaults filled in",
				Flags:     []cli.Flag{configFlag},
				Action:    validateAction,
				ArgsUsage: " ",
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func readConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return config.Default(), nil
	}
	return config.Read(path, logger)
}

func validateAction(c *cli.Context) error {
	if c.String(flagConfig) == "" {
		return errors.New("validate needs --config")
	}
	cfg, err := readConfig(c, logging.NewLogger("gridbot"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s is valid\n", cfg.ConfigFilePath)
	return printConfig(c.App.Writer, cfg)
}

// printConfig writes every setting of cfg, defaults included, as a table of section, field
// and value.
func printConfig(w io.Writer, cfg *config.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var sections map[string]interface{}
	if err := json.Unmarshal(raw, &sections); err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Section", "Field", "Value"})
	names := lo.Keys(sections)
	slices.Sort(names)
	for _, name := range names {
		fields, ok := sections[name].(map[string]interface{})
		if !ok {
			t.AppendRow(table.Row{"", name, sections[name]})
			continue
		}
		keys := lo.Keys(fields)
		slices.Sort(keys)
		for _, key := range keys {
			t.AppendRow(table.Row{name, key, fields[key]})
		}
		t.AppendSeparator()
	}
	t.Render()
	return nil
}

func runAction(c *cli.Context) (err error) {
	logger := logging.NewLogger("gridbot")
	if c.Bool(flagDebug) {
		logger = logging.NewDebugLogger("gridbot")
	}
	if path := c.String(flagLog); path != "" {
		file := logging.NewFileAppender(path, logFileMaxSizeMB, logFileMaxBackups)
		logger.AddAppender(file)
		defer func() {
			err = multierr.Combine(err, file.Close())
		}()
	}
	cfg, err := readConfig(c, logger)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" && !c.Bool(flagDebug) {
		level, err := logging.LevelFromString(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hw *robot.Hardware
	switch {
	case c.Bool(flagSim) && c.String(flagSerial) != "":
		return errors.New("--sim and --serial are mutually exclusive")
	case c.Bool(flagSim):
		hw, err = robot.NewSimHardware(cfg, logger)
	case c.String(flagSerial) != "":
		hw, err = robot.NewBridgeHardware(ctx, c.String(flagSerial), cfg, logger)
	default:
		return errors.New("one of --sim or --serial is required")
	}
	if err != nil {
		return err
	}

	r, err := robot.New(cfg, hw, logger)
	if err != nil {
		return multierr.Combine(err, hw.Close())
	}
	defer func() {
		err = multierr.Combine(err, r.Close(context.Background()))
	}()
	if err := r.Start(ctx); err != nil {
		return err
	}
	if err := r.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupted")
			return nil
		}
		return err
	}
	logger.Infow("match finished", "pose", r.Odometer.Pose().String())
	return nil
}
