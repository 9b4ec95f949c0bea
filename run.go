package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/script"
	"github.com/wricardo/charles/game/worlds"
	"github.com/wricardo/charles/render/sound"
	"github.com/wricardo/charles/render/terminal"
	"github.com/wricardo/charles/settings"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "run a robot script",
		ArgsUsage: "SCRIPT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "world", Usage: "world name from the worlds directory, or a path to a .world file"},
			&cli.StringFlag{Name: "layout", Usage: "generate a layout first: " + strings.Join(engine.Layouts, ", ")},
			&cli.IntFlag{Name: "delay", Usage: "pause after each action in milliseconds"},
			&cli.Int64Flag{Name: "seed", Usage: "seed for the random layouts"},
			&cli.BoolFlag{Name: "headless", Usage: "no terminal UI; print the outcome only"},
			&cli.BoolFlag{Name: "quiet", Usage: "no alert tone when the robot fails"},
		},
		Action: runScript,
	}
}

// runOutcome is what a script run left behind
type runOutcome struct {
	stats   script.Stats
	err     error
	message string
	state   *engine.State
}

func (o *runOutcome) status() string {
	if o.err == nil {
		return fmt.Sprintf("Done: %d actions, %d statements.", o.stats.Actions, o.stats.Statements)
	}
	msg := o.err.Error()
	if o.message != "" {
		msg = o.message
	}
	return fmt.Sprintf("Stopped after %d actions: %s", o.stats.Actions, msg)
}

func runScript(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return cli.Exit("run needs a SCRIPT file", 2)
	}
	if cmd.IsSet("world") && cmd.IsSet("layout") {
		return cli.Exit("--world and --layout are mutually exclusive", 2)
	}

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	headless := cmd.Bool("headless")

	var console io.Writer = os.Stderr
	if !headless {
		console = nil
	}
	logger := newLogger(s, console)
	defer logger.Sync()

	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	prog, err := script.ParseNamed(filepath.Base(path), string(source))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	delay := s.Robot.StepDelayMs
	if headless {
		delay = 0
	}
	if cmd.IsSet("delay") {
		delay = int(cmd.Int("delay"))
	}
	opts := []engine.Option{
		engine.WithSize(s.Worlds.Width, s.Worlds.Height),
		engine.WithStepDelay(time.Duration(delay) * time.Millisecond),
		engine.WithLogger(logger.Named("engine")),
	}
	if cmd.IsSet("seed") {
		opts = append(opts, engine.WithSeed(cmd.Int64("seed")))
	}

	var screen *terminal.Renderer
	if !headless {
		screen, err = terminal.Open()
		if err != nil {
			return fmt.Errorf("open terminal: %w", err)
		}
		defer screen.Close()
		opts = append(opts, engine.WithRenderers(screen))
	}

	sim, err := engine.NewSimulation(opts...)
	if err != nil {
		return err
	}
	if err := prepareWorld(sim, s, cmd.String("world"), cmd.String("layout")); err != nil {
		return err
	}

	var alert *sound.Alert
	if !headless && !cmd.Bool("quiet") {
		alert = sound.NewAlert(logger.Named("sound"))
		alert.Initialize()
		defer alert.Close()
	}

	if screen != nil {
		screen.RedrawAll(sim.Scene())
		screen.SetStatus("Running " + filepath.Base(path) + "...")
	}

	outcome := execute(ctx, sim, prog, s.Robot.MaxActions, logger)

	if screen != nil {
		if outcome.err != nil && alert != nil {
			alert.Play()
		}
		screen.SetStatus(outcome.status() + " Press q to quit.")
		screen.WaitForKey(ctx)
	}

	fmt.Fprintln(cmd.Root().Writer, outcome.status())
	if outcome.err != nil {
		return cli.Exit("", 1)
	}
	return nil
}

// prepareWorld loads a named or file world, or generates a layout
func prepareWorld(sim *engine.Simulation, s *settings.Settings, world, layout string) error {
	switch {
	case world != "" && (strings.HasSuffix(world, worlds.Ext) || strings.ContainsRune(world, os.PathSeparator)):
		return sim.LoadFromFile(world)
	case world != "":
		catalog, err := worlds.NewManager(s.Worlds.Dir, s.Worlds.Width, s.Worlds.Height)
		if err != nil {
			return err
		}
		d, err := catalog.Load(world)
		if err != nil {
			return err
		}
		return sim.LoadWorld(world, d)
	case layout != "":
		_, err := sim.Generate(layout)
		return err
	}
	return nil
}

// execute runs prog and records how it ended
func execute(ctx context.Context, sim *engine.Simulation, prog *script.Program, maxActions int, logger *zap.Logger) *runOutcome {
	runner := script.NewRunner(sim, script.WithMaxActions(maxActions), script.WithLogger(logger.Named("script")))
	stats, err := runner.Run(ctx, prog)

	outcome := &runOutcome{stats: stats, err: err, state: sim.State()}
	var illegal *engine.IllegalAction
	if errors.As(err, &illegal) {
		outcome.message = sim.Message()
	}
	if err != nil {
		logger.Info("script stopped", zap.Int("actions", stats.Actions), zap.Error(err))
	}
	return outcome
}
