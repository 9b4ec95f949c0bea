package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/worldfile"
	"github.com/wricardo/charles/game/worlds"
)

func gridFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "width", Usage: "grid width (default from settings)"},
		&cli.IntFlag{Name: "height", Usage: "grid height (default from settings)"},
	}
}

// gridSize returns the settings' grid size with flag overrides applied
func gridSize(cmd *cli.Command) (int, int, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return 0, 0, err
	}
	width, height := s.Worlds.Width, s.Worlds.Height
	if cmd.IsSet("width") {
		width = int(cmd.Int("width"))
	}
	if cmd.IsSet("height") {
		height = int(cmd.Int("height"))
	}
	return width, height, nil
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "check world files against the grid size",
		ArgsUsage: "FILE...",
		Flags:     gridFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				return cli.Exit("validate needs at least one FILE", 2)
			}
			width, height, err := gridSize(cmd)
			if err != nil {
				return err
			}

			out := cmd.Root().Writer
			failed := 0
			for _, file := range files {
				if err := validateWorldFile(file, width, height); err != nil {
					failed++
					fmt.Fprintf(out, "FAIL %s: %v\n", file, err)
					continue
				}
				fmt.Fprintf(out, "OK   %s\n", file)
			}

			fmt.Fprintf(out, "%d valid, %d invalid\n", len(files)-failed, failed)
			if failed > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func validateWorldFile(path string, width, height int) error {
	d, err := engine.ReadWorldFile(path)
	if err != nil {
		return err
	}
	return worldfile.Validate(d, width, height)
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "print reachability reports for world files",
		ArgsUsage: "FILE...",
		Flags:     gridFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				return cli.Exit("analyze needs at least one FILE", 2)
			}
			width, height, err := gridSize(cmd)
			if err != nil {
				return err
			}

			out := cmd.Root().Writer
			problems := 0
			for i, file := range files {
				if i > 0 {
					fmt.Fprintln(out)
				}
				name := engine.WorldNameFromPath(file)
				r, err := worlds.AnalyzeFile(file, width, height)
				if err != nil {
					problems++
					fmt.Fprintf(out, "=== %s ===\nERROR: %v\n", name, err)
					continue
				}
				if !r.BallReachable {
					problems++
				}
				if err := r.Write(out, name); err != nil {
					return err
				}
			}
			if problems > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}
