// Command analyze prints reachability reports for world files. Arguments may
// be files or directories; directories are scanned for *.world files. With
// no arguments the worlds directory is scanned.
//
// The exit status is 1 when a world cannot be read or its ball is walled off
// from the robot.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/world"
	"github.com/wricardo/charles/game/worlds"
)

// Result is one analyzed file
type Result struct {
	File   string         `json:"file"`
	Report *worlds.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// OK reports whether the world loaded and its ball is reachable
func (r Result) OK() bool {
	return r.Error == "" && r.Report != nil && r.Report.BallReachable
}

func main() {
	if err := newCommand(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		code := 1
		if exit, ok := err.(cli.ExitCoder); ok {
			code = exit.ExitCode()
		}
		os.Exit(code)
	}
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "report how much of each world the robot can reach",
		ArgsUsage: "[FILE|DIR ...]",
		Writer:    out,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "width", Value: world.DefaultWidth, Usage: "grid width"},
			&cli.IntFlag{Name: "height", Value: world.DefaultHeight, Usage: "grid height"},
			&cli.BoolFlag{Name: "json", Usage: "print the reports as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args().Slice()
			if len(args) == 0 {
				args = []string{"worlds"}
			}
			files, err := collect(args)
			if err != nil {
				return err
			}

			results := analyzeAll(files, int(cmd.Int("width")), int(cmd.Int("height")))
			if cmd.Bool("json") {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else if err := writeText(out, results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if !r.OK() {
					failed++
				}
			}
			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d worlds have problems", failed, len(results)), 1)
			}
			return nil
		},
		// main owns the exit status
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

// collect expands directories into their world files, sorted by name
func collect(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*"+worlds.Ext))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}

func analyzeAll(files []string, width, height int) []Result {
	results := make([]Result, 0, len(files))
	for _, file := range files {
		r, err := worlds.AnalyzeFile(file, width, height)
		res := Result{File: file, Report: r}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results
}

func writeText(w io.Writer, results []Result) error {
	for i, r := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if r.Error != "" {
			if _, err := fmt.Fprintf(w, "=== %s ===\nERROR: %s\n", engine.WorldNameFromPath(r.File), r.Error); err != nil {
				return err
			}
			continue
		}
		if err := r.Report.Write(w, engine.WorldNameFromPath(r.File)); err != nil {
			return err
		}
	}
	return nil
}
