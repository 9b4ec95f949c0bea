// Command charles drives Charles the robot.
//
// Subcommands:
//
//	serve      HTTP server with the REST API, WebSocket redraws and an /mcp endpoint
//	mcp        MCP stdio server; reuses a running server or starts an internal one
//	run        runs a robot script in the terminal
//	watch      follows a server session in the terminal, driven from the keyboard
//	validate   checks world files
//	analyze    prints reachability reports for world files
//
// Settings come from charles.yaml, .env and CHARLES_* variables; flags
// override them.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wricardo/charles/logging"
	"github.com/wricardo/charles/settings"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "charles"
)

func main() {
	err := newApp(os.Stdout, os.Stderr).Run(context.Background(), os.Args)
	if err == nil {
		return
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(os.Stderr, "Error:", msg)
	}
	code := 1
	if exit, ok := err.(cli.ExitCoder); ok {
		code = exit.ExitCode()
	}
	os.Exit(code)
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      AppName,
		Usage:     "put a robot in a grid world and tell it what to do",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (default ./charles.yaml)"},
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before the config"},
			&cli.StringFlag{Name: "log-level", Usage: "log level (debug, info, warn, error)"},
			&cli.BoolFlag{Name: "debug", Usage: "debug logging with caller information"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
			runCommand(),
			watchCommand(),
			validateCommand(),
			analyzeCommand(),
		},
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

// loadSettings loads .env and the config file named by the global flags
func loadSettings(cmd *cli.Command) (*settings.Settings, error) {
	if err := settings.LoadDotEnv(cmd.String("env-file")); err != nil {
		return nil, err
	}
	s, err := settings.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if cmd.IsSet("log-level") {
		s.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("debug") {
		s.Log.Debug = cmd.Bool("debug")
	}
	return s, nil
}

func logOptions(s *settings.Settings) logging.Options {
	return logging.Options{
		Level:      s.Log.Level,
		Format:     s.Log.Format,
		File:       s.Log.File,
		MaxSizeMB:  s.Log.MaxSizeMB,
		MaxBackups: s.Log.MaxBackups,
		MaxAgeDays: s.Log.MaxAgeDays,
		Compress:   s.Log.Compress,
		Debug:      s.Log.Debug,
		Name:       AppName,
	}
}

// newLogger builds the logger for s. Console output goes to w; pass nil to
// keep only the file sink, e.g. while the terminal UI owns the screen.
func newLogger(s *settings.Settings, w io.Writer) *zap.Logger {
	if w == nil {
		w = io.Discard
	}
	return logging.NewWithWriter(logOptions(s), zapcore.AddSync(w))
}
