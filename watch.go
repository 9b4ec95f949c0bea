package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/wricardo/charles/render/remote"
	"github.com/wricardo/charles/render/terminal"
)

const watchHelp = "arrows/wasd move, p put, g get, r reset, q quit"

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "follow a server session in the terminal and drive it from the keyboard",
		ArgsUsage: "SESSION",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Usage: "base URL of the charles server (default: the configured server address)"},
		},
		Action: watch,
	}
}

func watch(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return cli.Exit("watch needs exactly one SESSION", 2)
	}
	sessionID := cmd.Args().First()

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	baseURL := cmd.String("api")
	if baseURL == "" {
		baseURL = loopbackURL(s.Server.Addr())
	}
	if !serverUp(baseURL) {
		return cli.Exit(fmt.Sprintf("no charles server at %s", baseURL), 1)
	}

	// the screen is ours; logs go to the file sink only
	logger := newLogger(s, nil)
	defer logger.Sync()

	screen, err := terminal.Open()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer screen.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	viewer := remote.New(baseURL, sessionID, screen, logger)
	followErr := make(chan error, 1)
	go func() {
		followErr <- viewer.Follow(ctx)
		cancel()
		// wake NextKey
		screen.Close()
	}()
	screen.SetStatus(watchHelp)

	for ctx.Err() == nil {
		ev := screen.NextKey()
		if ev == nil {
			break
		}
		action := terminal.KeyAction(ev)
		switch action {
		case "":
			continue
		case terminal.KeyQuit:
			cancel()
			continue
		}

		if _, err := viewer.Act(ctx, action); err != nil {
			logger.Warn("action failed", zap.String("action", action), zap.Error(err))
			screen.SetStatus(err.Error())
			continue
		}
		if msg := viewer.Message(); msg != "" {
			screen.SetStatus(msg)
		} else {
			screen.SetStatus(watchHelp)
		}
	}

	cancel()
	return <-followErr
}
