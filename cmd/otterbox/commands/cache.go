package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

// errCacheMiss is returned by "cache get" for absent keys.
var errCacheMiss = errors.New("cache miss")

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "inspect and manage the content cache",
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "write a cached value to stdout",
				ArgsUsage: "<key>",
				Action:    cacheGetAction,
			},
			{
				Name:      "set",
				Usage:     "store a value read from a file or stdin",
				ArgsUsage: "<key> [file]",
				Action:    cacheSetAction,
			},
			{
				Name:      "delete",
				Usage:     "remove a cached value",
				ArgsUsage: "<key>",
				Action:    cacheDeleteAction,
			},
			{
				Name:   "clear",
				Usage:  "remove every cached value",
				Action: cacheClearAction,
			},
			{
				Name:   "stats",
				Usage:  "print entry count and size as JSON",
				Action: cacheStatsAction,
			},
		},
	}
}

func keyArg(cmd *cli.Command) (string, error) {
	key := cmd.Args().First()
	if key == "" {
		return "", errors.New("missing key argument")
	}
	return key, nil
}

func cacheGetAction(ctx context.Context, cmd *cli.Command) error {
	key, err := keyArg(cmd)
	if err != nil {
		return err
	}

	application, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	dir, err := application.CacheDir()
	if err != nil {
		return err
	}

	rc, ok := dir.Get(ctx, key)
	if !ok {
		return fmt.Errorf("%w: %s", errCacheMiss, key)
	}
	defer func() { _ = rc.Close() }()

	_, err = io.Copy(cmd.Root().Writer, rc)
	return err
}

func cacheSetAction(ctx context.Context, cmd *cli.Command) error {
	key, err := keyArg(cmd)
	if err != nil {
		return err
	}

	var value []byte
	if name := cmd.Args().Get(1); name != "" && name != "-" {
		value, err = os.ReadFile(name)
	} else {
		value, err = io.ReadAll(cmd.Root().Reader)
	}
	if err != nil {
		return fmt.Errorf("failed to read value: %w", err)
	}

	application, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	dir, err := application.CacheDir()
	if err != nil {
		return err
	}

	dir.Set(ctx, key, value)
	return nil
}

func cacheDeleteAction(ctx context.Context, cmd *cli.Command) error {
	key, err := keyArg(cmd)
	if err != nil {
		return err
	}

	application, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	dir, err := application.CacheDir()
	if err != nil {
		return err
	}

	dir.Delete(ctx, key)
	return nil
}

func cacheClearAction(ctx context.Context, cmd *cli.Command) error {
	application, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	dir, err := application.CacheDir()
	if err != nil {
		return err
	}

	removed, err := dir.Clear(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.Root().Writer, "removed %d entries from %s\n", removed, dir.Root())
	return err
}

func cacheStatsAction(ctx context.Context, cmd *cli.Command) error {
	application, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	dir, err := application.CacheDir()
	if err != nil {
		return err
	}

	stats, err := dir.Stats(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
