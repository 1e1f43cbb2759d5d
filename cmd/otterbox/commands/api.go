package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/otterbox/internal/client"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "store account credentials and obtain an access token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "username",
				Aliases:  []string{"u"},
				Usage:    "account username",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "password",
				Usage: "account password (prompted for when omitted)",
			},
		},
		Action: loginAction,
	}
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	application, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	password := cmd.String("password")
	if password == "" {
		password, err = readPassword(cmd.Root().Reader, cmd.Root().ErrWriter)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
	}

	if err := application.Login(ctx, cmd.String("username"), password); err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.Root().Writer, "logged in as", cmd.String("username"))
	return err
}

// readPassword prompts without echo when r is a terminal and reads one line otherwise.
func readPassword(r io.Reader, prompt io.Writer) (string, error) {
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(prompt, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "GET an API path and write the response body to stdout",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "cached",
				Usage: "answer from the content cache and store fetched bodies",
			},
		},
		Action: getAction,
	}
}

func getAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().First() == "" {
		return errors.New("missing path argument")
	}
	path := requestKey(cmd.Args().First())

	application, shutdown, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer shutdown()

	out := cmd.Root().Writer
	cached := cmd.Bool("cached")

	if cached {
		if rc, ok := application.Cache().Get(ctx, path); ok {
			defer func() { _ = rc.Close() }()
			_, err := io.Copy(out, rc)
			return err
		}
	}

	var body []byte
	if err := application.Client().Get(ctx, path, client.Raw(&body)); err != nil {
		return err
	}

	if cached {
		application.Cache().Set(ctx, path, body)
	}

	_, err = out.Write(body)
	return err
}

// requestKey gives relative paths the leading slash the gateway's request URIs
// carry, so both front ends share cache entries. Absolute URLs are kept as is.
func requestKey(path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() && u.Host != "" {
		return path
	}
	return "/" + strings.TrimLeft(path, "/")
}
