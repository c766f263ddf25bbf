package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

func main() {
	username := flag.String("username", "", "name of the user to create")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	if strings.TrimSpace(*username) == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.Error("Failed to create backend", "error", err)
		os.Exit(1)
	}
	defer res.Cleanup()

	fd := int(os.Stdin.Fd())
	password, err := readPassword(os.Stdin, os.Stderr, term.IsTerminal(fd), func() ([]byte, error) {
		return term.ReadPassword(fd)
	})
	if err != nil {
		logger.Error("Failed to read password", "error", err)
		return
	}

	user, err := createUser(ctx, res.Store, *username, password)
	if err != nil {
		logger.Error("Failed to create user", "error", err, "username", *username)
		return
	}
	logger.Info("User created", "id", user.ID, "username", user.Username)
}

// readPassword prompts twice on a terminal. Otherwise the first line of in is
// taken as is, which lets scripts pipe the password in.
func readPassword(in io.Reader, prompt io.Writer, interactive bool, readTerminal func() ([]byte, error)) (string, error) {
	if !interactive {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(prompt, "Password: ")
	first, err := readTerminal()
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	fmt.Fprint(prompt, "Repeat password: ")
	second, err := readTerminal()
	fmt.Fprintln(prompt)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func createUser(ctx context.Context, store ledger.UserStore, username, password string) (core.User, error) {
	hash, err := core.HashPassword(password)
	if err != nil {
		return core.User{}, err
	}
	return store.CreateUser(ctx, core.NewUser{Username: strings.TrimSpace(username), PasswordHash: hash})
}
