package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mdouchement/unionboard/pkg/libub"
	"github.com/pkg/errors"
)

// Login authenticates against a unionboard server and stores the credentials in filename.
func Login(ctx context.Context, filename string) error {
	cfg, err := Load(filename)
	if err != nil {
		return errors.Wrap(err, "could not load config")
	}

	prompt := "Endpoint: "
	if cfg.Endpoint != "" {
		prompt = fmt.Sprintf("Endpoint [%s]: ", cfg.Endpoint)
	}
	endpoint, err := readline.Line(prompt)
	if err != nil {
		return errors.Wrap(err, "could not read endpoint from stdin")
	}
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		cfg.Endpoint = endpoint
	}

	client, err := libub.NewDefaultClient(cfg.Endpoint)
	if err != nil {
		return errors.Wrap(err, "could not reach given endpoint")
	}

	if _, err = client.Version(ctx); err != nil {
		return errors.Wrap(err, "could not reach given endpoint")
	}

	cfg.Email, err = readline.Line("Email: ")
	if err != nil {
		return errors.Wrap(err, "could not read email from stdin")
	}

	password, err := readline.Password("Password: ")
	if err != nil {
		return errors.Wrap(err, "could not read password from stdin")
	}

	err = client.Login(ctx, cfg.Email, string(password))
	if err != nil {
		return errors.Wrap(err, "could not login")
	}
	cfg.Token = client.BearerToken()

	fmt.Println("Storing credentials in current directory as " + filename)
	return Save(filename, cfg)
}
