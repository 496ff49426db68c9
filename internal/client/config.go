package client

import (
	"encoding/json"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// CredentialsFile is the file written by Login in the current folder.
const CredentialsFile = ".ubctl"

// A Config holds client's configuration.
// Values stored in the credentials file are overridden by UBCTL_* environment variables.
type Config struct {
	Endpoint string        `json:"endpoint" envconfig:"ENDPOINT"`
	Email    string        `json:"email"    ignored:"true"`
	Token    string        `json:"token"    envconfig:"TOKEN"`
	Debounce time.Duration `json:"-"        envconfig:"DEBOUNCE" default:"100ms"`
}

// Load gets the configuration from filename and the environment.
// A missing file is not an error, the client is then anonymous unless UBCTL_TOKEN is set.
func Load(filename string) (Config, error) {
	var cfg Config

	payload, err := os.ReadFile(filename)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return cfg, errors.Wrap(err, "could not read credentials file")
	default:
		if err = json.Unmarshal(payload, &cfg); err != nil {
			return cfg, errors.Wrap(err, "could not parse credentials file")
		}
	}

	err = envconfig.Process("ubctl", &cfg)
	return cfg, errors.Wrap(err, "could not read environment")
}

// Save stores the configuration in filename, readable by the current user only.
func Save(filename string, cfg Config) error {
	payload, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize config")
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", filename)
	}
	defer f.Close()

	// OpenFile does not change the mode of an existing file.
	if err = f.Chmod(0600); err != nil {
		return errors.Wrapf(err, "could not protect %s", filename)
	}

	_, err = f.Write(payload)
	if err != nil {
		return errors.Wrap(err, "could not store credentials")
	}

	return errors.Wrap(f.Sync(), "could not store credentials")
}

// Remove removes the credentials file.
func Remove(filename string) error {
	err := os.Remove(filename)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
