package client

import (
	"github.com/pkg/errors"
)

// Logout forgets the credentials stored in filename.
// Access tokens are stateless, they stay valid until they expire.
func Logout(filename string) error {
	return errors.Wrap(Remove(filename), "could not remove credentials file")
}
