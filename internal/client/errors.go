package client

import (
	"fmt"
	"strings"

	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/pkg/errors"
)

// Message returns the text shown to the user for err.
func Message(err error) string {
	var (
		verr *cms.ValidationError
		uerr *cms.UploadError
		rerr *cms.RemoteError
	)

	switch {
	case errors.As(err, &verr):
		lines := []string{"Invalid draft:"}
		for _, f := range verr.Fields {
			lines = append(lines, fmt.Sprintf("  - %s %s", f.Field, f.Message))
		}
		return strings.Join(lines, "\n")
	case errors.As(err, &uerr):
		return "Upload failed: " + uerr.Error()
	case cms.IsUnauthorized(err):
		return "Unauthorized: run `ubctl login` with an administrator account"
	case errors.As(err, &rerr):
		return fmt.Sprintf("Server error on %s: %s", rerr.Collection, rerr.Error())
	case cms.IsNotFound(err):
		return "Not found: " + err.Error()
	}
	return err.Error()
}
