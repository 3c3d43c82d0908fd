package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forumpulse/internal/service"
	"github.com/spf13/cobra"
)

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	switch {
	case isSchemaError(err):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the database schema looks outdated. Start the server once to migrate it.")
	case errors.Is(err, service.ErrIndexUnavailable):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: the trending index is missing; listings fall back to recent threads.")
	}

	return err
}

// isSchemaError checks if an error is a SQLite schema mismatch.
func isSchemaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "has no column")
}
