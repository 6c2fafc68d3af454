package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func requireOneID(cmd *cobra.Command, args []string) error {
	return requireExactlyArgs(1, "evidence id is required")(cmd, args)
}
