package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the sites the configured backends hold items for",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer app.Close()

		sites, err := app.FanOut.Sites(cmd.Context())
		if err != nil {
			return err
		}
		for _, s := range sites {
			fmt.Fprintln(cmd.OutOrStdout(), s)
		}
		return nil
	},
}
