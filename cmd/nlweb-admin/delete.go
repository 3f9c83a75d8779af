package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteFromFile string

var deleteCmd = &cobra.Command{
	Use:   "delete [identity...]",
	Short: "Delete items by stable identity (their URL, or sha:<hash> for items without one)",
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().StringVar(&deleteFromFile, "from-file", "", "file with one identity per line")
}

func runDelete(cmd *cobra.Command, args []string) error {
	ids := append([]string(nil), args...)
	if deleteFromFile != "" {
		f, err := os.Open(deleteFromFile)
		if err != nil {
			return err
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if id := strings.TrimSpace(sc.Text()); id != "" && !strings.HasPrefix(id, "#") {
				ids = append(ids, id)
			}
		}
		f.Close()
		if err := sc.Err(); err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("no identities given")
	}

	app, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	n, err := app.FanOut.DeleteItems(cmd.Context(), ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d of %d items\n", n, len(ids))
	return nil
}
