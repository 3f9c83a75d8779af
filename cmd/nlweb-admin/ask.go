package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"nlweb-orchestrator/internal/models"
)

var (
	askSite string
	askMode string
	askPrev []string
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Run one query and print the aggregated response",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSite, "site", "", "site or comma-separated sites (default: all)")
	askCmd.Flags().StringVar(&askMode, "mode", "list", "list, summarize or generate")
	askCmd.Flags().StringSliceVar(&askPrev, "prev", nil, "earlier queries of the conversation")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw response as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	mode, ok := models.ParseMode(askMode)
	if !ok {
		return fmt.Errorf("unknown mode %q", askMode)
	}

	app, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer app.Close()

	req := models.NewQueryRequest(strings.Join(args, " "))
	req.Site = askSite
	req.Mode = mode
	req.PrevQueries = askPrev
	req.Streaming = false

	resp, err := app.Orchestrator.Run(cmd.Context(), req, nil)
	if resp == nil {
		return err
	}
	if askJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResponse(cmd.OutOrStdout(), resp)
	return err
}

func printResponse(w io.Writer, resp *models.Response) {
	for _, m := range resp.Messages {
		switch m.MessageType {
		case models.MessageDecontextualizedQuery:
			fmt.Fprintf(w, "(searching for: %s)\n", m.DecontextualizedQuery)
		case models.MessageAskUser, models.MessageSiteIsIrrelevant, models.MessageNoResults, models.MessageRemember:
			fmt.Fprintln(w, m.Message)
		}
	}
	if resp.Answer != "" {
		fmt.Fprintf(w, "\n%s\n", resp.Answer)
	}
	if resp.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", resp.Summary)
	}
	for i, r := range resp.Results {
		fmt.Fprintf(w, "\n%2d. [%d] %s\n    %s\n", i+1, r.Score, r.Name, r.URL)
		if r.Description != "" {
			fmt.Fprintf(w, "    %s\n", r.Description)
		}
	}
}
