package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nlweb-orchestrator/internal/models"
)

var (
	loadSite      string
	loadBackend   string
	loadBatchSize int
)

var loadCmd = &cobra.Command{
	Use:   "load [file...]",
	Short: "Upsert schema.org items from JSON, JSONL or url<TAB>json files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadSite, "site", "", "site the items belong to (required unless every item names one)")
	loadCmd.Flags().StringVar(&loadBackend, "backend", "", "writable backend to load into (default: all)")
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 100, "items per upsert call")
}

func runLoad(cmd *cobra.Command, args []string) error {
	var items []models.CandidateItem
	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		parsed, err := ParseDocuments(f, loadSite)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		items = append(items, parsed...)
	}
	if len(items) == 0 {
		return fmt.Errorf("no items found")
	}

	app, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer app.Close()

	total := 0
	for _, batch := range batches(items, loadBatchSize) {
		n, err := app.FanOut.Upsert(cmd.Context(), loadBackend, batch)
		total += n
		if err != nil {
			return fmt.Errorf("after %d items: %w", total, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d items from %d file(s)\n", total, len(args))
	return nil
}

func batches(items []models.CandidateItem, size int) [][]models.CandidateItem {
	if size <= 0 {
		size = len(items)
	}
	var out [][]models.CandidateItem
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

// ParseDocuments reads a JSON array, JSON lines, or lines of url<TAB>json.
// Each JSON value may be one schema.org object or an array of them.
func ParseDocuments(r io.Reader, site string) ([]models.CandidateItem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var objs []map[string]interface{}
		if err := json.Unmarshal(trimmed, &objs); err != nil {
			return nil, err
		}
		return toItems(objs, "", site)
	}

	var items []models.CandidateItem
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		url := ""
		if text[0] != '{' && text[0] != '[' {
			parts := strings.SplitN(text, "\t", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("line %d: expected json or url<TAB>json", line)
			}
			url, text = parts[0], parts[1]
		}
		objs, err := decodeObjects(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		parsed, err := toItems(objs, url, site)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, parsed...)
	}
	return items, sc.Err()
}

func decodeObjects(text string) ([]map[string]interface{}, error) {
	if strings.HasPrefix(text, "[") {
		var objs []map[string]interface{}
		err := json.Unmarshal([]byte(text), &objs)
		return objs, err
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	return []map[string]interface{}{obj}, nil
}

func toItems(objs []map[string]interface{}, url, site string) ([]models.CandidateItem, error) {
	items := make([]models.CandidateItem, 0, len(objs))
	for _, obj := range objs {
		item := models.CandidateItem{
			URL:    firstString(obj, "url", "@id"),
			Name:   firstString(obj, "name", "headline", "title"),
			Site:   firstString(obj, "site"),
			Schema: obj,
		}
		// wrapped form: {"url":..,"name":..,"site":..,"schema_object":{..}}
		if inner, ok := obj["schema_object"].(map[string]interface{}); ok {
			item.Schema = inner
			if item.Name == "" {
				item.Name = firstString(inner, "name", "headline", "title")
			}
		}
		if item.URL == "" {
			item.URL = url
		}
		if item.Site == "" {
			item.Site = site
		}
		if item.Site == "" {
			return nil, fmt.Errorf("item %q has no site; pass --site", item.Name)
		}
		items = append(items, item)
	}
	return items, nil
}

func firstString(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
