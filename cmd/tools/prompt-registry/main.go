// cmd/tools/prompt-registry/main.go
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nlweb-orchestrator/internal/core/prompt"
	"nlweb-orchestrator/pkg/registry"
)

const defaultPath = "configs/prompt-registry.json"

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	exportCmd := flag.NewFlagSet("export-defaults", flag.ExitOnError)

	// Add command flags
	addPath := addCmd.String("path", defaultPath, "Path to registry file")
	name := addCmd.String("name", "", "Prompt name (e.g., RankingPrompt)")
	itemType := addCmd.String("itemType", "", "schema.org type the prompt is registered for (e.g., Recipe)")
	description := addCmd.String("description", "", "Description")
	templateFile := addCmd.String("template", "", "File holding the prompt template")
	schemaFile := addCmd.String("schema", "", "File holding the JSON output schema")
	level := addCmd.String("level", "low", "Model level (low, high)")

	// Update command flags
	updatePath := updateCmd.String("path", defaultPath, "Path to registry file")
	updName := updateCmd.String("name", "", "Prompt name to update")
	updType := updateCmd.String("itemType", "", "schema.org type of the prompt to update")
	field := updateCmd.String("field", "", "Field to update (level, description, template, schema)")
	value := updateCmd.String("value", "", "New value; a file path for template and schema")

	validatePath := validateCmd.String("path", defaultPath, "Path to registry file")
	listPath := listCmd.String("path", defaultPath, "Path to registry file")
	exportPath := exportCmd.String("path", defaultPath, "Path to write the built-in prompts to")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *name == "" || *itemType == "" || *templateFile == "" {
			fmt.Println("Error: name, itemType and template are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		var p registry.Prompt
		p, err = buildPrompt(*name, *itemType, *description, *level, *templateFile, *schemaFile)
		if err == nil {
			err = addPrompt(*addPath, p)
		}
		if err == nil {
			fmt.Printf("Added prompt: %s\n", p.Key())
		}

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *updName == "" || *updType == "" || *field == "" || *value == "" {
			fmt.Println("Error: name, itemType, field and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		err = updatePrompt(*updatePath, *updName, *updType, *field, *value)
		if err == nil {
			fmt.Printf("Updated prompt %s@%s, field %s\n", *updName, *updType, *field)
		}

	case "validate":
		validateCmd.Parse(os.Args[2:])
		var n int
		n, err = validateRegistry(*validatePath)
		if err == nil {
			fmt.Printf("Registry validation passed. Found %d prompts.\n", n)
		}

	case "list":
		listCmd.Parse(os.Args[2:])
		err = listPrompts(*listPath)

	case "export-defaults":
		exportCmd.Parse(os.Args[2:])
		err = exportDefaults(*exportPath)
		if err == nil {
			fmt.Printf("Wrote %d built-in prompts to %s\n", len(prompt.DefaultPrompts()), *exportPath)
		}

	case "help":
		fallthrough
	default:
		help()
		return
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func buildPrompt(name, itemType, description, level, templateFile, schemaFile string) (registry.Prompt, error) {
	tmpl, err := os.ReadFile(templateFile)
	if err != nil {
		return registry.Prompt{}, fmt.Errorf("read template: %w", err)
	}
	p := registry.Prompt{
		Name:        name,
		ItemType:    itemType,
		Description: description,
		Template:    strings.TrimSpace(string(tmpl)),
		Level:       level,
	}
	if schemaFile != "" {
		if p.OutputSchema, err = readSchema(schemaFile); err != nil {
			return registry.Prompt{}, err
		}
	}
	return p, nil
}

func readSchema(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return schema, nil
}

func loadOrCreate(path string) (*registry.PromptRegistry, error) {
	reg, err := registry.LoadRegistry(path)
	if errors.Is(err, os.ErrNotExist) {
		return &registry.PromptRegistry{Version: "1.0.0"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	return reg, nil
}

func addPrompt(path string, p registry.Prompt) error {
	reg, err := loadOrCreate(path)
	if err != nil {
		return err
	}
	if _, ok := reg.Find(p.Name, p.ItemType); ok {
		return fmt.Errorf("prompt %s already exists", p.Key())
	}
	reg.Upsert(p)
	return save(path, reg)
}

func updatePrompt(path, name, itemType, field, value string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	p, ok := reg.Find(name, itemType)
	if !ok {
		return fmt.Errorf("prompt %s@%s not found", name, itemType)
	}

	switch field {
	case "level":
		p.Level = value
	case "description":
		p.Description = value
	case "template":
		data, err := os.ReadFile(value)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		p.Template = strings.TrimSpace(string(data))
	case "schema":
		if p.OutputSchema, err = readSchema(value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	reg.Upsert(p)
	return save(path, reg)
}

func validateRegistry(path string) (int, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load registry: %w", err)
	}
	if len(reg.Prompts) == 0 {
		return 0, fmt.Errorf("registry contains no prompts")
	}
	if err := reg.Validate(); err != nil {
		return 0, err
	}
	return len(reg.Prompts), nil
}

func listPrompts(path string) error {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	for _, p := range reg.Prompts {
		level := p.Level
		if level == "" {
			level = "low"
		}
		fmt.Printf("%-45s %-5s %s\n", p.Key(), level, strings.Join(prompt.Placeholders(p.Template), ", "))
	}
	return nil
}

func exportDefaults(path string) error {
	reg := &registry.PromptRegistry{Version: "1.0.0", Prompts: prompt.DefaultPrompts()}
	return save(path, reg)
}

func save(path string, reg *registry.PromptRegistry) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return registry.SaveRegistry(path, reg)
}

func help() {
	fmt.Print(`
Usage: prompt-registry <command> [flags]

Commands:
  add              Add a prompt template to the registry
  update           Update one field of an existing prompt
  validate         Validate the registry file
  list             List prompts with their level and placeholders
  export-defaults  Write the built-in prompts to a registry file
  help             Show this help message

Examples:
  prompt-registry add -name RankingPrompt -itemType Movie -template ranking-movie.txt -schema ranking.json -level low
  prompt-registry update -name RankingPrompt -itemType Movie -field level -value high
  prompt-registry validate -path configs/prompt-registry.json

Use 'prompt-registry <command> -h' for more information about a command.
` + "\n")
}
