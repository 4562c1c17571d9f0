package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
)

// LoadFromDirectory loads every .json prompt under dir into the registry,
// overriding built-ins with the same ID. Expected structure:
//
//	dir/
//	  insight/
//	    cfo.json      -> "insight.cfo"
//	    investor.json -> "insight.investor"
//
// A missing directory is not an error; it returns zero prompts loaded.
func LoadFromDirectory(r *Registry, dir string, logger zerolog.Logger) (int, error) {
	if dir == "" {
		return 0, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Warn().Str("dir", dir).Msg("prompt directory not found, using built-in prompts")
		return 0, nil
	}

	loaded := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip directories and non-JSON files
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		var pt PromptTemplate
		if err := json.Unmarshal(data, &pt); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		// Auto-generate ID from path if not specified
		if pt.ID == "" {
			pt.ID = generateIDFromPath(path, dir)
		}

		// Auto-detect category from folder name if not specified
		if pt.Category == "" {
			pt.Category = detectCategory(path, dir)
		}

		if err := r.Register(&pt); err != nil {
			return fmt.Errorf("failed to register %s: %w", pt.ID, err)
		}
		loaded++
		return nil
	})
	if err != nil {
		return loaded, fmt.Errorf("failed to load prompts: %w", err)
	}

	logger.Info().Int("count", loaded).Str("dir", dir).Msg("loaded prompt overrides")
	return loaded, nil
}

// generateIDFromPath creates a prompt ID from the file path
// e.g., "insight/cfo.json" -> "insight.cfo"
func generateIDFromPath(path string, baseDir string) string {
	relPath, _ := filepath.Rel(baseDir, path)
	relPath = strings.TrimSuffix(relPath, ".json")
	relPath = strings.ReplaceAll(relPath, string(filepath.Separator), ".")
	return strings.ToLower(relPath)
}

// detectCategory extracts the category from the folder structure
func detectCategory(path string, baseDir string) string {
	relPath, _ := filepath.Rel(baseDir, path)
	parts := strings.Split(relPath, string(filepath.Separator))
	if len(parts) > 1 {
		return parts[0]
	}
	return "default"
}

var templateFuncs = template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
}

// RenderUserPrompt executes the user prompt template with the given context.
// Declared variables that are missing take their default; a missing required
// variable is an error.
func RenderUserPrompt(pt *PromptTemplate, ctx *PromptExecutionContext) (string, error) {
	if pt.UserPromptTmpl == "" {
		return "", nil
	}

	vars := make(map[string]interface{}, len(ctx.Variables)+len(pt.Variables))
	for k, v := range ctx.Variables {
		vars[k] = v
	}
	for _, v := range pt.Variables {
		if _, ok := vars[v.Name]; ok {
			continue
		}
		if v.Required {
			return "", fmt.Errorf("prompt %s: missing required variable %s", pt.ID, v.Name)
		}
		vars[v.Name] = v.Default
	}

	tmpl, err := template.New(pt.ID).Funcs(templateFuncs).Option("missingkey=zero").Parse(pt.UserPromptTmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
