// Command analyze runs one analysis over a CSV or JSON file and prints the
// result.
//
//	analyze -file q4.csv -persona Investor -format markdown
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"finstory/pkg/core/agent"
	"finstory/pkg/core/config"
	"finstory/pkg/core/ingest"
	"finstory/pkg/core/llm"
	"finstory/pkg/core/logger"
	"finstory/pkg/core/pipeline"
	"finstory/pkg/core/prompt"
	"finstory/pkg/core/report"
	"finstory/pkg/models"
)

func main() {
	file := flag.String("file", "", "input file (.csv or .json); - reads CSV from stdin")
	persona := flag.String("persona", "CFO", "CFO, Investor or Board")
	format := flag.String("format", "markdown", "json, markdown, html or pdf")
	out := flag.String("out", "", "write the report here instead of stdout")
	configPath := flag.String("config", os.Getenv("FINSTORY_CONFIG"), "path to the YAML config file")
	offline := flag.Bool("offline", false, "never call an external provider")
	flag.Parse()

	if err := run(*file, *persona, *format, *out, *configPath, *offline); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

func run(file, persona, formatName, out, configPath string, offline bool) error {
	if file == "" {
		return errors.New("-file is required")
	}
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LoggerConfig())

	series, filePersona, err := readInput(file)
	if err != nil {
		return err
	}
	if filePersona != "" && !isFlagSet("persona") {
		persona = filePersona
	}

	var provider llm.Provider
	if cfg.Insight.Enabled && !offline {
		provider = agent.NewManager(cfg.LLM, log).For(cfg.Insight.AgentType)
	}
	prompts := prompt.NewDefaultRegistry()
	if _, err := prompt.LoadFromDirectory(prompts, cfg.Insight.PromptDir, log); err != nil {
		log.Warn().Err(err).Msg("Failed to load prompt overrides, using built-in prompts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, runErr := pipeline.FromConfig(cfg, provider, prompts, log).Run(ctx, series, models.Persona(persona))
	if res == nil {
		return runErr
	}

	body, err := report.Render(res, format)
	if err != nil {
		return err
	}
	if err := write(out, body); err != nil {
		return err
	}
	return runErr
}

// readInput loads a series. JSON may be a bare array of rows or an object
// with "periods" and an optional "persona".
func readInput(file string) (models.PeriodSeries, string, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return models.PeriodSeries{}, "", err
	}

	if !strings.EqualFold(filepath.Ext(file), ".json") {
		series, err := ingest.ReadCSV(bytes.NewReader(data))
		return series, "", err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []map[string]interface{}
	var persona string
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := dec.Decode(&rows); err != nil {
			return models.PeriodSeries{}, "", fmt.Errorf("parse %s: %w", file, err)
		}
	} else {
		var req struct {
			Persona string                   `json:"persona"`
			Periods []map[string]interface{} `json:"periods"`
		}
		if err := dec.Decode(&req); err != nil {
			return models.PeriodSeries{}, "", fmt.Errorf("parse %s: %w", file, err)
		}
		rows, persona = req.Periods, req.Persona
	}
	series, err := ingest.FromRows(rows)
	return series, persona, err
}

func write(path string, body []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(body)
		return err
	}
	return os.WriteFile(path, body, 0o644)
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
