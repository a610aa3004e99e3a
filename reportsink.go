package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// ============================================================================
// REPORT SINK - renders a ScanResult to the configured output
// ============================================================================

// reportEnvelope is the on-disk/stdout shape of a scan report.
type reportEnvelope struct {
	Modules   []ModuleRef     `json:"modules"`
	Providers []ProviderRef   `json:"providers"`
	Runtimes  []RuntimeRef    `json:"runtimes"`
	Files     []string        `json:"files"`
	Warnings  []ScanWarning   `json:"warnings"`
	Analysis  AnalysisResult  `json:"analysis"`
	Graph     graphJSON       `json:"graph"`
}

// writeReport renders a ScanResult in the requested format and writes it to
// path, or to stdout when path is empty.
func writeReport(result ScanResult, format string, path string) error {
	switch format {
	case "", "json":
		return writeJSONReport(result, path)
	default:
		return newDriftError(ErrReport, "writeReport", fmt.Errorf("unsupported report format %q", format))
	}
}

func writeJSONReport(result ScanResult, path string) error {
	graph := graphJSON{}
	if result.Graph != nil {
		var err error
		graph, err = result.Graph.ExportJSON()
		if err != nil {
			return newDriftError(ErrReport, "writeJSONReport", err)
		}
	}

	envelope := reportEnvelope{
		Modules:   result.Modules,
		Providers: result.Providers,
		Runtimes:  result.Runtimes,
		Files:     result.Files,
		Warnings:  result.Warnings,
		Analysis:  result.Analysis,
		Graph:     graph,
	}

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return newDriftError(ErrReport, "writeJSONReport", err)
	}

	if path == "" {
		fmt.Println(string(data))
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return newDriftError(ErrIO, "writeJSONReport", err).WithPath(path)
	}
	slog.Info("report written", "path", path, "findings", len(result.Analysis.Findings))
	return nil
}
