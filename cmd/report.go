package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/dusk/internal/config"
)

// Artifact is one stored failure artifact.
type Artifact struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ArtifactReport lists the artifacts left behind by failed browser tests.
type ArtifactReport struct {
	Screenshots []Artifact `json:"screenshots"`
	ConsoleLogs []Artifact `json:"console_logs"`
	Sources     []Artifact `json:"sources"`
}

func newReportCmd() *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "List stored screenshots, console logs and page sources",
		Long:  `Walks the configured artifact directories and prints a JSON report of every file, newest first. Missing directories are reported as empty.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := collectArtifacts(config.Get().Browser)
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to serialize report to JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
	return reportCmd
}

func collectArtifacts(cfg config.BrowserConfig) (*ArtifactReport, error) {
	var report ArtifactReport
	var err error
	if report.Screenshots, err = listArtifacts(cfg.ScreenshotsDir); err != nil {
		return nil, err
	}
	if report.ConsoleLogs, err = listArtifacts(cfg.ConsoleLogDir); err != nil {
		return nil, err
	}
	if report.Sources, err = listArtifacts(cfg.SourceDir); err != nil {
		return nil, err
	}
	return &report, nil
}

func listArtifacts(dir string) ([]Artifact, error) {
	artifacts := []Artifact{}
	if dir == "" {
		return artifacts, nil
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		artifacts = append(artifacts, Artifact{Path: path, Size: info.Size(), Modified: info.ModTime()})
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read artifacts in %s: %w", dir, err)
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Modified.After(artifacts[j].Modified)
	})
	return artifacts, nil
}
