package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type StringListReport struct {
	Title string
	Items []string
}

var (
	GlobalStringListReport StringListReport
	ReportPath             = "builds"
	reportMu               sync.Mutex
)

func init() {
	GlobalStringListReport = StringListReport{
		Title: "FetchedSources",
		Items: []string{},
	}
}

// SetReportTitle names the report file written by WriteListFetchedToFile.
func SetReportTitle(title string) {
	reportMu.Lock()
	defer reportMu.Unlock()
	GlobalStringListReport.Title = title
}

// AddFetchedSource records one line of the run report.
func AddFetchedSource(item string) {
	reportMu.Lock()
	defer reportMu.Unlock()
	GlobalStringListReport.Items = append(GlobalStringListReport.Items, item)
}

// WriteListFetchedToFile appends the GlobalStringListReport to a text file
// named after its title, e.g. fetchurl-FetchedSources.txt, and resets the list.
func WriteListFetchedToFile() (string, error) {
	reportMu.Lock()
	defer reportMu.Unlock()

	if err := os.MkdirAll(ReportPath, 0755); err != nil {
		return "", fmt.Errorf("creating base path: %w", err)
	}

	reportFullPath := filepath.Join(ReportPath, fmt.Sprintf("fetchurl-%s.txt", sanitizeTitle(GlobalStringListReport.Title)))

	f, err := os.OpenFile(reportFullPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	for _, item := range GlobalStringListReport.Items {
		if _, err := fmt.Fprintln(f, item); err != nil {
			return "", fmt.Errorf("writing to file: %w", err)
		}
	}

	GlobalStringListReport.Items = []string{}
	if _, err := fmt.Fprintln(f); err != nil {
		return "", fmt.Errorf("writing new line to file: %w", err)
	}

	return reportFullPath, nil
}

// sanitizeTitle keeps ASCII letters and digits, replacing everything else with '_'.
func sanitizeTitle(title string) string {
	if title == "" {
		return "untitled"
	}
	safe := make([]rune, 0, len(title))
	for _, r := range title {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			safe = append(safe, r)
		} else {
			safe = append(safe, '_')
		}
	}
	return string(safe)
}
