// Package dependencies provides centralized checking and messaging for
// optional runtime dependencies: the embedding generator's backing service
// and the cloud secondary's backing services.
package dependencies

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/engramhq/engram/pkg/config"
)

// Status represents the status of an optional dependency.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusDisabled    Status = "disabled"
	StatusMissing     Status = "missing"
)

// DependencyInfo contains information about one checked dependency.
type DependencyInfo struct {
	Name    string
	Status  Status
	URL     string
	Message string
}

// CheckResult contains the results of checking all optional dependencies.
type CheckResult struct {
	Embedding DependencyInfo
	Cloud     DependencyInfo
}

// Check checks every optional dependency and returns their status.
func Check(cfg *config.Config) *CheckResult {
	return &CheckResult{
		Embedding: checkEmbedding(cfg),
		Cloud:     checkCloud(cfg),
	}
}

func checkEmbedding(cfg *config.Config) DependencyInfo {
	info := DependencyInfo{Name: "Embedding service", URL: cfg.Embedding.BaseURL}

	if cfg.Embedding.Mode != "local" {
		info.Status = StatusAvailable
		info.Message = "configured for remote HTTP embeddings, skipping local reachability check"
		return info
	}

	if ok, err := reachable(cfg.Embedding.BaseURL+"/api/tags", 5*time.Second); ok {
		info.Status = StatusAvailable
		info.Message = "local embedding service is reachable"
	} else {
		info.Status = StatusMissing
		info.Message = fmt.Sprintf("local embedding service is not reachable: %v", err)
	}
	return info
}

func checkCloud(cfg *config.Config) DependencyInfo {
	info := DependencyInfo{Name: "Cloud secondary", URL: cfg.Cloud.VectorURL}

	if !cfg.Cloud.Enabled {
		info.Status = StatusDisabled
		info.Message = "cloud secondary is disabled in configuration"
		return info
	}

	if ok, err := reachable(cfg.Cloud.VectorURL+"/collections", 5*time.Second); ok {
		info.Status = StatusAvailable
		info.Message = "cloud vector service is reachable"
	} else {
		info.Status = StatusMissing
		info.Message = fmt.Sprintf("cloud vector service is not reachable: %v", err)
	}
	return info
}

func reachable(url string, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, err
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500, nil
}

// HasAnyMissing returns true if any dependency is missing.
func (r *CheckResult) HasAnyMissing() bool {
	return r.Embedding.Status == StatusMissing || r.Cloud.Status == StatusMissing
}

// FormatWarning formats a warning message for display.
func FormatWarning(result *CheckResult) string {
	var buf bytes.Buffer

	if result.Embedding.Status == StatusMissing {
		buf.WriteString("WARNING: embedding service is not available - storing memories will fail\n")
	}
	if result.Cloud.Status == StatusMissing {
		buf.WriteString("WARNING: cloud secondary is not available - sync will queue until it recovers\n")
	}
	if buf.Len() > 0 {
		buf.WriteString("   Run 'engram doctor' for details.\n")
	}
	return buf.String()
}

// FormatShortWarning formats a brief inline warning.
func FormatShortWarning(result *CheckResult) string {
	var warnings []string
	if result.Embedding.Status == StatusMissing {
		warnings = append(warnings, "embedding unavailable")
	}
	if result.Cloud.Status == StatusMissing {
		warnings = append(warnings, "cloud unavailable")
	}
	if len(warnings) == 0 {
		return ""
	}
	return fmt.Sprintf("[%s]", strings.Join(warnings, ", "))
}

// FormatDoctorReport formats a detailed doctor report section for
// dependency status.
func FormatDoctorReport(result *CheckResult) string {
	var buf bytes.Buffer

	buf.WriteString("Embedding service... ")
	writeStatusLine(&buf, result.Embedding)

	buf.WriteString("\nCloud secondary... ")
	writeStatusLine(&buf, result.Cloud)
	buf.WriteString("\n")

	return buf.String()
}

func writeStatusLine(buf *bytes.Buffer, info DependencyInfo) {
	switch info.Status {
	case StatusAvailable:
		buf.WriteString("OK\n")
	case StatusDisabled:
		buf.WriteString("DISABLED\n")
	default:
		buf.WriteString("NOT AVAILABLE\n")
	}
	buf.WriteString(fmt.Sprintf("  URL: %s\n", info.URL))
	buf.WriteString(fmt.Sprintf("  %s\n", info.Message))
}
