package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"ticketflow/internal/domain"
)

// ExecRunner executes a ticket's verification command through the shell and
// collects artifacts from a per-ticket directory. Implements the board's
// VerificationRunner port.
type ExecRunner struct {
	// ArtifactsDir is the root under which each ticket gets its own
	// subdirectory. The command runs with TF_ARTIFACTS_DIR pointing at it.
	ArtifactsDir string
	// Workdir is the working directory for the command; empty means inherit.
	Workdir string
	// Timeout bounds a single run; zero means no deadline.
	Timeout time.Duration
	// AssetsDir is where golden images are resolved from.
	AssetsDir string
}

const metricsFile = "metrics.json"

// Run executes the ticket's verification command. A missing command is an
// invocation error; the orchestrator reverts the ticket on it. A command that
// runs and exits non-zero is a completed, failed verification.
func (r ExecRunner) Run(ctx context.Context, t domain.Ticket) (domain.VerificationResult, error) {
	if t.VerificationCommand == "" {
		return domain.VerificationResult{}, fmt.Errorf("ticket %s has no verification command", t.ID)
	}
	dir, err := r.prepareArtifactsDir(t)
	if err != nil {
		return domain.VerificationResult{}, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", t.VerificationCommand)
	cmd.Dir = r.Workdir
	cmd.Env = append(os.Environ(),
		"TF_TICKET_ID="+t.ID,
		"TF_ARTIFACTS_DIR="+dir,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); !ok {
			// Couldn't be started at all (shell missing, context dead, ...).
			return domain.VerificationResult{}, fmt.Errorf("invoke %q: %w", t.VerificationCommand, runErr)
		}
	}

	res := domain.VerificationResult{
		Success:       runErr == nil,
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ArtifactsPath: dir,
		DurationMs:    duration.Milliseconds(),
	}
	res.Metrics = readMetrics(dir)
	if line := visualDiffLine(dir); line != "" {
		res.Stdout += line + "\n"
	}
	return res, nil
}

// visualDiffLine compares the before and after captures when a run produced
// both, writing diff.png next to them. The summary joins the command output so
// it lands in the ticket log. Comparison problems are reported, not fatal.
func visualDiffLine(dir string) string {
	before := filepath.Join(dir, "before.png")
	after := filepath.Join(dir, "after.png")
	if _, err := os.Stat(before); err != nil {
		return ""
	}
	if _, err := os.Stat(after); err != nil {
		return ""
	}
	report, err := CompareImages(before, after, filepath.Join(dir, "diff.png"))
	if err != nil {
		return fmt.Sprintf("visual diff: %v", err)
	}
	return fmt.Sprintf("visual diff: %d/%d pixels differ (%.2f%%)",
		report.DiffPixels, report.TotalPixels, report.DiffRatio*100)
}

// prepareArtifactsDir creates the per-ticket directory and seeds the before
// slot from the ticket's golden image when one is configured.
func (r ExecRunner) prepareArtifactsDir(t domain.Ticket) (string, error) {
	root := r.ArtifactsDir
	if root == "" {
		root = "artifacts"
	}
	dir := filepath.Join(root, t.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	if t.GoldenImage != "" {
		src := t.GoldenImage
		if !filepath.IsAbs(src) && r.AssetsDir != "" {
			src = filepath.Join(r.AssetsDir, src)
		}
		if err := copyFile(src, filepath.Join(dir, "before.png")); err != nil {
			return "", fmt.Errorf("seed golden image: %w", err)
		}
	}
	return dir, nil
}

// readMetrics parses metrics.json if the command produced one. Absent or
// malformed metrics are not an error.
func readMetrics(dir string) *domain.Metrics {
	data, err := os.ReadFile(filepath.Join(dir, metricsFile))
	if err != nil {
		return nil
	}
	var m domain.Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return &m
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
