// Package codeql wraps invocation of an external `codeql` binary to
// build a database for a JS action's source and run the bundled
// taint-flow queries, decoding the query results into an
// *taint.ActionSummary.
package codeql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/purs3lab/Argus/pkg/config"
	"github.com/purs3lab/Argus/pkg/log"
	"github.com/purs3lab/Argus/pkg/taint"
)

var codeqlLogger = log.Get("codeql")

// DefaultTimeout bounds how long a single database-create or
// query-run invocation is allowed to take before the client gives up
// and returns an empty summary rather than blocking the whole analysis
// run on one slow JS action.
const DefaultTimeout = 25 * time.Minute

// Client drives the codeql CLI using the binary/query paths from the
// loaded configuration.
type Client struct {
	cfg *config.Config
}

// New builds a Client bound to cfg's codeql_bin and query_path.
func New(cfg *config.Config) *Client {
	return &Client{cfg: cfg}
}

// resultRow is the shape emitted by the bundled queries' JSON decoder
// step (`codeql bqrs decode --format=json`), one row per flow finding.
type resultRow struct {
	Kind string `json:"kind"` // "arg_to_sink", "env_to_sink", ...
	From string `json:"from"`
	To   string `json:"to"`
}

// BuildDatabase creates a CodeQL JavaScript database for the source at
// repoPath, writing it to outputDir. A database that already exists at
// outputDir is left alone, matching the original's bqrs-file presence
// check rather than always rebuilding.
func (c *Client) BuildDatabase(ctx context.Context, repoPath, outputDir string) error {
	if _, err := os.Stat(filepath.Join(outputDir, "db-javascript")); err == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.CodeQLBin, "database", "create",
		"--language=javascript", "--mode=brutal", "--finalize-dataset",
		"-s", repoPath, outputDir)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	codeqlLogger.Debugf("running %v", cmd.Args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("codeql database create: %w: %s", err, stderr.String())
	}
	return nil
}

// RunQueries executes the bundled taint-flow queries against the
// database at dbPath and decodes the combined results into an
// ActionSummary. On a timeout or any execution error, it logs the
// failure and returns an empty summary rather than aborting the whole
// repo scan over one action's database.
func (c *Client) RunQueries(ctx context.Context, dbPath string) *taint.ActionSummary {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	queryDir := c.cfg.QueryPath
	cmd := exec.CommandContext(ctx, c.cfg.CodeQLBin, "database", "analyze",
		dbPath, queryDir, "--format=sarifv2.1.0", "--output=-")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		codeqlLogger.Errorf("codeql database analyze failed: %v: %s", err, stderr.String())
		return &taint.ActionSummary{}
	}
	return decodeSummary(stdout.Bytes())
}

// decodeSummary parses the query runner's JSON row stream (one
// resultRow per line, matching the bundled queries' JSON output mode)
// into an ActionSummary, routing each row by its Kind.
func decodeSummary(data []byte) *taint.ActionSummary {
	summary := &taint.ActionSummary{}
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var row resultRow
		if err := dec.Decode(&row); err != nil {
			break
		}
		datum := taint.PackedDatum{Name: row.From, TaintName: row.To}
		switch row.Kind {
		case "arg_to_sink":
			summary.ArgToSink = append(summary.ArgToSink, datum)
		case "env_to_sink":
			summary.EnvToSink = append(summary.EnvToSink, datum)
		case "context_to_sink":
			summary.ContextToSink = append(summary.ContextToSink, datum)
		case "arg_to_output":
			summary.ArgToOutput = append(summary.ArgToOutput, datum)
		case "env_to_output":
			summary.EnvToOutput = append(summary.EnvToOutput, datum)
		case "context_to_output":
			summary.ContextToOutput = append(summary.ContextToOutput, datum)
		case "arg_to_env":
			summary.ArgToEnv = append(summary.ArgToEnv, datum)
		case "env_to_env":
			summary.EnvToEnv = append(summary.EnvToEnv, datum)
		case "context_to_env":
			summary.ContextToEnv = append(summary.ContextToEnv, datum)
		}
	}
	return summary
}
