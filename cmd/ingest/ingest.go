// Package ingest implements the comply ingest command: one-shot ingestion of
// scanner output from a local file or an S3 bucket for one organization.
package ingest

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/complyhq/comply/internal/database"
	"github.com/complyhq/comply/internal/ingest"
	"github.com/complyhq/comply/internal/models"
	"github.com/complyhq/comply/internal/rulemap"
	"github.com/complyhq/comply/pkg/logger"
)

// Options represents ingest command options.
type Options struct {
	DBPath      string
	OrgID       string
	Source      string
	File        string
	Bucket      string
	Prefix      string
	RuleMapFile string
	Timeout     int
}

// Run executes the ingest command.
func Run(args []string) error {
	opts := &Options{}

	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	fs.StringVar(&opts.DBPath, "db", "comply.db", "Database file path")
	fs.StringVar(&opts.OrgID, "org", "", "Organization ID (required)")
	fs.StringVar(&opts.Source, "source", "", "Scanner source: cloud_posture or repo_audit (required)")
	fs.StringVar(&opts.File, "file", "", "Scanner output file to ingest")
	fs.StringVar(&opts.Bucket, "bucket", "", "S3 bucket holding scanner output")
	fs.StringVar(&opts.Prefix, "prefix", "", "S3 key prefix (with --bucket)")
	fs.StringVar(&opts.RuleMapFile, "rule-map", "", "Rule map file (defaults to built-in)")
	fs.IntVar(&opts.Timeout, "timeout", 120, "Timeout in seconds")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: comply ingest [options]

Ingest scanner output for an organization. Findings are recorded and mapped
to candidate controls; control statuses are never changed by ingestion.

Options:`)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, `
Examples:
  comply ingest --org <org-id> --source cloud_posture --file checks.json
  comply ingest --org <org-id> --source repo_audit --bucket scans --prefix acme/`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.OrgID == "" {
		return fmt.Errorf("--org flag is required")
	}
	switch opts.Source {
	case ingest.SourceCloudPosture, ingest.SourceRepoAudit:
	default:
		return fmt.Errorf("--source must be %s or %s", ingest.SourceCloudPosture, ingest.SourceRepoAudit)
	}
	if (opts.File == "") == (opts.Bucket == "") {
		return fmt.Errorf("exactly one of --file or --bucket is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(opts.Timeout)*time.Second)
	defer cancel()

	db, err := database.New(opts.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if _, err := db.GetOrganization(ctx, opts.OrgID); err != nil {
		return fmt.Errorf("resolving organization %s: %w", opts.OrgID, err)
	}

	rules, err := loadRules(opts.RuleMapFile)
	if err != nil {
		return fmt.Errorf("loading rule map: %w", err)
	}

	payloads, err := collectPayloads(ctx, opts)
	if err != nil {
		return err
	}

	var findings []*models.Finding
	for name, raw := range payloads {
		parsed, err := parsePayload(opts.Source, raw)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		findings = append(findings, parsed...)
	}

	ingestor := ingest.New(db, rules)
	controls, err := ingestor.IngestBatch(ctx, opts.OrgID, findings)
	if err != nil {
		return fmt.Errorf("ingesting findings: %w", err)
	}

	//nolint:forbidigo
	fmt.Printf("Ingested %d findings from %d payloads\n", len(findings), len(payloads))
	if len(controls) > 0 {
		fmt.Printf("Candidate controls: %s\n", strings.Join(controls, ", ")) //nolint:forbidigo
	} else {
		fmt.Println("No candidate controls mapped") //nolint:forbidigo
	}

	return nil
}

// collectPayloads gathers raw scanner output, keyed by where it came from.
func collectPayloads(ctx context.Context, opts *Options) (map[string][]byte, error) {
	payloads := make(map[string][]byte)

	if opts.File != "" {
		raw, err := os.ReadFile(opts.File) //nolint:gosec // Path is from trusted source (CLI flag)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", opts.File, err)
		}
		payloads[opts.File] = raw
		return payloads, nil
	}

	source, err := ingest.NewS3Source(ctx, opts.Bucket, opts.Prefix)
	if err != nil {
		return nil, fmt.Errorf("connecting to s3://%s: %w", opts.Bucket, err)
	}
	objects, err := source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching from s3://%s/%s: %w", opts.Bucket, opts.Prefix, err)
	}
	for _, obj := range objects {
		payloads["s3://"+opts.Bucket+"/"+obj.Key] = obj.Body
	}

	return payloads, nil
}

func parsePayload(source string, raw []byte) ([]*models.Finding, error) {
	if source == ingest.SourceCloudPosture {
		return ingest.ParseCloudPosture(raw)
	}
	return ingest.ParseRepoAudit(raw)
}

func loadRules(path string) (*rulemap.Map, error) {
	if path != "" {
		return rulemap.FromFile(path)
	}
	return rulemap.Load()
}
