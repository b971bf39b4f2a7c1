// Package seed implements the comply seed command, which loads a framework
// catalog into the database and can bootstrap an organization with an API
// token for first use.
package seed

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/complyhq/comply/internal/database"
	"github.com/complyhq/comply/pkg/logger"
)

// Options represents seed command options.
type Options struct {
	DBPath      string
	CatalogFile string
	OrgName     string
	OrgEmail    string
}

// Catalog is the YAML shape of a framework catalog file.
type Catalog struct {
	Frameworks []CatalogFramework `yaml:"frameworks"`
}

// CatalogFramework describes one framework and its controls.
type CatalogFramework struct {
	Name        string           `yaml:"name"`
	Version     string           `yaml:"version"`
	Description string           `yaml:"description,omitempty"`
	Controls    []CatalogControl `yaml:"controls"`
}

// CatalogControl describes one control within a framework.
type CatalogControl struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Run executes the seed command.
func Run(args []string) error {
	opts := &Options{}

	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	fs.StringVar(&opts.DBPath, "db", "comply.db", "Database file path")
	fs.StringVar(&opts.CatalogFile, "catalog", "", "Framework catalog YAML file (required)")
	fs.StringVar(&opts.OrgName, "org", "", "Also create an organization with this name")
	fs.StringVar(&opts.OrgEmail, "email", "", "Email for the bootstrap member (with --org)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: comply seed [options]

Load a framework catalog into the database.

Options:`)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr, `
Examples:
  comply seed --db comply.db --catalog catalogs/soc2.yaml
  comply seed --catalog catalogs/soc2.yaml --org "Acme Corp" --email admin@acme.example`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.CatalogFile == "" {
		return fmt.Errorf("--catalog flag is required")
	}
	if opts.OrgEmail != "" && opts.OrgName == "" {
		return fmt.Errorf("--email requires --org")
	}

	catalog, err := LoadCatalog(opts.CatalogFile)
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}

	db, err := database.New(opts.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	ctx := context.Background()

	for _, cf := range catalog.Frameworks {
		fw := &database.Framework{
			Name:        cf.Name,
			Version:     cf.Version,
			Description: cf.Description,
		}
		if err := db.CreateFramework(ctx, fw); err != nil {
			return fmt.Errorf("creating framework %s: %w", cf.Name, err)
		}

		for i, cc := range cf.Controls {
			control := &database.Control{
				FrameworkID: fw.ID,
				ControlID:   cc.ID,
				Title:       cc.Title,
				Description: cc.Description,
				Position:    i + 1,
			}
			if err := db.CreateControl(ctx, control); err != nil {
				return fmt.Errorf("creating control %s/%s: %w", cf.Name, cc.ID, err)
			}
		}

		logger.Info("framework loaded",
			"framework_id", fw.ID,
			"name", cf.Name,
			"version", cf.Version,
			"controls", len(cf.Controls),
		)
		fmt.Printf("Loaded %s %s (%d controls): %s\n", cf.Name, cf.Version, len(cf.Controls), fw.ID) //nolint:forbidigo
	}

	if opts.OrgName != "" {
		org, err := db.CreateOrganization(ctx, opts.OrgName)
		if err != nil {
			return fmt.Errorf("creating organization: %w", err)
		}

		email := opts.OrgEmail
		if email == "" {
			email = "admin@localhost"
		}
		member := &database.Member{
			OrgID:    org.ID,
			Email:    email,
			Role:     "admin",
			APIToken: uuid.NewString(),
		}
		if err := db.CreateMember(ctx, member); err != nil {
			return fmt.Errorf("creating bootstrap member: %w", err)
		}

		//nolint:forbidigo
		fmt.Printf("Created organization %q: %s\nAPI token for %s: %s\n",
			org.Name, org.ID, member.Email, member.APIToken)
	}

	return nil
}

// LoadCatalog reads and validates a framework catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is from trusted source (CLI flag)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}

	if len(catalog.Frameworks) == 0 {
		return nil, fmt.Errorf("catalog defines no frameworks")
	}
	for _, fw := range catalog.Frameworks {
		if fw.Name == "" {
			return nil, fmt.Errorf("framework missing name")
		}
		if len(fw.Controls) == 0 {
			return nil, fmt.Errorf("framework %s defines no controls", fw.Name)
		}
		seen := make(map[string]struct{}, len(fw.Controls))
		for _, c := range fw.Controls {
			if c.ID == "" {
				return nil, fmt.Errorf("framework %s has a control with no id", fw.Name)
			}
			if _, ok := seen[c.ID]; ok {
				return nil, fmt.Errorf("framework %s repeats control %s", fw.Name, c.ID)
			}
			seen[c.ID] = struct{}{}
		}
	}

	return &catalog, nil
}
