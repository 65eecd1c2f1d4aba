package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/armature-dev/armature/pkg/config"
	"github.com/armature-dev/armature/pkg/descriptor"
	"github.com/armature-dev/armature/pkg/observability"
	"github.com/armature-dev/armature/pkg/registry"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discoverable plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := scanConfiguredDirs(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tTYPE\tAUTHOR\tCAPABILITIES")
		for _, d := range reg.List() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n",
				d.Name, d.Version, d.Type, d.Author, d.Capabilities)
		}
		return w.Flush()
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <name> [version]",
	Short: "Show a plugin's descriptor",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := scanConfiguredDirs(cmd.Context())
		if err != nil {
			return err
		}

		version := ""
		if len(args) > 1 {
			version = args[1]
		}
		d, err := reg.Get(args[0], version)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <manifest-or-dir>...",
	Short: "Validate plugin manifests",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			d, err := loadManifestArg(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed++
				continue
			}
			if issues := d.Validate(); len(issues) > 0 {
				failed++
				fmt.Fprintf(os.Stderr, "%s: invalid\n", path)
				for _, issue := range issues {
					fmt.Fprintf(os.Stderr, "  %s: %s\n", issue.Field, issue.Message)
				}
				continue
			}
			fmt.Printf("%s: ok (%s@%s)\n", path, d.Name, d.Version)
		}
		if failed > 0 {
			return fmt.Errorf("%d manifest(s) failed validation", failed)
		}
		return nil
	},
}

func loadManifestArg(path string) (*descriptor.Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return descriptor.LoadManifestFromDir(path)
	}
	return descriptor.LoadManifest(path)
}

// scanConfiguredDirs builds a throwaway registry from the configured plugin
// directories.
func scanConfiguredDirs(ctx context.Context) (*registry.Registry, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stderr)

	reg := registry.New(log)
	report, err := reg.Scan(ctx, cfg.Plugins.Dirs)
	if err != nil {
		return nil, err
	}
	for _, serr := range report.Errors {
		log.Warnf("discovery: %v", serr)
	}
	return reg, nil
}
