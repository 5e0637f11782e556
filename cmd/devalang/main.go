// Command devalang is a thin CLI front-end over internal/pipeline. It does
// not attempt a full compiler CLI (watch mode, addon management, and a
// configurable flag surface are out of scope); it exists the way every repo
// in the pack has a main.go, exercising the pipeline end to end.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/schollz/collidertracker/internal/diag"
	"github.com/schollz/collidertracker/internal/pipeline"
	"github.com/schollz/collidertracker/internal/project"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "devalang",
		Short: "Compile and render Devalang scripts",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to devalang.json/devalang.toml (defaults to one alongside the entry file)")
	root.AddCommand(checkCmd(), renderCmd(), buildCmd())
	return root
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <entry.deva>",
		Short: "Resolve and schedule a script without rendering audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := args[0]
			proj := loadProject(entry)

			cr, err := pipeline.Compile(entry, proj, time.Now().UnixNano())
			if err != nil {
				return err
			}
			printDiagnostics(cr.Diagnostics)
			if cr.Fatal() {
				return fmt.Errorf("%s: failed to check", entry)
			}
			fmt.Printf("%s: ok, %d events scheduled\n", entry, len(cr.Events))
			return nil
		},
	}
}

func renderCmd() *cobra.Command {
	var maxSeconds float64
	cmd := &cobra.Command{
		Use:   "render <entry.deva>",
		Short: "Render a script to its configured audio format(s)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry := args[0]
			proj := loadProject(entry)

			rr, err := pipeline.Render(entry, proj, time.Now().UnixNano(), maxSeconds)
			if err != nil {
				return err
			}
			printDiagnostics(rr.Warnings)
			if len(rr.PCM) == 0 {
				return fmt.Errorf("%s: failed to render", entry)
			}

			basename := strings.TrimSuffix(filepath.Base(entry), filepath.Ext(entry))
			if err := pipeline.WriteOutputs(proj, basename, rr.PCM, rr.Events, rr.TempoPoints); err != nil {
				return err
			}
			fmt.Printf("%s: wrote %s to %s\n", entry, strings.Join(proj.Audio.Format, ", "), proj.Paths.Output)
			return nil
		},
	}
	cmd.Flags().Float64Var(&maxSeconds, "max-seconds", 0, "cap total render duration in seconds (0 = no cap beyond the scheduler's own loop guard)")
	return cmd
}

func buildCmd() *cobra.Command {
	// build is render's conventional alias: a script's "build artifact" is
	// the set of audio files its project config names.
	cmd := renderCmd()
	cmd.Use = "build <entry.deva>"
	cmd.Short = "Alias for render: produce a script's configured build artifacts"
	return cmd
}

// loadProject resolves configPath (or a devalang.json/devalang.toml next to
// entry) to a project.Project, falling back to project.Defaults when none
// is found.
func loadProject(entry string) project.Project {
	path := configPath
	if path == "" {
		dir := filepath.Dir(entry)
		for _, name := range []string{"devalang.json", "devalang.toml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return project.Defaults()
	}
	proj, err := project.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, using defaults\n", err)
		return project.Defaults()
	}
	return proj
}

// printDiagnostics prints entries colorized through diag.Log.Pretty when
// the terminal supports it, plain otherwise (termenv.Ascii means no color
// support was detected).
func printDiagnostics(entries []diag.Entry) {
	if len(entries) == 0 {
		return
	}
	if termenv.ColorProfile() == termenv.Ascii {
		for _, e := range entries {
			fmt.Fprintln(os.Stderr, e.String())
		}
		return
	}
	log := &diag.Log{}
	for _, e := range entries {
		log.Add(e)
	}
	fmt.Fprint(os.Stderr, log.Pretty())
}
