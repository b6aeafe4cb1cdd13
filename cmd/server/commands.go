package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func ingestCmd(configPath *string) *cobra.Command {
	var clearExisting bool
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index the course documents in a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			dir := a.cfg.DocsPath
			if len(args) == 1 {
				dir = args[0]
			}
			stats, err := a.rag.AddCourseFolder(cmd.Context(), dir, clearExisting)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d courses with %d chunks (%d skipped)\n",
				stats.Courses, stats.Chunks, stats.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearExisting, "clear", false, "drop the existing index before ingesting")
	return cmd
}

func askCmd(configPath *string) *cobra.Command {
	var sessionID string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question against the indexed courses",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath, true)
			if err != nil {
				return err
			}
			defer a.Close()

			answer, err := a.chat.Ask(cmd.Context(), strings.Join(args, " "), sessionID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}
			fmt.Fprintln(out, answer.Answer)
			if len(answer.Sources) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for _, s := range answer.Sources {
					if link := answer.SourceLinks[s]; link != "" {
						fmt.Fprintf(out, "  - %s (%s)\n", s, link)
						continue
					}
					fmt.Fprintf(out, "  - %s\n", s)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func coursesCmd(configPath *string) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "courses",
		Short: "List indexed courses",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			courses, err := a.rag.CourseCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(courses)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d courses\n", len(courses))
			for _, c := range courses {
				fmt.Fprintf(out, "%s (%d lessons)", c.Title, len(c.Lessons))
				if c.Instructor != "" {
					fmt.Fprintf(out, " by %s", c.Instructor)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
