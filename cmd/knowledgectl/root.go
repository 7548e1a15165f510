package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/provenance"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "knowledgectl",
		Short:        "Operate the TCM knowledge base: storage audit, resync and liability reports",
		SilenceUsage: true,
	}
	root.AddCommand(
		newScanCmd(open),
		newResyncCmd(open),
		newReportCmd(open),
		newGrantAdminCmd(open),
		newJobsCmd(open),
	)
	return root
}

// withBackend opens the backend for one command run and always closes it.
func withBackend(cmd *cobra.Command, open opener, fn func(b backend) error) error {
	b, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

func resolveBucket(b backend, flag string) (string, error) {
	bucket := strings.TrimSpace(flag)
	if bucket == "" {
		bucket = strings.TrimSpace(b.DefaultBucket())
	}
	if bucket == "" {
		return "", fmt.Errorf("bucket is required (--bucket or KNOWLEDGE_BUCKET)")
	}
	return bucket, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newScanCmd(open opener) *cobra.Command {
	var (
		bucket   string
		terms    []string
		maxFiles int
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the bucket and match file names against search terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(b backend) error {
				bkt, err := resolveBucket(b, bucket)
				if err != nil {
					return err
				}
				res, err := b.Scan(cmd.Context(), services.ScanRequest{Bucket: bkt, SearchTerms: terms, MaxFiles: maxFiles})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket to scan (default KNOWLEDGE_BUCKET)")
	cmd.Flags().StringSliceVar(&terms, "term", nil, "search term; repeat or comma separate")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "stop listing after this many objects")
	return cmd
}

func newResyncCmd(open opener) *cobra.Command {
	var (
		bucket   string
		terms    []string
		files    []string
		maxFiles int
	)
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Re-import matched or named CSV files into the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(b backend) error {
				bkt, err := resolveBucket(b, bucket)
				if err != nil {
					return err
				}
				out, err := b.Resync(cmd.Context(), services.ResyncRequest{
					Bucket:      bkt,
					SearchTerms: terms,
					MaxFiles:    maxFiles,
					Files:       files,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket to resync from (default KNOWLEDGE_BUCKET)")
	cmd.Flags().StringSliceVar(&terms, "term", nil, "search term; repeat or comma separate")
	cmd.Flags().StringArrayVar(&files, "file", nil, "object path to import instead of the scan matches; repeatable")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "stop listing after this many objects")
	return cmd
}

func newReportCmd(open opener) *cobra.Command {
	var (
		format string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the query provenance (liability) report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "text" && format != "json" {
				return fmt.Errorf("unknown format %q (allowed: text, json)", format)
			}
			return withBackend(cmd, open, func(b backend) error {
				rep, err := b.Report(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if format == "json" {
					return provenance.RenderJSON(cmd.OutOrStdout(), rep)
				}
				return provenance.RenderText(cmd.OutOrStdout(), rep)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	cmd.Flags().IntVar(&limit, "limit", provenance.MaxEntries, "most recent entries to include")
	return cmd
}

func newGrantAdminCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "grant-admin <user-id>",
		Short: "Give a user the admin role for the storage audit endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(strings.TrimSpace(args[0]))
			if err != nil || userID == uuid.Nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			return withBackend(cmd, open, func(b backend) error {
				added, err := b.GrantAdmin(userID)
				if err != nil {
					return err
				}
				if added {
					fmt.Fprintf(cmd.OutOrStdout(), "granted admin to %s\n", userID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already an admin\n", userID)
				}
				return nil
			})
		},
	}
}

func newJobsCmd(open opener) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect background jobs",
	}
	watch := &cobra.Command{
		Use:   "watch",
		Short: "Stream job lifecycle events from the Redis job bus until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(b backend) error {
				out := cmd.OutOrStdout()
				enc := json.NewEncoder(out)
				events := make(chan jobs.Event, 64)
				ctx := cmd.Context()
				err := b.WatchJobs(ctx, func(ev jobs.Event) {
					select {
					case events <- ev:
					case <-ctx.Done():
					}
				})
				if err != nil {
					return err
				}
				for {
					select {
					case <-ctx.Done():
						return nil
					case ev := <-events:
						if err := enc.Encode(ev); err != nil {
							return err
						}
					}
				}
			})
		},
	}
	jobsCmd.AddCommand(watch)
	return jobsCmd
}
