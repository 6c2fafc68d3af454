package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"evidencevault/internal/api"
	"evidencevault/internal/config"
)

func newUploadCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var caseID string
	var name string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Store a file as evidence for a case",
		Args:  requireExactlyArgs(1, "file path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseID == "" {
				return fmt.Errorf("--case is required")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			filename := name
			if filename == "" {
				filename = filepath.Base(args[0])
			}

			return withClient(cfg, opts, func(client *api.Client) error {
				resp, err := client.Upload(cmd.Context(), caseID, filename, f)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s\n", resp.ID)
			})
		},
	}

	cmd.Flags().StringVar(&caseID, "case", "", "case id (required)")
	cmd.Flags().StringVar(&name, "name", "", "original filename to record (default: base name of file)")
	return cmd
}

func newDownloadCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var output string
	var reason string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Retrieve evidence bytes; the access is recorded in the custody trail",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				var w io.Writer = os.Stdout
				var tmpPath string
				if output != "" && output != "-" {
					tmp, err := os.CreateTemp(filepath.Dir(output), ".evidencevault-download-*")
					if err != nil {
						return err
					}
					tmpPath = tmp.Name()
					defer func() {
						_ = tmp.Close()
						_ = os.Remove(tmpPath)
					}()
					w = tmp
				}

				info, err := client.Download(cmd.Context(), args[0], reason, w)
				if err != nil {
					return err
				}
				if tmpPath != "" {
					if f, ok := w.(*os.File); ok {
						if err := f.Close(); err != nil {
							return err
						}
					}
					if err := os.Rename(tmpPath, output); err != nil {
						return err
					}
					if opts.jsonOutput {
						return writeJSON(info)
					}
					return writePlain("wrote %s (%s, %s)\n", output, info.ContentType, info.ContentHash)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the access")
	return cmd
}

func newShowCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show evidence metadata",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				resp, err := client.GetEvidence(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(resp)
				}
				return writeEvidenceDetail(os.Stdout, resp)
			})
		},
	}
}

func newCaseCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "case <case-id>",
		Short: "List evidence recorded for a case",
		Args:  requireExactlyArgs(1, "case id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				items, err := client.FindByCase(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(items)
				}
				return writeEvidenceList(os.Stdout, items)
			})
		},
	}
}

func newDeleteCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete evidence bytes; metadata and custody trail are kept",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}
			if opts.actorRole == "" {
				return fmt.Errorf("--role is required for delete (the server assumes no role)")
			}
			return withClient(cfg, opts, func(client *api.Client) error {
				deleted, err := client.Delete(cmd.Context(), args[0], reason)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(map[string]any{"id": args[0], "deleted": deleted})
				}
				if !deleted {
					return fmt.Errorf("evidence %s not found", args[0])
				}
				return writePlain("deleted %s\n", args[0])
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the deletion (required)")
	return cmd
}

func newStatusCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move evidence along the analysis lifecycle",
		Args:  requireExactlyArgs(2, "evidence id and status are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				resp, err := client.UpdateStatus(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s %s\n", resp.ID, resp.LifecycleStatus)
			})
		},
	}
}

func newSweepCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var apply bool
	var batchSize int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove bytes left behind by deletions whose purge failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, opts, func(client *api.Client) error {
				resp, err := client.Purge(cmd.Context(), batchSize, apply)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(resp)
				}
				mode := "dry run"
				if !resp.DryRun {
					mode = "applied"
				}
				return writePlain("%s: candidates=%d purged=%d failed=%d reclaimed_bytes=%d\n", mode, resp.CandidateCount, resp.PurgedCount, resp.FailedCount, resp.ReclaimedBytes)
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete bytes (default is a dry run)")
	cmd.Flags().IntVar(&batchSize, "batch", 0, "items per sweep (default: server purge batch size)")
	return cmd
}
