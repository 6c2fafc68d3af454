package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"evidencevault/internal/api"
	"evidencevault/internal/config"
	"evidencevault/internal/format"
	"evidencevault/internal/models"
)

func newCustodyCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custody",
		Short: "Inspect chain-of-custody trails",
	}

	cmd.AddCommand(newCustodyListCmd(cfg, opts))
	cmd.AddCommand(newCustodyVerifyCmd(cfg, opts))
	return cmd
}

func newCustodyListCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var formatName string
	var pageSize int

	cmd := &cobra.Command{
		Use:   "list <id>",
		Short: "Print the full custody trail of an evidence item",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, structured, err := custodyFormatter(formatName, opts.jsonOutput)
			if err != nil {
				return err
			}

			return withClient(cfg, opts, func(client *api.Client) error {
				events, err := fetchTrail(cmd, client, args[0], pageSize)
				if err != nil {
					return err
				}
				if structured {
					return formatter.Write(os.Stdout, api.CustodyPageResponse{EvidenceID: args[0], Events: events})
				}
				return writeCustodyLines(os.Stdout, events)
			})
		},
	}

	cmd.Flags().StringVar(&formatName, "format", "", "output format: json or yaml (default: text)")
	cmd.Flags().IntVar(&pageSize, "page-size", 500, "events fetched per request")
	return cmd
}

func newCustodyVerifyCmd(cfg *config.Config, opts *cliOptions) *cobra.Command {
	var formatName string

	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Recompute an item's custody hash chain",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, structured, err := custodyFormatter(formatName, opts.jsonOutput)
			if err != nil {
				return err
			}

			return withClient(cfg, opts, func(client *api.Client) error {
				report, err := client.VerifyCustody(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if structured {
					if err := formatter.Write(os.Stdout, report); err != nil {
						return err
					}
				} else if report.Valid {
					if err := writePlain("ok: %d events, head %s\n", report.Events, report.HeadHash); err != nil {
						return err
					}
				}
				if !report.Valid {
					return fmt.Errorf("custody chain broken at sequence %d: %s", report.BrokenAt, report.Problem)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&formatName, "format", "", "output format: json or yaml (default: text)")
	return cmd
}

// custodyFormatter resolves --format, falling back to JSON when --json is set.
func custodyFormatter(name string, jsonOutput bool) (format.Formatter, bool, error) {
	if name == "" {
		if jsonOutput {
			return outputFormatter, true, nil
		}
		return nil, false, nil
	}
	f, err := format.ByName(name)
	if err != nil {
		return nil, false, err
	}
	return f, true, nil
}

func fetchTrail(cmd *cobra.Command, client *api.Client, id string, pageSize int) ([]models.CustodyEvent, error) {
	var events []models.CustodyEvent
	var after int64
	for {
		page, err := client.CustodyTrail(cmd.Context(), id, after, pageSize)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Events...)
		if !page.HasMore {
			return events, nil
		}
		after = page.NextAfter
	}
}
