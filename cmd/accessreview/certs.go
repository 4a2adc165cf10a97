package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyforge/accessreview/internal/review"
)

const maxListPages = 100

var (
	certsReviewer string
	certsSearch   string
	certsAll      bool
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "List a reviewer's certifications.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reviewer := strings.TrimSpace(certsReviewer)
		if reviewer == "" {
			return errors.New("--reviewer is required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		cfg, _, svc, err := loadClientService(ctx)
		if err != nil {
			return err
		}
		rows, err := collectCertifications(ctx, svc, reviewer, cfg.CertPageSize)
		if err != nil {
			return err
		}
		if certsAll {
			rows = review.Search(rows, certsSearch)
		} else {
			rows = review.Filter(rows, certsSearch)
		}
		return writeCertifications(cmd.OutOrStdout(), rows)
	},
}

func init() {
	certsCmd.Flags().StringVar(&certsReviewer, "reviewer", "", "reviewer id")
	certsCmd.Flags().StringVar(&certsSearch, "search", "", "only certifications whose name, type or reviewer contains this text")
	certsCmd.Flags().BoolVar(&certsAll, "all", false, "include signed-off and inactive certifications")
}

// collectCertifications walks every page of the reviewer's certifications, dropping the demo row.
func collectCertifications(ctx context.Context, svc *review.Service, reviewerID string, pageSize int) ([]review.CertificationRow, error) {
	var out []review.CertificationRow
	for page, total := 1, 1; page <= total && page <= maxListPages; page++ {
		p, err := svc.ListCertifications(ctx, reviewerID, pageSize, page)
		if err != nil {
			return nil, err
		}
		total = p.TotalPages
		for _, row := range p.Rows {
			if !row.Demo {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func writeCertifications(w io.Writer, rows []review.CertificationRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no certifications")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tEXPIRES\tPROGRESS")
	for _, r := range rows {
		status := r.Status
		if r.SignedOff {
			status = "Signed off"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d%%\n", r.ID, r.Name, r.Type, status, r.Expiration, r.Progress)
	}
	return tw.Flush()
}
