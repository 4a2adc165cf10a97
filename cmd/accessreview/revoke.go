package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyforge/accessreview/internal/review"
)

var (
	revokeReviewer      string
	revokeReviewerName  string
	revokeCertification string
	revokeTask          string
	revokeLineItems     []string
	revokeJustification string
	revokeYes           bool
)

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Immediately revoke entitlements of one user in a certification.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(revokeTask) == "" || len(revokeLineItems) == 0 {
			return errors.New("--task and at least one --line-item are required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		_, _, svc, err := loadClientService(ctx)
		if err != nil {
			return err
		}
		rows, err := pickRows(ctx, func(ctx context.Context, page int) ([]review.EntitlementRow, error) {
			return svc.Entitlements(ctx, revokeReviewer, revokeCertification, revokeTask, page)
		}, revokeLineItems, maxEntitlementPages)
		if err != nil {
			return err
		}

		res, err := svc.ImmediateRevoke(ctx, review.RevokeInput{
			Target: review.Target{
				ReviewerID:      revokeReviewer,
				ReviewerName:    revokeReviewerName,
				CertificationID: revokeCertification,
			},
			Rows:          rows,
			Justification: revokeJustification,
			Confirmed:     revokeYes,
		})
		if errors.Is(err, review.ErrNotConfirmed) {
			return errors.New("revocation is immediate; pass --yes to confirm")
		}
		writeBatch(cmd.OutOrStdout(), res)
		if err != nil && len(res.Results) > 0 {
			return &exitError{code: exitCodeBatchFailed, err: err}
		}
		return err
	},
}

func init() {
	revokeCmd.Flags().StringVar(&revokeReviewer, "reviewer", "", "reviewer id")
	revokeCmd.Flags().StringVar(&revokeReviewerName, "reviewer-name", "", "reviewer display name recorded with the request")
	revokeCmd.Flags().StringVar(&revokeCertification, "cert", "", "certification id")
	revokeCmd.Flags().StringVar(&revokeTask, "task", "", "task id of the reviewed user")
	revokeCmd.Flags().StringSliceVar(&revokeLineItems, "line-item", nil, "entitlement line item id (repeatable)")
	revokeCmd.Flags().StringVar(&revokeJustification, "justification", "", "why access is removed")
	revokeCmd.Flags().BoolVar(&revokeYes, "yes", false, "confirm the revocation")
}

// maxEntitlementPages bounds how far pickRows pages through a user's entitlements.
const maxEntitlementPages = 100

// pickRows pages through a user's entitlements until every requested line item is found and
// returns the matching rows in the order given. Paging stops at an empty page, a page with no
// unseen line items, or after maxPages.
func pickRows(ctx context.Context, fetch func(context.Context, int) ([]review.EntitlementRow, error), lineItems []string, maxPages int) ([]review.EntitlementRow, error) {
	want := make(map[string]struct{}, len(lineItems))
	for _, id := range lineItems {
		want[strings.TrimSpace(id)] = struct{}{}
	}

	byID := map[string]review.EntitlementRow{}
	for page := 1; page <= maxPages && len(want) > 0; page++ {
		available, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		fresh := 0
		for _, r := range available {
			if _, seen := byID[r.LineItemID]; seen {
				continue
			}
			byID[r.LineItemID] = r
			delete(want, r.LineItemID)
			fresh++
		}
		if fresh == 0 {
			break
		}
	}

	out := make([]review.EntitlementRow, 0, len(lineItems))
	for _, id := range lineItems {
		id = strings.TrimSpace(id)
		r, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("line item %q is not among the user's entitlements", id)
		}
		out = append(out, r)
	}
	return out, nil
}

func writeBatch(w io.Writer, res review.BatchResult) {
	for _, r := range res.Results {
		switch {
		case r.OK:
			fmt.Fprintf(w, "ok       %s %s\n", r.LineItemID, r.EntitlementName)
		case r.Skipped:
			fmt.Fprintf(w, "skipped  %s %s\n", r.LineItemID, r.EntitlementName)
		default:
			fmt.Fprintf(w, "failed   %s %s: %s\n", r.LineItemID, r.EntitlementName, r.Error)
		}
	}
	if len(res.Results) > 0 {
		fmt.Fprintf(w, "%d succeeded, %d failed, %d skipped\n", res.Succeeded, res.Failed, res.Skipped)
	}
}
