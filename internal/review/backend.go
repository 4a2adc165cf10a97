package review

import (
	"context"

	"github.com/keyforge/accessreview/internal/audit"
	"github.com/keyforge/accessreview/internal/keyforge"
)

// Backend is the certification backend as used by the review workflows. *keyforge.Client
// implements it.
type Backend interface {
	ListCertifications(ctx context.Context, reviewerID string, pageSize, pageNumber int) (keyforge.Page[keyforge.RawCertification], error)
	CertificationDetails(ctx context.Context, reviewerID, certID string, pageSize, pageNumber int) (keyforge.Page[keyforge.RawTask], error)
	FetchAccessDetails(ctx context.Context, reviewerID, certID, taskID, filter string, pageSize, pageNumber int) ([]keyforge.Account, error)
	GetLineItemDetails(ctx context.Context, reviewerID, certID, taskID, lineItemID string) ([]keyforge.EntitlementDetail, error)
	ExecuteQuery(ctx context.Context, query string, params ...any) (keyforge.QueryResult, error)
	ValidatePassword(ctx context.Context, userName, password string) (bool, error)
	SignOffCertification(ctx context.Context, reviewerID, certID, comments string) error
	Reassign(ctx context.Context, req keyforge.ReassignRequest) error
	ModifyAccess(ctx context.Context, reviewerID, certID, taskID, lineItemID string, body keyforge.ModifyAccessRequest) error
	ImmediateRevoke(ctx context.Context, reviewerID, certID, taskID, lineItemID string, body keyforge.ImmediateRevokeRequest) error
	CampaignAnalytics(ctx context.Context) (keyforge.CampaignAnalytics, error)
}

var _ Backend = (*keyforge.Client)(nil)

// AuditRecorder persists attempted remediation rows. *audit.Journal implements it.
type AuditRecorder interface {
	Record(ctx context.Context, entries []audit.Entry) error
}
