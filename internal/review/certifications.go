package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/keyforge"
)

const (
	assignmentEntityCert = "Cert"
	defaultOwnerType     = "User"
)

// CertificationPage is one page of a reviewer's certifications, demo row included.
type CertificationPage struct {
	ReviewerID string             `json:"reviewerId"`
	PageNumber int                `json:"pageNumber"`
	PageSize   int                `json:"pageSize"`
	TotalItems int                `json:"totalItems"`
	TotalPages int                `json:"totalPages"`
	Rows       []CertificationRow `json:"rows"`
}

// ListCertifications fetches one page, remembers it as the reviewer's current rows and
// announces it on TopicRowsChanged.
func (s *Service) ListCertifications(ctx context.Context, reviewerID string, pageSize, pageNumber int) (CertificationPage, error) {
	if err := requireField("reviewerId", reviewerID); err != nil {
		return CertificationPage{}, err
	}
	pageSize = positiveOr(pageSize, s.certPageSize)
	pageNumber = positiveOr(pageNumber, 1)

	raw, err := s.certificationPage(ctx, reviewerID, pageSize, pageNumber)
	if err != nil {
		s.log.Warn("certification list fetch failed", "reviewer_id", reviewerID, "page", pageNumber, "err", err)
		return CertificationPage{}, fmt.Errorf("list certifications: %w", err)
	}
	rows := CertificationRows(reviewerID, raw.Items)

	s.mu.Lock()
	s.shared[reviewerID] = rows
	s.mu.Unlock()
	events.Publish(s.bus, TopicRowsChanged, RowsChanged{ReviewerID: reviewerID, Rows: rows})

	return CertificationPage{
		ReviewerID: reviewerID,
		PageNumber: pageNumber,
		PageSize:   pageSize,
		TotalItems: raw.TotalItems,
		TotalPages: raw.TotalPages,
		Rows:       rows,
	}, nil
}

// SharedRows returns the last page listed for the reviewer.
func (s *Service) SharedRows(reviewerID string) []CertificationRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CertificationRow(nil), s.shared[reviewerID]...)
}

// FindCertification looks the certification up in the reviewer's current rows and then
// walks the reviewer's pages until it is found.
func (s *Service) FindCertification(ctx context.Context, reviewerID, certID string) (CertificationRow, error) {
	if err := requireField("reviewerId", reviewerID); err != nil {
		return CertificationRow{}, err
	}
	if err := requireField("certificationId", certID); err != nil {
		return CertificationRow{}, err
	}
	for _, r := range s.SharedRows(reviewerID) {
		if r.ID == certID {
			return r, nil
		}
	}
	if certID == DemoCertificationID {
		return demoRow(reviewerID), nil
	}
	for page, total := 1, 1; page <= total; page++ {
		raw, err := s.certificationPage(ctx, reviewerID, s.certPageSize, page)
		if err != nil {
			return CertificationRow{}, fmt.Errorf("find certification: %w", err)
		}
		total = raw.TotalPages
		for _, item := range raw.Items {
			if item.CertificationID == certID {
				return certificationRow(item), nil
			}
		}
	}
	return CertificationRow{}, fmt.Errorf("certification %s: %w", certID, ErrNotFound)
}

// OpenResult is where opening a certification leads and the summary handed to that view.
type OpenResult struct {
	Route   string          `json:"route"`
	Summary CampaignSummary `json:"summary"`
}

// Open resolves the review route for a certification and publishes its summary on
// TopicCampaignSelected.
func (s *Service) Open(ctx context.Context, reviewerID, certID string) (OpenResult, error) {
	row, err := s.FindCertification(ctx, reviewerID, certID)
	if err != nil {
		return OpenResult{}, err
	}
	route, ok := RouteFor(row)
	if !ok {
		return OpenResult{}, validationError("certification type %q has no review screen", row.Type)
	}
	summary := SummaryFor(row)
	events.Publish(s.bus, TopicCampaignSelected, summary)
	return OpenResult{Route: route, Summary: summary}, nil
}

type ReassignInput struct {
	ReviewerID      string `json:"reviewerId"`
	ReviewerName    string `json:"reviewerName"`
	CertificationID string `json:"certificationId"`
	TaskID          string `json:"taskId"`
	NewOwnerID      string `json:"newOwnerId"`
	NewOwnerType    string `json:"newOwnerType"`
	Justification   string `json:"justification"`
}

// Reassign hands the whole certification to a new owner.
func (s *Service) Reassign(ctx context.Context, in ReassignInput) error {
	for _, f := range []struct{ name, value string }{
		{"reviewerId", in.ReviewerID},
		{"certificationId", in.CertificationID},
		{"new owner", in.NewOwnerID},
		{"justification", in.Justification},
	} {
		if err := requireField(f.name, f.value); err != nil {
			return err
		}
	}
	ownerType := trimmed(in.NewOwnerType)
	if ownerType == "" {
		ownerType = defaultOwnerType
	}
	req := keyforge.ReassignRequest{
		ReviewerName:     in.ReviewerName,
		ReviewerID:       in.ReviewerID,
		CertificationID:  in.CertificationID,
		TaskID:           in.TaskID,
		LineItemID:       "",
		AssignmentEntity: assignmentEntityCert,
		NewOwnerDetails:  keyforge.OwnerDetails{ID: trimmed(in.NewOwnerID), Type: ownerType},
		Justification:    trimmed(in.Justification),
	}
	if err := s.backend.Reassign(ctx, req); err != nil {
		return fmt.Errorf("reassign certification: %w", err)
	}
	s.invalidateCertification(in.ReviewerID, in.CertificationID)
	s.log.Info("certification reassigned", "reviewer_id", in.ReviewerID, "certification_id", in.CertificationID, "new_owner", req.NewOwnerDetails.ID)
	return nil
}

type SignOffInput struct {
	ReviewerID      string
	CertificationID string
	// PrincipalEmail is the signed-in user's email when known.
	PrincipalEmail string
	// SessionUserID is the user id kept in the caller's session.
	SessionUserID string
	Password      string
	Comments      string
}

// ResolveUserName picks the identity a sign-off password is checked against.
func ResolveUserName(principalEmail, sessionUserID, reviewerID string) string {
	return firstNonEmpty(strings.TrimSpace(principalEmail), strings.TrimSpace(sessionUserID), strings.TrimSpace(reviewerID))
}

// SignOff validates the reviewer's password and signs the certification off. An invalid
// password returns ErrInvalidPassword and nothing is signed.
func (s *Service) SignOff(ctx context.Context, in SignOffInput) error {
	if err := requireField("reviewerId", in.ReviewerID); err != nil {
		return err
	}
	if err := requireField("certificationId", in.CertificationID); err != nil {
		return err
	}
	if in.Password == "" {
		return validationError("password is required")
	}
	userName := ResolveUserName(in.PrincipalEmail, in.SessionUserID, in.ReviewerID)

	ok, err := s.backend.ValidatePassword(ctx, userName, in.Password)
	if err != nil {
		return fmt.Errorf("validate password: %w", err)
	}
	if !ok {
		s.log.Warn("sign-off rejected", "reviewer_id", in.ReviewerID, "certification_id", in.CertificationID, "user", userName)
		return ErrInvalidPassword
	}
	if err := s.backend.SignOffCertification(ctx, in.ReviewerID, in.CertificationID, in.Comments); err != nil {
		return fmt.Errorf("sign off certification: %w", err)
	}

	s.invalidateCertification(in.ReviewerID, in.CertificationID)
	events.Publish(s.bus, TopicCertificationSignedOff, CertificationSignedOff{
		ReviewerID:      in.ReviewerID,
		CertificationID: in.CertificationID,
		UserName:        userName,
		Comments:        in.Comments,
		At:              s.now(),
	})
	s.log.Info("certification signed off", "reviewer_id", in.ReviewerID, "certification_id", in.CertificationID, "user", userName)
	return nil
}

// Claim acknowledges a release/claim request. The backend has no claim operation yet, so
// this only waits out the acknowledgement delay.
func (s *Service) Claim(ctx context.Context, reviewerID, certID string) error {
	if err := requireField("reviewerId", reviewerID); err != nil {
		return err
	}
	if err := requireField("certificationId", certID); err != nil {
		return err
	}
	timer := time.NewTimer(s.claimDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	s.log.Info("certification claimed", "reviewer_id", reviewerID, "certification_id", certID)
	return nil
}
