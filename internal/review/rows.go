package review

import (
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/keyforge/accessreview/internal/keyforge"
)

const (
	StatusActive = "Active"

	TypeUserManager      = "User Manager"
	TypeAppOwner         = "App Owner"
	TypeEntitlementOwner = "Entitlement Owner"

	DemoCertificationID = "demo-certification"
)

// CertificationRow is one certification as shown in a reviewer's list.
type CertificationRow struct {
	ID                    string `json:"id"`
	ReviewerID            string `json:"reviewerId"`
	ReviewerName          string `json:"reviewerName"`
	TaskID                string `json:"taskId"`
	CampaignID            string `json:"campaignId"`
	Name                  string `json:"certificationName"`
	Type                  string `json:"certificationType"`
	Description           string `json:"certificationDescription"`
	Status                string `json:"status"`
	SignedOff             bool   `json:"certificationSignedOff"`
	CreatedOn             string `json:"certificationCreatedOn"`
	Expiration            string `json:"certificationExpiration"`
	Owner                 string `json:"certificationOwner"`
	Requester             string `json:"certificationRequester"`
	TotalActions          int    `json:"totalActions"`
	TotalActionsCompleted int    `json:"totalActionsCompleted"`
	Progress              int    `json:"progress"`
	Demo                  bool   `json:"demo,omitempty"`
}

// IsOpen reports whether the certification still awaits the reviewer.
func (r CertificationRow) IsOpen() bool {
	return r.Status == StatusActive && !r.SignedOff
}

// Percent returns round(100*done/total) clamped to [0,100], or 0 when total is not positive.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(done) / float64(total)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func certificationRow(raw keyforge.RawCertification) CertificationRow {
	return CertificationRow{
		ID:                    raw.CertificationID,
		ReviewerID:            raw.ReviewerID,
		ReviewerName:          raw.ReviewerName,
		TaskID:                raw.TaskID,
		CampaignID:            raw.CampaignID,
		Name:                  raw.CertificationName,
		Type:                  raw.CertificationType,
		Description:           raw.CertificationDescription,
		Status:                raw.Status,
		SignedOff:             raw.CertificationSignedOff,
		CreatedOn:             raw.CertificationCreatedOn,
		Expiration:            raw.CertificationExpiration,
		Owner:                 raw.CertificationOwner,
		Requester:             raw.CertificationRequester,
		TotalActions:          raw.ActionInfo.TotalActions,
		TotalActionsCompleted: raw.ActionInfo.TotalActionsCompleted,
		Progress:              Percent(raw.ActionInfo.TotalActionsCompleted, raw.ActionInfo.TotalActions),
	}
}

// demoRow is the sample certification every page starts with.
func demoRow(reviewerID string) CertificationRow {
	return CertificationRow{
		ID:                    DemoCertificationID,
		ReviewerID:            reviewerID,
		ReviewerName:          "Demo Reviewer",
		Name:                  "Demo Certification",
		Type:                  TypeUserManager,
		Description:           "Sample certification for walkthroughs",
		Status:                StatusActive,
		Owner:                 "Demo Owner",
		TotalActions:          10,
		TotalActionsCompleted: 4,
		Progress:              Percent(4, 10),
		Demo:                  true,
	}
}

// CertificationRows maps a backend page and prepends the demo row.
func CertificationRows(reviewerID string, items []keyforge.RawCertification) []CertificationRow {
	out := make([]CertificationRow, 0, len(items)+1)
	out = append(out, demoRow(reviewerID))
	for _, raw := range items {
		out = append(out, certificationRow(raw))
	}
	return out
}

// FilterOpen keeps active certifications that are not signed off.
func FilterOpen(rows []CertificationRow) []CertificationRow {
	out := make([]CertificationRow, 0, len(rows))
	for _, r := range rows {
		if r.IsOpen() {
			out = append(out, r)
		}
	}
	return out
}

// Search keeps rows whose name, type or reviewer contains term, ignoring case. An empty term keeps all.
func Search(rows []CertificationRow, term string) []CertificationRow {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]CertificationRow, 0, len(rows))
	for _, r := range rows {
		if term == "" || matchesSearch(r, term) {
			out = append(out, r)
		}
	}
	return out
}

func matchesSearch(r CertificationRow, term string) bool {
	for _, field := range []string{r.Name, r.Type, r.ReviewerName, r.ReviewerID} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Filter is the default list view: open rows matching term. It only sees the rows of the
// current page, so a filtered page can be shorter than the requested size.
func Filter(rows []CertificationRow, term string) []CertificationRow {
	return Search(FilterOpen(rows), term)
}

// RouteFor returns the review screen a row opens, or false for types without one.
func RouteFor(r CertificationRow) (string, bool) {
	q := url.Values{}
	q.Set("reviewerId", r.ReviewerID)
	q.Set("certificationId", r.ID)
	switch r.Type {
	case TypeUserManager:
		return "/access-review/" + url.PathEscape(r.ReviewerID) + "/" + url.PathEscape(r.ID), true
	case TypeAppOwner:
		return "/app-owner?" + q.Encode(), true
	case TypeEntitlementOwner:
		return "/entitlement-owner?" + q.Encode(), true
	}
	return "", false
}

// CampaignSummary is the snapshot of the certification a reviewer opened.
type CampaignSummary struct {
	ReviewerID      string `json:"reviewerId"`
	CertificationID string `json:"certificationId"`
	CampaignID      string `json:"campaignId"`
	Name            string `json:"certificationName"`
	Type            string `json:"certificationType"`
	Status          string `json:"status"`
	DueDate         string `json:"dueDate"`
	TotalActions    int    `json:"totalActions"`
	Completed       int    `json:"totalActionsCompleted"`
	Progress        int    `json:"progress"`
}

func SummaryFor(r CertificationRow) CampaignSummary {
	return CampaignSummary{
		ReviewerID:      r.ReviewerID,
		CertificationID: r.ID,
		CampaignID:      r.CampaignID,
		Name:            r.Name,
		Type:            r.Type,
		Status:          r.Status,
		DueDate:         r.Expiration,
		TotalActions:    r.TotalActions,
		Completed:       r.TotalActionsCompleted,
		Progress:        r.Progress,
	}
}

// ExpiresAt parses the certification's expiration.
func (r CertificationRow) ExpiresAt() (time.Time, bool) {
	return parseDate(r.Expiration)
}
