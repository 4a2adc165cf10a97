package review

import (
	"slices"
	"time"

	"github.com/keyforge/accessreview/internal/keyforge"
)

const (
	reviewWindow          = 30 * 24 * time.Hour
	recommendationCertify = "Certify"
)

// UserRow is one user under review in a certification.
type UserRow struct {
	TaskID                     string   `json:"taskId"`
	CertificationID            string   `json:"certificationId"`
	UserID                     string   `json:"userId"`
	UserName                   string   `json:"username"`
	FirstName                  string   `json:"firstname"`
	LastName                   string   `json:"lastname"`
	FullName                   string   `json:"fullName"`
	Email                      string   `json:"email"`
	Manager                    string   `json:"manager"`
	Department                 string   `json:"department"`
	JobTitle                   string   `json:"jobtitle"`
	Status                     string   `json:"userStatus"`
	UserType                   string   `json:"userType"`
	NumOfApplications          int      `json:"numOfApplications"`
	NumOfApplicationsCertified int      `json:"numOfApplicationsCertified"`
	NumOfAccounts              int      `json:"numOfAccounts"`
	NumOfRoles                 int      `json:"numOfRoles"`
	NumOfRolesCertified        int      `json:"numOfRolesCertified"`
	NumOfEntitlements          int      `json:"numOfEntitlements"`
	NumOfEntitlementsCertified int      `json:"numOfEntitlementsCertified"`
	Percentage                 int      `json:"percentage"`
	AddedAccounts              []string `json:"addedAccounts"`
	AddedEntitlements          []string `json:"addedEntitlements"`
	SoDConflicts               []string `json:"SoDConflicts"`
}

// UserRowFromTask maps a review task. FullName joins first and last name without a space,
// matching what reviewers already see in the console.
func UserRowFromTask(t keyforge.RawTask) UserRow {
	u := t.UserInfo
	return UserRow{
		TaskID:                     t.TaskID,
		CertificationID:            t.CertificationID,
		UserID:                     u.UserID,
		UserName:                   u.UserName,
		FirstName:                  u.FirstName,
		LastName:                   u.LastName,
		FullName:                   u.FirstName + u.LastName,
		Email:                      u.Email,
		Manager:                    u.Manager,
		Department:                 u.Department,
		JobTitle:                   u.JobTitle,
		Status:                     u.Status,
		UserType:                   u.UserType,
		NumOfApplications:          t.Access.NumOfApplications,
		NumOfApplicationsCertified: t.Access.NumOfApplicationsCertified,
		NumOfAccounts:              t.Access.NumOfAccounts,
		NumOfRoles:                 t.Access.NumOfRoles,
		NumOfRolesCertified:        t.Access.NumOfRolesCertified,
		NumOfEntitlements:          t.Access.NumOfEntitlements,
		NumOfEntitlementsCertified: t.Access.NumOfEntitlementsCertified,
		Percentage:                 Percent(t.Access.NumOfEntitlementsCertified, t.Access.NumOfEntitlements),
		AddedAccounts:              nonNil(t.DeltaChanges.AddedAccounts),
		AddedEntitlements:          nonNil(t.DeltaChanges.AddedEntitlements),
		SoDConflicts:               nonNil(t.DeltaChanges.SoDConflicts),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// EntitlementRow is one entitlement held through one account, the unit remediation acts on.
type EntitlementRow struct {
	ReviewerID              string `json:"reviewerId"`
	CertificationID         string `json:"certificationId"`
	TaskID                  string `json:"taskId"`
	UserName                string `json:"userName"`
	LineItemID              string `json:"lineItemId"`
	AccountLineItemID       string `json:"accountLineItemId"`
	ParentLineItemID        string `json:"parentLineItemId"`
	AccountID               string `json:"accountId"`
	AccountName             string `json:"accountName"`
	AccountType             string `json:"accountType"`
	ApplicationID           string `json:"applicationId"`
	ApplicationName         string `json:"applicationName"`
	ApplicationRisk         string `json:"applicationRisk"`
	LastLoginDate           string `json:"lastLoginDate"`
	EntitlementID           string `json:"entitlementId"`
	EntitlementName         string `json:"entitlementName"`
	EntitlementType         string `json:"entitlementType"`
	EntitlementDescription  string `json:"entitlementDescription"`
	Risk                    string `json:"risk"`
	Recommendation          string `json:"recommendation"`
	Action                  string `json:"action"`
	Status                  string `json:"status"`
	LastReviewedOn          string `json:"lastReviewedOn"`
	CertificationExpiration string `json:"certificationExpiration,omitempty"`
	IsNew                   bool   `json:"isNew"`
	IsDelta                 bool   `json:"isDelta"`
	ComplianceViolation     bool   `json:"complianceViolation"`
	SoDViolation            bool   `json:"sodViolation"`
	AICertify               bool   `json:"aiCertify"`
	ReviewedWithinMonth     bool   `json:"reviewedWithinMonth"`
}

// IsEmpty reports whether the row carries no data at all.
func (r EntitlementRow) IsEmpty() bool {
	return r == EntitlementRow{}
}

// Key identifies the row within a result list.
func (r EntitlementRow) Key() string {
	switch {
	case r.LineItemID != "":
		return r.LineItemID
	case r.EntitlementID != "":
		return r.EntitlementID
	}
	return r.AccountLineItemID + "/" + r.EntitlementName
}

// DefinedRows drops empty selections.
func DefinedRows(rows []EntitlementRow) []EntitlementRow {
	out := make([]EntitlementRow, 0, len(rows))
	for _, r := range rows {
		if !r.IsEmpty() {
			out = append(out, r)
		}
	}
	return out
}

// EntitlementRows joins one account with its line item details.
func EntitlementRows(reviewerID string, user UserRow, acct keyforge.Account, details []keyforge.EntitlementDetail, now time.Time) []EntitlementRow {
	out := make([]EntitlementRow, 0, len(details))
	for _, d := range details {
		row := EntitlementRow{
			ReviewerID:             reviewerID,
			CertificationID:        user.CertificationID,
			TaskID:                 user.TaskID,
			UserName:               user.FullName,
			LineItemID:             firstNonEmpty(d.LineItemID, acct.LineItemID),
			AccountLineItemID:      acct.LineItemID,
			ParentLineItemID:       firstNonEmpty(d.ParentLineItemID, acct.LineItemID),
			AccountID:              acct.AccountID,
			AccountName:            acct.AccountName,
			AccountType:            acct.AccountType,
			ApplicationID:          acct.ApplicationID,
			ApplicationName:        firstNonEmpty(d.ApplicationName, acct.ApplicationName),
			ApplicationRisk:        acct.ApplicationRisk,
			LastLoginDate:          acct.LastLoginDate,
			EntitlementID:          d.EntitlementID,
			EntitlementName:        d.EntitlementName,
			EntitlementType:        d.EntitlementType,
			EntitlementDescription: d.EntitlementDescription,
			Risk:                   d.Risk,
			Recommendation:         d.Recommendation,
			Action:                 firstNonEmpty(d.Action, acct.Action),
			Status:                 firstNonEmpty(d.Status, acct.Status),
			LastReviewedOn:         d.LastReviewedOn,
			IsNew:                  slices.Contains(user.AddedEntitlements, d.EntitlementName),
			IsDelta:                d.IsDelta,
			ComplianceViolation:    d.ComplianceViolation,
			SoDViolation:           len(user.SoDConflicts) > 0,
			AICertify:              d.Recommendation == recommendationCertify,
			ReviewedWithinMonth:    ReviewedWithinMonth(d.LastReviewedOn, now),
		}
		out = append(out, row)
	}
	return out
}

// ReviewedWithinMonth reports whether lastReviewed parses and lies no more than 30 days before now.
func ReviewedWithinMonth(lastReviewed string, now time.Time) bool {
	t, ok := parseDate(lastReviewed)
	if !ok {
		return false
	}
	return now.Sub(t) <= reviewWindow
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed(v) != "" {
			return v
		}
	}
	return ""
}
