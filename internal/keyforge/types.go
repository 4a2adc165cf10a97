package keyforge

import "strings"

// Page is the paginated envelope the certification backend wraps list responses in.
type Page[T any] struct {
	Items      []T `json:"items"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// ActionInfo carries the reviewer's action counters for one certification.
type ActionInfo struct {
	TotalActions          int `json:"totalActions"`
	TotalActionsCompleted int `json:"totalActionsCompleted"`
}

type RawCertification struct {
	ReviewerID               string     `json:"reviewerId"`
	ReviewerName             string     `json:"reviewerName"`
	CertificationID          string     `json:"certificationId"`
	TaskID                   string     `json:"taskId"`
	CampaignID               string     `json:"campaignId"`
	CertificationName        string     `json:"certificationName"`
	CertificationType        string     `json:"certificationType"`
	CertificationDescription string     `json:"certificationDescription"`
	Status                   string     `json:"status"`
	CertificationSignedOff   bool       `json:"certificationSignedOff"`
	CertificationExpiration  string     `json:"certificationExpiration"`
	CertificationCreatedOn   string     `json:"certificationCreatedOn"`
	CertificationOwner       string     `json:"certificationOwner"`
	CertificationRequester   string     `json:"certificationRequester"`
	ActionInfo               ActionInfo `json:"reviewerCertificationActionInfo"`
}

type UserProfile struct {
	UserID     string `json:"userId"`
	UserName   string `json:"username"`
	FirstName  string `json:"firstname"`
	LastName   string `json:"lastname"`
	Email      string `json:"email"`
	Manager    string `json:"manager"`
	Department string `json:"department"`
	JobTitle   string `json:"jobtitle"`
	Status     string `json:"userStatus"`
	UserType   string `json:"userType"`
}

type AccessSummary struct {
	NumOfApplications          int `json:"numOfApplications"`
	NumOfApplicationsCertified int `json:"numOfApplicationsCertified"`
	NumOfAccounts              int `json:"numOfAccounts"`
	NumOfRoles                 int `json:"numOfRoles"`
	NumOfRolesCertified        int `json:"numOfRolesCertified"`
	NumOfEntitlements          int `json:"numOfEntitlements"`
	NumOfEntitlementsCertified int `json:"numOfEntitlementsCertified"`
}

type DeltaChanges struct {
	AddedAccounts     []string `json:"addedAccounts"`
	AddedEntitlements []string `json:"addedEntitlements"`
	SoDConflicts      []string `json:"SoDConflicts"`
}

// RawTask is one review unit (a user under review) inside a certification.
type RawTask struct {
	TaskID          string        `json:"taskId"`
	CertificationID string        `json:"certificationId"`
	UserInfo        UserProfile   `json:"userInfo"`
	Access          AccessSummary `json:"access"`
	DeltaChanges    DeltaChanges  `json:"deltaChanges"`
}

// Account is one granted account under a task; its line item id addresses the entitlement lookup.
type Account struct {
	LineItemID      string `json:"lineItemId"`
	AccountID       string `json:"accountId"`
	AccountName     string `json:"accountName"`
	AccountType     string `json:"accountType"`
	ApplicationID   string `json:"applicationId"`
	ApplicationName string `json:"applicationName"`
	ApplicationRisk string `json:"applicationRisk"`
	LastLoginDate   string `json:"lastLoginDate"`
	Action          string `json:"action"`
	Status          string `json:"status"`
}

type EntitlementDetail struct {
	LineItemID             string `json:"lineItemId"`
	ParentLineItemID       string `json:"parentLineItemId"`
	EntitlementID          string `json:"entitlementId"`
	EntitlementName        string `json:"entitlementName"`
	EntitlementType        string `json:"entitlementType"`
	EntitlementDescription string `json:"entitlementDescription"`
	ApplicationName        string `json:"applicationName"`
	Risk                   string `json:"risk"`
	Recommendation         string `json:"recommendation"`
	Action                 string `json:"action"`
	Status                 string `json:"status"`
	IsDelta                bool   `json:"isDelta"`
	ComplianceViolation    bool   `json:"complianceViolation"`
	LastReviewedOn         string `json:"lastReviewedOn"`
	AccessedWithin         string `json:"accessedWithin"`
}

type OwnerDetails struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type ReassignRequest struct {
	ReviewerName     string       `json:"reviewerName"`
	ReviewerID       string       `json:"reviewerId"`
	CertificationID  string       `json:"certificationId"`
	TaskID           string       `json:"taskId"`
	LineItemID       string       `json:"lineItemId"`
	AssignmentEntity string       `json:"assignmentEntity"`
	NewOwnerDetails  OwnerDetails `json:"newOwnerDetails"`
	Justification    string       `json:"justification"`
}

// AccessChange is one entry of a modify-access removeAccess/addAccess list.
type AccessChange struct {
	LineItemID      string `json:"lineItemId,omitempty"`
	AccountID       string `json:"accountId,omitempty"`
	ApplicationName string `json:"applicationName,omitempty"`
	EntitlementName string `json:"entitlementName"`
	EndDate         string `json:"endDate,omitempty"`
	Justification   string `json:"justification,omitempty"`
}

type ModifyAccessRequest struct {
	ReviewerName    string         `json:"reviewerName"`
	ReviewerID      string         `json:"reviewerId"`
	CertificationID string         `json:"certificationId"`
	TaskID          string         `json:"taskId"`
	RemoveAccess    []AccessChange `json:"removeAccess"`
	AddAccess       []AccessChange `json:"addAccess"`
}

type RevokeEntitlement struct {
	LineItemID       string `json:"lineItemId"`
	ParentLineItemID string `json:"parentLineItemId,omitempty"`
	AccountID        string `json:"accountId,omitempty"`
	ApplicationName  string `json:"applicationName"`
	EntitlementName  string `json:"entitlementName"`
	Justification    string `json:"justification"`
}

type ImmediateRevokeRequest struct {
	ReviewerName       string              `json:"reviewerName"`
	ReviewerID         string              `json:"reviewerId"`
	CertificationID    string              `json:"certificationId"`
	TaskID             string              `json:"taskId"`
	RevokeEntityType   string              `json:"revokeEntityType"`
	RemoveAccounts     []string            `json:"removeAccounts"`
	RemoveEntitlements []RevokeEntitlement `json:"removeEntitlements"`
}

type QueryRequest struct {
	Query      string `json:"query"`
	Parameters []any  `json:"parameters"`
}

type CampaignReviewer struct {
	ReviewerID            string `json:"reviewerId"`
	ReviewerName          string `json:"reviewerName"`
	NumOfActions          int    `json:"numOfActions"`
	NumOfCompletedActions int    `json:"numOfCompletedActions"`
	NumOfPendingActions   int    `json:"numOfPendingActions"`
	NumOfRevokedActions   int    `json:"numOfRevokedActions"`
	LastUpdated           string `json:"lastUpdated"`
}

type Campaign struct {
	CampaignID           string             `json:"campaignId"`
	CampaignName         string             `json:"campaignName"`
	Description          string             `json:"description"`
	Status               string             `json:"status"`
	DueDate              string             `json:"dueDate"`
	TotalUsers           int                `json:"totalUsers"`
	HighRiskEntitlements int                `json:"highRiskEntitlements"`
	Reviewers            []CampaignReviewer `json:"reviewers"`
}

type CampaignAnalytics struct {
	Campaigns []Campaign `json:"campaigns"`
}

// FindCampaign returns the campaign with the given id, matching case-insensitively.
func (a CampaignAnalytics) FindCampaign(id string) (Campaign, bool) {
	id = strings.TrimSpace(id)
	for _, c := range a.Campaigns {
		if strings.EqualFold(strings.TrimSpace(c.CampaignID), id) {
			return c, true
		}
	}
	return Campaign{}, false
}
