package review

import (
	"time"

	"github.com/keyforge/accessreview/internal/events"
)

// RowsChanged carries the latest certification page seen for a reviewer.
type RowsChanged struct {
	ReviewerID string
	Rows       []CertificationRow
}

type ProgressChanged struct {
	ReviewerID      string
	CertificationID string
	TaskID          string
	Summary         ProgressSummary
}

type CertificationSignedOff struct {
	ReviewerID      string
	CertificationID string
	UserName        string
	Comments        string
	At              time.Time
}

// RemediationApplied is published once per remediation batch that changed at least one row.
type RemediationApplied struct {
	ReviewerID      string
	ReviewerName    string
	CertificationID string
	Action          Action
	Succeeded       int
	Failed          int
	Skipped         int
}

var (
	TopicRowsChanged            = events.NewTopic[RowsChanged]("rows_changed")
	TopicCampaignSelected       = events.NewTopic[CampaignSummary]("campaign_selected")
	TopicProgressChanged        = events.NewTopic[ProgressChanged]("progress_changed")
	TopicCertificationSignedOff = events.NewTopic[CertificationSignedOff]("certification_signed_off")
	TopicRemediationApplied     = events.NewTopic[RemediationApplied]("remediation_applied")
)
