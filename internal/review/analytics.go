package review

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/keyforge/accessreview/internal/keyforge"
)

const (
	RiskHigh = "High"
	RiskLow  = "Low"

	displayDateLayout = "01/02/2006"
)

var leadingDate = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}`)

type ReviewerProgress struct {
	ReviewerID   string `json:"reviewerId"`
	ReviewerName string `json:"reviewerName"`
	Total        int    `json:"total"`
	Completed    int    `json:"completed"`
	Pending      int    `json:"pending"`
	Revoked      int    `json:"revoked"`
	Progress     int    `json:"progress"`
	Risk         string `json:"risk"`
	LastUpdate   string `json:"lastUpdate"`
}

type StatusDistribution struct {
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Revoked   int `json:"revoked"`
}

type RiskImpact struct {
	ReviewerName string `json:"reviewerName"`
	Pending      int    `json:"pending"`
	Completed    int    `json:"completed"`
	Risk         string `json:"risk"`
}

type Donut struct {
	CompletedPercent int `json:"completedPercent"`
	RemainingPercent int `json:"remainingPercent"`
}

// CampaignReport is everything the campaign analytics view renders.
type CampaignReport struct {
	CampaignID           string             `json:"campaignId"`
	Name                 string             `json:"campaignName"`
	Description          string             `json:"description"`
	Status               string             `json:"status"`
	DueDate              string             `json:"dueDate"`
	TotalUsers           int                `json:"totalUsers"`
	HighRiskEntitlements int                `json:"highRiskEntitlements"`
	Reviewers            []ReviewerProgress `json:"reviewers"`
	Distribution         StatusDistribution `json:"distribution"`
	RiskTable            []RiskImpact       `json:"riskTable"`
	Donut                Donut              `json:"donut"`
}

// CampaignAnalytics fetches analytics for every campaign and reports on campaignID.
func (s *Service) CampaignAnalytics(ctx context.Context, campaignID string) (CampaignReport, error) {
	if err := requireField("campaignId", campaignID); err != nil {
		return CampaignReport{}, err
	}
	all, err := s.backend.CampaignAnalytics(ctx)
	if err != nil {
		return CampaignReport{}, fmt.Errorf("campaign analytics: %w", err)
	}
	campaign, ok := all.FindCampaign(campaignID)
	if !ok {
		return CampaignReport{}, fmt.Errorf("campaign %s: %w", campaignID, ErrNotFound)
	}
	return BuildCampaignReport(campaign), nil
}

// BuildCampaignReport derives the reviewer table and chart inputs from one campaign.
func BuildCampaignReport(c keyforge.Campaign) CampaignReport {
	report := CampaignReport{
		CampaignID:           c.CampaignID,
		Name:                 c.CampaignName,
		Description:          c.Description,
		Status:               c.Status,
		DueDate:              c.DueDate,
		TotalUsers:           c.TotalUsers,
		HighRiskEntitlements: c.HighRiskEntitlements,
		Reviewers:            make([]ReviewerProgress, 0, len(c.Reviewers)),
		RiskTable:            make([]RiskImpact, 0, len(c.Reviewers)),
	}
	totalActions := 0
	for _, r := range c.Reviewers {
		risk := reviewerRisk(r)
		report.Reviewers = append(report.Reviewers, ReviewerProgress{
			ReviewerID:   r.ReviewerID,
			ReviewerName: r.ReviewerName,
			Total:        r.NumOfActions,
			Completed:    r.NumOfCompletedActions,
			Pending:      r.NumOfPendingActions,
			Revoked:      r.NumOfRevokedActions,
			Progress:     Percent(r.NumOfCompletedActions, r.NumOfActions),
			Risk:         risk,
			LastUpdate:   LastUpdateDisplay(r.LastUpdated),
		})
		report.RiskTable = append(report.RiskTable, RiskImpact{
			ReviewerName: r.ReviewerName,
			Pending:      r.NumOfPendingActions,
			Completed:    r.NumOfCompletedActions,
			Risk:         risk,
		})
		report.Distribution.Completed += r.NumOfCompletedActions
		report.Distribution.Pending += r.NumOfPendingActions
		report.Distribution.Revoked += r.NumOfRevokedActions
		totalActions += r.NumOfActions
	}
	sort.SliceStable(report.RiskTable, func(i, j int) bool {
		return report.RiskTable[i].Pending > report.RiskTable[j].Pending
	})
	done := Percent(report.Distribution.Completed, totalActions)
	report.Donut = Donut{CompletedPercent: done, RemainingPercent: 100 - done}
	return report
}

func reviewerRisk(r keyforge.CampaignReviewer) string {
	if r.NumOfPendingActions > 0 {
		return RiskHigh
	}
	return RiskLow
}

// LastUpdateDisplay prefers the MM/DD/YYYY prefix the backend sends over reparsing the
// timestamp, and returns "-" when neither works.
func LastUpdateDisplay(raw string) string {
	raw = trimmed(raw)
	if m := leadingDate.FindString(raw); m != "" {
		return m
	}
	if t, ok := parseDate(raw); ok {
		return t.Format(displayDateLayout)
	}
	return "-"
}
