package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v5"

	"github.com/keyforge/accessreview/internal/cache"
	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/review"
)

const progressBuffer = 64

// ProgressBoard keeps the latest progress summary of every user whose entitlements were
// loaded, fed from TopicProgressChanged.
type ProgressBoard struct {
	mu     sync.RWMutex
	byCert map[string]map[string]review.ProgressSummary
}

func NewProgressBoard() *ProgressBoard {
	return &ProgressBoard{byCert: map[string]map[string]review.ProgressSummary{}}
}

// Apply records one progress event.
func (p *ProgressBoard) Apply(ev review.ProgressChanged) {
	key := cache.Key(ev.ReviewerID, ev.CertificationID)
	p.mu.Lock()
	defer p.mu.Unlock()
	tasks, ok := p.byCert[key]
	if !ok {
		tasks = map[string]review.ProgressSummary{}
		p.byCert[key] = tasks
	}
	tasks[ev.TaskID] = ev.Summary
}

// Certification returns the per-task summaries and their total.
func (p *ProgressBoard) Certification(reviewerID, certID string) (map[string]review.ProgressSummary, review.ProgressSummary) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tasks := p.byCert[cache.Key(reviewerID, certID)]
	out := make(map[string]review.ProgressSummary, len(tasks))
	var total review.ProgressSummary
	for task, s := range tasks {
		out[task] = s
		total.TotalItems += s.TotalItems
		total.ApprovedCount += s.ApprovedCount
		total.PendingCount += s.PendingCount
		total.RevokedCount += s.RevokedCount
		total.DelegatedCount += s.DelegatedCount
		total.RemediatedCount += s.RemediatedCount
	}
	return out, total
}

// Run applies progress events from bus until ctx is done.
func (p *ProgressBoard) Run(ctx context.Context, bus *events.Bus) {
	if bus == nil {
		return
	}
	sub := events.Subscribe(bus, review.TopicProgressChanged, progressBuffer)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			p.Apply(ev)
		}
	}
}

type progressResponse struct {
	ReviewerID      string                            `json:"reviewerId"`
	CertificationID string                            `json:"certificationId"`
	Tasks           map[string]review.ProgressSummary `json:"tasks"`
	Total           review.ProgressSummary            `json:"total"`
}

// HandleProgress returns the progress seen so far for a certification's users.
func (h *Handlers) HandleProgress(c *echo.Context) error {
	reviewerID := c.Param("reviewerId")
	certID := c.Param("certId")
	resp := progressResponse{ReviewerID: reviewerID, CertificationID: certID, Tasks: map[string]review.ProgressSummary{}}
	if h.Progress != nil {
		resp.Tasks, resp.Total = h.Progress.Certification(reviewerID, certID)
	}
	return c.JSON(http.StatusOK, resp)
}
