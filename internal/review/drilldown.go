package review

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/keyforge/accessreview/internal/cache"
	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/keyforge"
	"github.com/keyforge/accessreview/internal/metrics"
)

type DrilldownState string

const (
	StateLoadingUsers        DrilldownState = "loading_users"
	StateUsersLoaded         DrilldownState = "users_loaded"
	StateUserSelected        DrilldownState = "user_selected"
	StateLoadingEntitlements DrilldownState = "loading_entitlements"
	StateEntitlementsLoaded  DrilldownState = "entitlements_loaded"
)

// Drilldown walks one certification from its users to the selected user's entitlements.
// Every load bumps a generation number; results of a load overtaken by a newer one are dropped.
type Drilldown struct {
	svc        *Service
	reviewerID string
	certID     string

	mu              sync.Mutex
	state           DrilldownState
	generation      uint64
	userPage        int
	totalUserPages  int
	totalUsers      int
	users           []UserRow
	selectedTaskID  string
	entitlementPage int
	entitlements    []EntitlementRow
	progress        ProgressSummary
	sidebarLoading  bool
	lastErr         string
}

// DrilldownSnapshot is a copy of the drill-down state safe to hand out.
type DrilldownSnapshot struct {
	ReviewerID      string           `json:"reviewerId"`
	CertificationID string           `json:"certificationId"`
	State           DrilldownState   `json:"state"`
	UserPage        int              `json:"userPage"`
	TotalUserPages  int              `json:"totalUserPages"`
	TotalUsers      int              `json:"totalUsers"`
	Users           []UserRow        `json:"users"`
	SelectedTaskID  string           `json:"selectedTaskId"`
	EntitlementPage int              `json:"entitlementPage"`
	Entitlements    []EntitlementRow `json:"entitlements"`
	Progress        ProgressSummary  `json:"progress"`
	Error           string           `json:"error,omitempty"`
}

// Drilldown returns the drill-down of a certification, creating it on first use. Each use
// restarts its idle expiry. When the registry is full of live entries the returned drill-down
// is not kept.
func (s *Service) Drilldown(reviewerID, certID string) *Drilldown {
	key := cache.Key(reviewerID, certID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.drilldowns.Get(key); ok {
		d := v.(*Drilldown)
		s.drilldowns.SetDefault(key, d)
		return d
	}
	d := &Drilldown{
		svc:        s,
		reviewerID: reviewerID,
		certID:     certID,
		state:      StateLoadingUsers,
		users:      []UserRow{},
	}
	if s.drilldowns.ItemCount() >= s.maxDrilldowns {
		s.drilldowns.DeleteExpired()
	}
	if s.drilldowns.ItemCount() >= s.maxDrilldowns {
		s.log.Warn("drill-down registry full; state will not be kept", "reviewer_id", reviewerID, "certification_id", certID, "limit", s.maxDrilldowns)
		return d
	}
	s.drilldowns.SetDefault(key, d)
	return d
}

// LookupDrilldown returns the certification's drill-down only if one is already kept.
func (s *Service) LookupDrilldown(reviewerID, certID string) (*Drilldown, bool) {
	v, ok := s.drilldowns.Get(cache.Key(reviewerID, certID))
	if !ok {
		return nil, false
	}
	return v.(*Drilldown), true
}

// DrilldownSnapshot returns the kept drill-down's state, or an idle snapshot when there is none.
func (s *Service) DrilldownSnapshot(reviewerID, certID string) DrilldownSnapshot {
	if d, ok := s.LookupDrilldown(reviewerID, certID); ok {
		return d.Snapshot()
	}
	return DrilldownSnapshot{
		ReviewerID:      reviewerID,
		CertificationID: certID,
		State:           StateLoadingUsers,
		Users:           []UserRow{},
		Entitlements:    []EntitlementRow{},
	}
}

func (d *Drilldown) Snapshot() DrilldownSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Drilldown) snapshotLocked() DrilldownSnapshot {
	return DrilldownSnapshot{
		ReviewerID:      d.reviewerID,
		CertificationID: d.certID,
		State:           d.state,
		UserPage:        d.userPage,
		TotalUserPages:  d.totalUserPages,
		TotalUsers:      d.totalUsers,
		Users:           append([]UserRow{}, d.users...),
		SelectedTaskID:  d.selectedTaskID,
		EntitlementPage: d.entitlementPage,
		Entitlements:    append([]EntitlementRow{}, d.entitlements...),
		Progress:        d.progress,
		Error:           d.lastErr,
	}
}

func (d *Drilldown) begin(state DrilldownState) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	d.state = state
	d.lastErr = ""
	return d.generation
}

// LoadUsers loads a page of users. When the selected user is not on the page the first
// user is selected and their entitlements are loaded.
func (d *Drilldown) LoadUsers(ctx context.Context, page int) (DrilldownSnapshot, error) {
	if err := requireField("reviewerId", d.reviewerID); err != nil {
		return d.Snapshot(), err
	}
	if err := requireField("certificationId", d.certID); err != nil {
		return d.Snapshot(), err
	}
	page = positiveOr(page, 1)
	gen := d.begin(StateLoadingUsers)

	raw, err := d.svc.userPage(ctx, d.reviewerID, d.certID, page)
	if err != nil {
		d.svc.log.Warn("user page fetch failed", "reviewer_id", d.reviewerID, "certification_id", d.certID, "page", page, "err", err)
		d.mu.Lock()
		if d.generation == gen {
			d.state = StateUsersLoaded
			d.lastErr = err.Error()
		}
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap, fmt.Errorf("load users: %w", err)
	}

	users := make([]UserRow, 0, len(raw.Items))
	for _, t := range raw.Items {
		users = append(users, UserRowFromTask(t))
	}

	d.mu.Lock()
	if d.generation != gen {
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap, nil
	}
	d.users = users
	d.userPage = page
	d.totalUserPages = raw.TotalPages
	d.totalUsers = raw.TotalItems
	d.state = StateUsersLoaded

	var selected *UserRow
	switch {
	case indexOfTask(users, d.selectedTaskID) >= 0:
		d.state = StateUserSelected
	case len(users) > 0:
		u := users[0]
		selected = &u
		d.selectedTaskID = u.TaskID
		d.state = StateUserSelected
	default:
		d.selectedTaskID = ""
	}
	snap := d.snapshotLocked()
	d.mu.Unlock()

	if selected == nil {
		return snap, nil
	}
	return d.loadEntitlements(ctx, *selected, 1)
}

func indexOfTask(users []UserRow, taskID string) int {
	if taskID == "" {
		return -1
	}
	for i, u := range users {
		if u.TaskID == taskID {
			return i
		}
	}
	return -1
}

// SelectUser selects a user on the current page and loads a page of their entitlements.
func (d *Drilldown) SelectUser(ctx context.Context, taskID string, page int) (DrilldownSnapshot, error) {
	d.mu.Lock()
	idx := indexOfTask(d.users, taskID)
	if idx < 0 {
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap, fmt.Errorf("user task %s: %w", taskID, ErrNotFound)
	}
	user := d.users[idx]
	d.selectedTaskID = user.TaskID
	d.state = StateUserSelected
	d.mu.Unlock()

	return d.loadEntitlements(ctx, user, positiveOr(page, 1))
}

// ScrollDown moves to the next user page. It is a no-op on the last page.
func (d *Drilldown) ScrollDown(ctx context.Context) (DrilldownSnapshot, error) {
	return d.changePage(ctx, 1)
}

// ScrollUp moves to the previous user page. It is a no-op on the first page.
func (d *Drilldown) ScrollUp(ctx context.Context) (DrilldownSnapshot, error) {
	return d.changePage(ctx, -1)
}

func (d *Drilldown) changePage(ctx context.Context, delta int) (DrilldownSnapshot, error) {
	d.mu.Lock()
	if d.sidebarLoading {
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap, ErrPageChangeInFlight
	}
	next := d.userPage + delta
	if next < 1 || (d.totalUserPages > 0 && next > d.totalUserPages) {
		snap := d.snapshotLocked()
		d.mu.Unlock()
		return snap, nil
	}
	d.sidebarLoading = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.sidebarLoading = false
		d.mu.Unlock()
	}()
	return d.LoadUsers(ctx, next)
}

func (d *Drilldown) loadEntitlements(ctx context.Context, user UserRow, page int) (DrilldownSnapshot, error) {
	gen := d.begin(StateLoadingEntitlements)
	s := d.svc

	key := cache.Key(certificationKey(d.reviewerID, d.certID), "entitlements", user.TaskID, strconv.Itoa(s.entitlementPageSize), strconv.Itoa(page))
	rows, err := cache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]EntitlementRow, error) {
		return s.fetchEntitlements(ctx, d.reviewerID, d.certID, user, page)
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.generation != gen {
		return d.snapshotLocked(), nil
	}
	d.entitlementPage = page
	d.state = StateEntitlementsLoaded
	if err != nil {
		s.log.Error("entitlement load failed", "reviewer_id", d.reviewerID, "certification_id", d.certID, "task_id", user.TaskID, "err", err)
		rows = []EntitlementRow{}
		d.lastErr = err.Error()
	}
	d.entitlements = rows
	d.progress = Summarize(rows)
	events.Publish(s.bus, TopicProgressChanged, ProgressChanged{
		ReviewerID:      d.reviewerID,
		CertificationID: d.certID,
		TaskID:          user.TaskID,
		Summary:         d.progress,
	})
	snap := d.snapshotLocked()
	if err != nil {
		return snap, fmt.Errorf("load entitlements: %w", err)
	}
	return snap, nil
}

// fetchEntitlements reads a page of the user's accounts and then every account's line item
// details in parallel. Rows keep account order.
func (s *Service) fetchEntitlements(ctx context.Context, reviewerID, certID string, user UserRow, page int) ([]EntitlementRow, error) {
	accounts, err := s.backend.FetchAccessDetails(ctx, reviewerID, certID, user.TaskID, "", s.entitlementPageSize, page)
	if err != nil {
		return nil, err
	}
	withItems := make([]keyforge.Account, 0, len(accounts))
	for _, a := range accounts {
		if trimmed(a.LineItemID) != "" {
			withItems = append(withItems, a)
		}
	}
	metrics.EntitlementFanoutSize.Observe(float64(len(withItems)))

	now := s.now()
	perAccount := make([][]EntitlementRow, len(withItems))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, acct := range withItems {
		g.Go(func() error {
			details, err := s.backend.GetLineItemDetails(gctx, reviewerID, certID, user.TaskID, acct.LineItemID)
			if err != nil {
				return fmt.Errorf("line item %s: %w", acct.LineItemID, err)
			}
			perAccount[i] = EntitlementRows(reviewerID, user, acct, details, now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []EntitlementRow
	for _, rows := range perAccount {
		out = append(out, rows...)
	}
	if out == nil {
		out = []EntitlementRow{}
	}
	return out, nil
}

// Entitlements returns a page of the user's entitlement rows without touching drill-down state.
// The user's task is resolved first so new-entitlement and SoD flags match the drill-down.
func (s *Service) Entitlements(ctx context.Context, reviewerID, certID, taskID string, page int) ([]EntitlementRow, error) {
	for _, f := range []struct{ name, value string }{
		{"reviewerId", reviewerID},
		{"certificationId", certID},
		{"taskId", taskID},
	} {
		if err := requireField(f.name, f.value); err != nil {
			return nil, err
		}
	}
	user, err := s.FindUser(ctx, reviewerID, certID, taskID)
	if err != nil {
		return nil, err
	}
	return s.fetchEntitlements(ctx, reviewerID, certID, user, positiveOr(page, 1))
}

// FindUser looks the task up among the drill-down's loaded users and then walks the
// certification's user pages until it is found.
func (s *Service) FindUser(ctx context.Context, reviewerID, certID, taskID string) (UserRow, error) {
	if d, ok := s.LookupDrilldown(reviewerID, certID); ok {
		d.mu.Lock()
		idx := indexOfTask(d.users, taskID)
		var user UserRow
		if idx >= 0 {
			user = d.users[idx]
		}
		d.mu.Unlock()
		if idx >= 0 {
			return user, nil
		}
	}
	for page, total := 1, 1; page <= total; page++ {
		raw, err := s.userPage(ctx, reviewerID, certID, page)
		if err != nil {
			return UserRow{}, fmt.Errorf("find user: %w", err)
		}
		total = raw.TotalPages
		for _, t := range raw.Items {
			if t.TaskID == taskID {
				user := UserRowFromTask(t)
				if user.CertificationID == "" {
					user.CertificationID = certID
				}
				return user, nil
			}
		}
	}
	return UserRow{}, fmt.Errorf("user task %s: %w", taskID, ErrNotFound)
}
