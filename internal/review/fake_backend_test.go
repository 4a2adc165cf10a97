package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/keyforge/accessreview/internal/keyforge"
	"github.com/keyforge/accessreview/internal/logging"
)

type revokeCall struct {
	TaskID     string
	LineItemID string
	Body       keyforge.ImmediateRevokeRequest
}

type modifyCall struct {
	TaskID     string
	LineItemID string
	Body       keyforge.ModifyAccessRequest
}

type fakeBackend struct {
	mu sync.Mutex

	certPages map[int]keyforge.Page[keyforge.RawCertification]
	certErr   error
	certCalls int

	taskPages map[int]keyforge.Page[keyforge.RawTask]
	taskCalls int

	accounts      map[string][]keyforge.Account
	lineItems     map[string][]keyforge.EntitlementDetail
	lineItemErr   map[string]error
	lineItemCalls int

	queryBody   string
	queryParams []any

	passwordOK  bool
	passwordFor string
	signedOff   []string
	reassigned  []keyforge.ReassignRequest

	modifyCalls []modifyCall
	modifyErr   map[string]error
	revokeCalls []revokeCall
	revokeErr   map[string]error

	analytics keyforge.CampaignAnalytics
}

func (f *fakeBackend) ListCertifications(ctx context.Context, reviewerID string, pageSize, pageNumber int) (keyforge.Page[keyforge.RawCertification], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.certCalls++
	if f.certErr != nil {
		return keyforge.Page[keyforge.RawCertification]{}, f.certErr
	}
	return f.certPages[pageNumber], nil
}

func (f *fakeBackend) CertificationDetails(ctx context.Context, reviewerID, certID string, pageSize, pageNumber int) (keyforge.Page[keyforge.RawTask], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taskCalls++
	return f.taskPages[pageNumber], nil
}

func (f *fakeBackend) FetchAccessDetails(ctx context.Context, reviewerID, certID, taskID, filter string, pageSize, pageNumber int) ([]keyforge.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[taskID], nil
}

func (f *fakeBackend) GetLineItemDetails(ctx context.Context, reviewerID, certID, taskID, lineItemID string) ([]keyforge.EntitlementDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lineItemCalls++
	if err := f.lineItemErr[lineItemID]; err != nil {
		return nil, err
	}
	return f.lineItems[lineItemID], nil
}

func (f *fakeBackend) ExecuteQuery(ctx context.Context, query string, params ...any) (keyforge.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryParams = params
	return keyforge.ParseQueryResult([]byte(f.queryBody))
}

func (f *fakeBackend) ValidatePassword(ctx context.Context, userName, password string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.passwordFor = userName
	return f.passwordOK, nil
}

func (f *fakeBackend) SignOffCertification(ctx context.Context, reviewerID, certID, comments string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedOff = append(f.signedOff, certID)
	return nil
}

func (f *fakeBackend) Reassign(ctx context.Context, req keyforge.ReassignRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reassigned = append(f.reassigned, req)
	return nil
}

func (f *fakeBackend) ModifyAccess(ctx context.Context, reviewerID, certID, taskID, lineItemID string, body keyforge.ModifyAccessRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modifyCalls = append(f.modifyCalls, modifyCall{TaskID: taskID, LineItemID: lineItemID, Body: body})
	return f.modifyErr[lineItemID]
}

func (f *fakeBackend) ImmediateRevoke(ctx context.Context, reviewerID, certID, taskID, lineItemID string, body keyforge.ImmediateRevokeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeCalls = append(f.revokeCalls, revokeCall{TaskID: taskID, LineItemID: lineItemID, Body: body})
	return f.revokeErr[lineItemID]
}

func (f *fakeBackend) CampaignAnalytics(ctx context.Context) (keyforge.CampaignAnalytics, error) {
	return f.analytics, nil
}

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, backend Backend, opts Options) *Service {
	t.Helper()
	opts.Logger = logging.Discard()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.ClaimDelay == 0 {
		opts.ClaimDelay = time.Millisecond
	}
	return NewService(backend, opts)
}
