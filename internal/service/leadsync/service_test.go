package leadsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/facebook"
	"github.com/huffhealth/crm/internal/pkg/distlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type mockRepo struct {
	mu           sync.RWMutex
	integrations map[string]*domain.FacebookIntegration
	leads        []*domain.Lead
	activities   []*domain.Activity
	watermarks   map[string]time.Time

	createErr error
}

func newMockRepo(integs ...*domain.FacebookIntegration) *mockRepo {
	m := &mockRepo{
		integrations: make(map[string]*domain.FacebookIntegration),
		watermarks:   make(map[string]time.Time),
	}
	for _, i := range integs {
		m.integrations[i.ID] = i
	}
	return m
}

func (m *mockRepo) GetIntegration(_ context.Context, id string) (*domain.FacebookIntegration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.integrations[id]
	if !ok {
		return nil, ErrIntegrationNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *mockRepo) FindIntegrationByPage(_ context.Context, pageID string) (*domain.FacebookIntegration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, i := range m.integrations {
		if i.PageID == pageID {
			cp := *i
			return &cp, nil
		}
	}
	return nil, ErrIntegrationNotFound
}

func (m *mockRepo) ListActiveIntegrations(_ context.Context) ([]*domain.FacebookIntegration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.FacebookIntegration
	for _, i := range m.integrations {
		if i.IsActive {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) SaveIntegration(_ context.Context, integ *domain.FacebookIntegration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.integrations {
		if existing.PageID == integ.PageID {
			integ.ID = existing.ID
		}
	}
	cp := *integ
	m.integrations[integ.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateLastSynced(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks[id] = at
	if i, ok := m.integrations[id]; ok {
		i.LastSyncedAt = &at
	}
	return nil
}

func (m *mockRepo) FindLeadByEmail(_ context.Context, ownerID, email string) (*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.leads {
		if l.OwnerID == ownerID && strings.EqualFold(l.Email, email) {
			return l, nil
		}
	}
	return nil, ErrLeadNotFound
}

func (m *mockRepo) FindLeadByCustomField(_ context.Context, ownerID, key, value string) (*domain.Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.leads {
		if v, ok := l.CustomFields.Get(key); ok && l.OwnerID == ownerID && v == value {
			return l, nil
		}
	}
	return nil, ErrLeadNotFound
}

func (m *mockRepo) CreateLead(_ context.Context, lead *domain.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil && lead.LastName == "Broken" {
		return m.createErr
	}
	m.leads = append(m.leads, lead)
	return nil
}

func (m *mockRepo) UpdateCustomFields(_ context.Context, leadID string, fields domain.CustomFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.ID == leadID {
			l.CustomFields = fields
			return nil
		}
	}
	return ErrLeadNotFound
}

func (m *mockRepo) InsertActivity(_ context.Context, a *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, a)
	return nil
}

// fakeSource serves leads per form; formErr makes one form fail.
type fakeSource struct {
	forms    map[string][]facebook.Lead
	single   map[string]*facebook.Lead
	formErr  map[string]error
	getErr   error
	sinceLog []time.Time
}

func (f *fakeSource) GetLead(_ context.Context, token, id string) (*facebook.Lead, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	l, ok := f.single[id]
	if !ok {
		return nil, &facebook.APIError{StatusCode: 404, Message: "Unsupported get request"}
	}
	cp := *l
	return &cp, nil
}

func (f *fakeSource) ListFormLeads(_ context.Context, token, formID string, since time.Time) ([]facebook.Lead, error) {
	f.sinceLog = append(f.sinceLog, since)
	if err := f.formErr[formID]; err != nil {
		return nil, err
	}
	out := make([]facebook.Lead, len(f.forms[formID]))
	copy(out, f.forms[formID])
	return out, nil
}

type fakeCreds struct{ err error }

func (c fakeCreds) AccessToken(context.Context, *domain.FacebookIntegration) (string, error) {
	return "page-token", c.err
}

func (c fakeCreds) SealToken(_ context.Context, token string) (string, error) {
	return "sealed:" + token, c.err
}

type stubLock struct{ acquired bool }

func (l *stubLock) Acquire(context.Context) (bool, error) { return l.acquired, nil }
func (l *stubLock) Release(context.Context) error         { return nil }

// expiringLock is a held lock that can be renewed until lostAfter calls.
type expiringLock struct {
	stubLock
	extends   []time.Duration
	lostAfter int
}

func (l *expiringLock) Extend(_ context.Context, ttl time.Duration) error {
	l.extends = append(l.extends, ttl)
	if l.lostAfter > 0 && len(l.extends) > l.lostAfter {
		return distlock.ErrNotHeld
	}
	return nil
}

// =============================================================================
// TEST HELPERS
// =============================================================================

func activeIntegration() *domain.FacebookIntegration {
	return &domain.FacebookIntegration{
		ID:       "int-1",
		OwnerID:  "agent-7",
		PageID:   "page-1",
		PageName: "Huff Health",
		FormIDs:  []string{"form-a", "form-b"},
		ListID:   "list-fb",
		IsActive: true,
	}
}

func fbLead(id, email, fullName string, extra ...facebook.FieldValue) facebook.Lead {
	fields := []facebook.FieldValue{
		{Name: "email", Values: []string{email}},
		{Name: "full_name", Values: []string{fullName}},
	}
	return facebook.Lead{
		ID:          id,
		CreatedTime: "2024-03-01T10:15:00+0000",
		FieldData:   append(fields, extra...),
	}
}

var fixedNow = time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestService(repo *mockRepo, src *fakeSource, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(repo, src, fakeCreds{}, opts...)
}

// =============================================================================
// MAPPING
// =============================================================================

func TestMapLead(t *testing.T) {
	fb := &facebook.Lead{
		ID:           "fb-1",
		CreatedTime:  "2024-03-01T10:15:00+0000",
		FormID:       "form-a",
		AdID:         "ad-9",
		CampaignName: "Spring Medicare",
		FieldData: []facebook.FieldValue{
			{Name: "full_name", Values: []string{"Mary Ann Smith"}},
			{Name: "email", Values: []string{" mary@x.com "}},
			{Name: "phone_number", Values: []string{"+15550100"}},
			{Name: "insurance_type", Values: []string{"medicare / advantage"}},
			{Name: "zip_code", Values: []string{"30301"}},
			{Name: "best_time_to_call", Values: []string{""}},
		},
	}

	lead := MapLead(fb, DefaultSource)

	assert.Equal(t, "Mary", lead.FirstName)
	assert.Equal(t, "Ann Smith", lead.LastName)
	assert.Equal(t, "mary@x.com", lead.Email)
	assert.Equal(t, "+15550100", lead.Phone)
	assert.Equal(t, domain.InsuranceMedicareAdvantage, lead.InsuranceType)
	assert.Equal(t, DefaultSource, lead.Source)
	assert.Equal(t, "fb-1", lead.ExternalLeadID)
	assert.Equal(t, domain.LeadNew, lead.Status)

	assert.Equal(t, []string{
		"zip_code", KeyLeadID, KeyCreatedTime, KeyFormID, KeyAdID, KeyCampaignName,
	}, lead.CustomFields.Keys())
	v, _ := lead.CustomFields.Get(KeyLeadID)
	assert.Equal(t, "fb-1", v)
	assert.False(t, lead.CustomFields.Has("full_name"), "translated fields are not kept as custom fields")
}

func TestMapLead_NameFallbacks(t *testing.T) {
	tests := []struct {
		name        string
		fields      []facebook.FieldValue
		first, last string
	}{
		{"first and last", []facebook.FieldValue{
			{Name: "first_name", Values: []string{"Ann"}},
			{Name: "last_name", Values: []string{"Lee"}},
			{Name: "full_name", Values: []string{"Ignored Name"}},
		}, "Ann", "Lee"},
		{"single token full name", []facebook.FieldValue{{Name: "full_name", Values: []string{"Cher"}}}, "Cher", domain.UnknownName},
		{"only last name", []facebook.FieldValue{{Name: "last_name", Values: []string{"Lee"}}}, domain.UnknownName, "Lee"},
		{"no name at all", []facebook.FieldValue{{Name: "email", Values: []string{"a@b.c"}}}, domain.UnknownName, domain.UnknownName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead := MapLead(&facebook.Lead{ID: "x", FieldData: tt.fields}, DefaultSource)
			assert.Equal(t, tt.first, lead.FirstName)
			assert.Equal(t, tt.last, lead.LastName)
		})
	}
}

// =============================================================================
// PULL
// =============================================================================

func TestSyncSince_CreatesAndCountsDuplicates(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	repo.leads = append(repo.leads, &domain.Lead{ID: "existing", OwnerID: "agent-7", Email: "TAKEN@x.com"})
	src := &fakeSource{forms: map[string][]facebook.Lead{
		"form-a": {fbLead("fb-1", "new@x.com", "New Person"), fbLead("fb-2", "taken@x.com", "Dup Person")},
		"form-b": {fbLead("fb-3", "", "No Email")},
	}}

	res, err := newTestService(repo, src).SyncSince(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{Synced: 2, Duplicates: 1, Errors: 0}, *res)

	require.Len(t, repo.leads, 3)
	created := repo.leads[1]
	assert.Equal(t, "list-fb", created.ListID)
	assert.Equal(t, "agent-7", created.OwnerID)
	formID, _ := created.CustomFields.Get(KeyFormID)
	assert.Equal(t, "form-a", formID, "form id is filled from the listing")

	assert.Equal(t, fixedNow, repo.watermarks["int-1"])
	require.Len(t, repo.activities, 1)
	assert.Equal(t, domain.ActivityFacebookSync, repo.activities[0].Type)
}

func TestSyncSince_IdempotentOnRerun(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	src := &fakeSource{forms: map[string][]facebook.Lead{
		"form-a": {fbLead("fb-1", "a@x.com", "A One"), fbLead("fb-2", "", "B Two")},
	}}
	svc := newTestService(repo, src)

	first, err := svc.SyncSince(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, 2, first.Synced)

	second, err := svc.SyncSince(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Synced)
	assert.Equal(t, 2, second.Duplicates, "email match and facebook id match both count")
	assert.Len(t, repo.leads, 2)

	require.Len(t, src.sinceLog, 4)
	assert.True(t, src.sinceLog[0].IsZero(), "first run reads the whole history")
	assert.Equal(t, fixedNow, src.sinceLog[2], "second run starts at the watermark")
}

func TestSyncSince_ErrorsAreCountedNotFatal(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	repo.createErr = errors.New("insert failed")
	src := &fakeSource{
		forms: map[string][]facebook.Lead{
			"form-b": {fbLead("fb-1", "ok@x.com", "Good Lead"), fbLead("fb-2", "bad@x.com", "Very Broken"), fbLead("fb-3", "ok2@x.com", "Also Good")},
		},
		formErr: map[string]error{"form-a": errors.New("graph timeout")},
	}

	res, err := newTestService(repo, src).SyncSince(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncResult{Synced: 2, Duplicates: 0, Errors: 2}, *res)
	assert.Equal(t, fixedNow, repo.watermarks["int-1"], "watermark advances despite errors")
}

func TestSyncSince_UnavailableIntegration(t *testing.T) {
	inactive := activeIntegration()
	inactive.IsActive = false
	repo := newMockRepo(inactive)
	svc := newTestService(repo, &fakeSource{})

	_, err := svc.SyncSince(context.Background(), "int-1")
	assert.ErrorIs(t, err, ErrIntegrationUnavailable)

	_, err = svc.SyncSince(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrIntegrationUnavailable)
	assert.Empty(t, repo.watermarks)
}

func TestSyncSince_CredentialFailureKeepsWatermark(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	svc := NewService(repo, &fakeSource{}, fakeCreds{err: errors.New("cipher: message authentication failed")})

	res, err := svc.SyncSince(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Empty(t, repo.watermarks)
}

func TestSyncSince_LockHeld(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	var keys []string
	held := func(key string, _ time.Duration) distlock.DistLock {
		keys = append(keys, key)
		return &stubLock{acquired: false}
	}
	svc := newTestService(repo, &fakeSource{}, WithLocker(held))

	_, err := svc.SyncSince(context.Background(), "int-1")
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Equal(t, []string{"leadsync:int-1"}, keys)
}

func TestSyncSince_RenewsLockPerForm(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	lock := &expiringLock{stubLock: stubLock{acquired: true}, lostAfter: 1}
	src := &fakeSource{forms: map[string][]facebook.Lead{
		"form-a": {fbLead("fb-1", "a@x.com", "A One")},
		"form-b": {fbLead("fb-2", "b@x.com", "B Two")},
	}}
	svc := newTestService(repo, src, WithLocker(func(string, time.Duration) distlock.DistLock { return lock }))

	res, err := svc.SyncSince(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{syncLockTTL, syncLockTTL}, lock.extends)
	assert.Equal(t, 2, res.Synced, "a lost lock does not abort the run")
	assert.Equal(t, fixedNow, repo.watermarks["int-1"])
}

func TestSyncAll(t *testing.T) {
	second := activeIntegration()
	second.ID, second.PageID, second.OwnerID, second.FormIDs = "int-2", "page-2", "agent-8", []string{"form-c"}
	off := activeIntegration()
	off.ID, off.PageID, off.IsActive = "int-3", "page-3", false

	repo := newMockRepo(activeIntegration(), second, off)
	src := &fakeSource{forms: map[string][]facebook.Lead{
		"form-a": {fbLead("fb-1", "a@x.com", "A One")},
		"form-c": {fbLead("fb-9", "a@x.com", "A One")},
	}}

	total, err := newTestService(repo, src).SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total.Synced, "dedup is scoped to the owner")
	assert.Len(t, repo.watermarks, 2)
	assert.NotContains(t, repo.watermarks, "int-3")
}

// =============================================================================
// CONNECT
// =============================================================================

func TestConnect(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	svc := newTestService(repo, &fakeSource{})

	_, err := svc.Connect(context.Background(), ConnectRequest{PageID: "page-9"})
	assert.ErrorIs(t, err, ErrInvalidIntegration)

	integ, err := svc.Connect(context.Background(), ConnectRequest{
		OwnerID:     "agent-7",
		PageID:      "page-9",
		PageName:    "New Page",
		AccessToken: " EAAG ",
		FormIDs:     []string{"f1", " ", "f2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sealed:EAAG", integ.AccessTokenEncrypted)
	assert.Equal(t, []string{"f1", "f2"}, integ.FormIDs)
	assert.True(t, integ.IsActive)

	again, err := svc.Connect(context.Background(), ConnectRequest{PageID: "page-1", AccessToken: "rotated"})
	require.NoError(t, err)
	assert.Equal(t, "int-1", again.ID, "reconnecting a page keeps its integration")
}

// =============================================================================
// PUSH
// =============================================================================

func TestReceive_CreatesNewLead(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	src := &fakeSource{single: map[string]*facebook.Lead{
		"fb-1": ptr(fbLead("fb-1", "new@x.com", "New Person")),
	}}

	err := newTestService(repo, src).Receive(context.Background(), "fb-1", SourceContext{PageID: "page-1", FormID: "form-a", AdID: "ad-3"})
	require.NoError(t, err)

	require.Len(t, repo.leads, 1)
	lead := repo.leads[0]
	assert.Equal(t, "New", lead.FirstName)
	adID, _ := lead.CustomFields.Get(KeyAdID)
	assert.Equal(t, "ad-3", adID, "webhook context fills missing ad id")
	require.Len(t, repo.activities, 1)
	assert.Equal(t, domain.ActivityLeadCreated, repo.activities[0].Type)
}

func TestReceive_CreatesLeadFromFormOutsideIntegration(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	src := &fakeSource{single: map[string]*facebook.Lead{
		"fb-9": ptr(fbLead("fb-9", "fresh@x.com", "Fresh Face")),
	}}

	err := newTestService(repo, src).Receive(context.Background(), "fb-9", SourceContext{PageID: "page-1", FormID: "form-zzz"})
	require.NoError(t, err)

	require.Len(t, repo.leads, 1)
	formID, _ := repo.leads[0].CustomFields.Get(KeyFormID)
	assert.Equal(t, "form-zzz", formID)
	assert.Equal(t, "list-fb", repo.leads[0].ListID)
}

func TestReceive_MergesIntoExistingLeadByEmail(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	existing := &domain.Lead{
		ID:           "lead-1",
		OwnerID:      "agent-7",
		Email:        "jane@x.com",
		FirstName:    "Jane",
		LastName:     "Doe",
		CustomFields: domain.NewCustomFields("referral", "expo", "zip_code", "10001"),
	}
	repo.leads = append(repo.leads, existing)

	src := &fakeSource{single: map[string]*facebook.Lead{
		"fb-5": ptr(fbLead("fb-5", "JANE@x.com", "Jane Doe",
			facebook.FieldValue{Name: "zip_code", Values: []string{"30301"}},
			facebook.FieldValue{Name: "coverage_start", Values: []string{"June"}},
		)),
	}}

	err := newTestService(repo, src).Receive(context.Background(), "fb-5", SourceContext{PageID: "page-1"})
	require.NoError(t, err)

	require.Len(t, repo.leads, 1, "no new lead is created")
	cf := repo.leads[0].CustomFields

	v, _ := cf.Get("referral")
	assert.Equal(t, "expo", v, "keys the push does not carry are preserved")
	v, _ = cf.Get("zip_code")
	assert.Equal(t, "30301", v, "overlapping keys take the pushed value")
	v, _ = cf.Get("coverage_start")
	assert.Equal(t, "June", v)
	v, _ = cf.Get(KeyLeadID)
	assert.Equal(t, "fb-5", v)
	assert.Equal(t, []string{"referral", "zip_code"}, cf.Keys()[:2], "existing order kept")
	assert.Empty(t, repo.activities)
}

func TestReceive_SwallowsPermanentFailures(t *testing.T) {
	inactive := activeIntegration()
	inactive.IsActive = false

	tests := []struct {
		name string
		repo *mockRepo
		src  *fakeSource
		ctx  SourceContext
	}{
		{"unknown page", newMockRepo(activeIntegration()), &fakeSource{}, SourceContext{PageID: "other"}},
		{"inactive integration", newMockRepo(inactive), &fakeSource{}, SourceContext{PageID: "page-1"}},
		{"lead gone", newMockRepo(activeIntegration()), &fakeSource{}, SourceContext{PageID: "page-1"}},
		{"unknown lead id", newMockRepo(activeIntegration()), &fakeSource{getErr: &facebook.APIError{StatusCode: 400, Code: 100, Message: "Unsupported get request"}}, SourceContext{PageID: "page-1"}},
		{"revoked token", newMockRepo(activeIntegration()), &fakeSource{getErr: &facebook.APIError{StatusCode: 400, Code: 190}}, SourceContext{PageID: "page-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestService(tt.repo, tt.src).Receive(context.Background(), "fb-1", tt.ctx)
			assert.NoError(t, err)
			assert.Empty(t, tt.repo.leads)
		})
	}
}

func TestReceive_ReturnsRetryableErrors(t *testing.T) {
	repo := newMockRepo(activeIntegration())
	src := &fakeSource{getErr: errors.New("connection reset by peer")}

	svc := newTestService(repo, src)
	err := svc.Receive(context.Background(), "fb-1", SourceContext{PageID: "page-1"})
	assert.Error(t, err)

	// ReceiveSingle never surfaces it.
	svc.ReceiveSingle(context.Background(), "fb-1", SourceContext{PageID: "page-1"})
	assert.Empty(t, repo.leads)
}

func ptr[T any](v T) *T { return &v }
