package leadsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/facebook"
	"github.com/huffhealth/crm/internal/pkg/distlock"
	"github.com/huffhealth/crm/internal/pkg/logger"
)

const syncLockTTL = 10 * time.Minute

// SourceContext is what the webhook knows about a pushed lead.
type SourceContext struct {
	PageID string
	FormID string
	AdID   string
}

// outcome of storing one fetched lead.
type outcome int

const (
	outcomeCreated outcome = iota
	outcomeDuplicate
)

// Service implements Facebook lead sync.
type Service struct {
	repo          Repository
	source        LeadSource
	creds         CredentialStore
	locks         distlock.Factory
	defaultSource string
	now           func() time.Time
}

// Option configures optional collaborators.
type Option func(*Service)

// WithLocker serializes pull syncs of one integration across processes.
func WithLocker(f distlock.Factory) Option {
	return func(s *Service) { s.locks = f }
}

// WithDefaultSource overrides DefaultSource.
func WithDefaultSource(label string) Option {
	return func(s *Service) {
		if label = strings.TrimSpace(label); label != "" {
			s.defaultSource = label
		}
	}
}

// WithClock replaces time.Now for the sync watermark.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a lead sync service.
func NewService(repo Repository, source LeadSource, creds CredentialStore, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		source:        source,
		creds:         creds,
		defaultSource: DefaultSource,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// CONNECT
// =============================================================================

// ConnectRequest registers a page whose access token was issued elsewhere.
type ConnectRequest struct {
	OwnerID     string   `json:"-"`
	PageID      string   `json:"pageId"`
	PageName    string   `json:"pageName"`
	AccessToken string   `json:"accessToken"`
	FormIDs     []string `json:"formIds"`
	ListID      string   `json:"listId,omitempty"`
}

// Connect stores a page connection with its token sealed. Connecting a page
// that is already connected replaces the previous connection.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (*domain.FacebookIntegration, error) {
	req.PageID = strings.TrimSpace(req.PageID)
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	if req.PageID == "" || req.AccessToken == "" {
		return nil, ErrInvalidIntegration
	}

	sealed, err := s.creds.SealToken(ctx, req.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}

	forms := make([]string, 0, len(req.FormIDs))
	for _, f := range req.FormIDs {
		if f = strings.TrimSpace(f); f != "" {
			forms = append(forms, f)
		}
	}

	integ := &domain.FacebookIntegration{
		ID:                   uuid.New().String(),
		OwnerID:              req.OwnerID,
		PageID:               req.PageID,
		PageName:             strings.TrimSpace(req.PageName),
		AccessTokenEncrypted: sealed,
		FormIDs:              forms,
		ListID:               req.ListID,
		IsActive:             true,
	}
	if err := s.repo.SaveIntegration(ctx, integ); err != nil {
		return nil, err
	}
	logger.Info("facebook page connected", "integration_id", integ.ID, "page_id", integ.PageID, "forms", len(forms))
	return integ, nil
}

// Integration returns one integration.
func (s *Service) Integration(ctx context.Context, id string) (*domain.FacebookIntegration, error) {
	return s.repo.GetIntegration(ctx, id)
}

// =============================================================================
// PUSH
// =============================================================================

// ReceiveSingle handles one webhook-announced lead. Every failure is logged
// and dropped; there is no caller left to tell.
func (s *Service) ReceiveSingle(ctx context.Context, leadID string, src SourceContext) {
	if err := s.Receive(ctx, leadID, src); err != nil {
		logger.Error("facebook lead push failed", "lead_id", leadID, "page_id", src.PageID, "error", err)
	}
}

// Receive fetches and stores one pushed lead. A lead that already exists
// (by email, then by Facebook lead ID) has the new custom fields merged
// into it instead of being duplicated. Problems that a retry cannot fix,
// such as an unknown page or a revoked token, are logged and return nil;
// the returned error is always worth retrying.
func (s *Service) Receive(ctx context.Context, leadID string, src SourceContext) error {
	integ, err := s.repo.FindIntegrationByPage(ctx, src.PageID)
	if errors.Is(err, ErrIntegrationNotFound) {
		logger.Warn("facebook push for unconnected page", "page_id", src.PageID, "lead_id", leadID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("find integration for page %s: %w", src.PageID, err)
	}
	if !integ.IsActive {
		logger.Warn("facebook push for inactive integration", "integration_id", integ.ID, "lead_id", leadID)
		return nil
	}
	if src.FormID != "" && !integ.HasForm(src.FormID) {
		// Polling never visits this form, so the push is the only copy.
		logger.Info("facebook push from form outside integration", "integration_id", integ.ID, "form_id", src.FormID)
	}

	token, err := s.creds.AccessToken(ctx, integ)
	if err != nil {
		logger.Error("facebook access token unavailable", "integration_id", integ.ID, "error", err)
		return nil
	}

	fb, err := s.source.GetLead(ctx, token, leadID)
	if err != nil {
		var apiErr *facebook.APIError
		if errors.As(err, &apiErr) && apiErr.IsPermanent() {
			logger.Error("facebook lead fetch rejected", "integration_id", integ.ID, "lead_id", leadID, "error", err)
			return nil
		}
		return err
	}
	if fb.FormID == "" {
		fb.FormID = src.FormID
	}
	if fb.AdID == "" {
		fb.AdID = src.AdID
	}

	lead := s.prepare(fb, integ)
	existing, err := s.findExisting(ctx, integ.OwnerID, lead)
	if err != nil {
		return err
	}
	if existing != nil {
		merged := existing.CustomFields.Merge(lead.CustomFields)
		if err := s.repo.UpdateCustomFields(ctx, existing.ID, merged); err != nil {
			return fmt.Errorf("merge custom fields into lead %s: %w", existing.ID, err)
		}
		logger.Info("facebook lead merged into existing lead", "lead_id", existing.ID, "facebook_lead_id", fb.ID)
		return nil
	}

	if err := s.repo.CreateLead(ctx, lead); err != nil {
		return fmt.Errorf("create lead from facebook lead %s: %w", fb.ID, err)
	}
	s.recordActivity(ctx, &domain.Activity{
		Type:        domain.ActivityLeadCreated,
		Description: fmt.Sprintf("Lead %s captured from Facebook", lead.FullName()),
		EntityType:  "lead",
		EntityID:    lead.ID,
		OwnerID:     integ.OwnerID,
		Metadata: map[string]any{
			"facebookLeadId": fb.ID,
			"formId":         fb.FormID,
			"integrationId":  integ.ID,
		},
	})
	logger.Info("facebook lead created", "lead_id", lead.ID, "facebook_lead_id", fb.ID)
	return nil
}

// =============================================================================
// PULL
// =============================================================================

// SyncSince pulls every lead created on the integration's forms since its
// last sync. Only a missing or inactive integration, or a sync already in
// progress, fails the call; every other problem is counted in Errors.
//
// The watermark moves to the start of this run once all forms have been
// visited, whatever the error count.
func (s *Service) SyncSince(ctx context.Context, integrationID string) (*domain.SyncResult, error) {
	started := s.now().UTC()

	integ, err := s.repo.GetIntegration(ctx, integrationID)
	if errors.Is(err, ErrIntegrationNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrIntegrationUnavailable, integrationID)
	}
	if err != nil {
		return nil, fmt.Errorf("get integration %s: %w", integrationID, err)
	}
	if !integ.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrIntegrationUnavailable, integrationID)
	}

	var held distlock.DistLock
	if s.locks != nil {
		lock := s.locks("leadsync:"+integ.ID, syncLockTTL)
		acquired, err := lock.Acquire(ctx)
		switch {
		case err != nil:
			logger.Warn("sync lock unavailable, continuing without it", "integration_id", integ.ID, "error", err)
		case !acquired:
			return nil, ErrSyncInProgress
		default:
			held = lock
			defer func() {
				if err := lock.Release(context.Background()); err != nil {
					logger.Warn("release sync lock failed", "integration_id", integ.ID, "error", err)
				}
			}()
		}
	}

	result := &domain.SyncResult{}

	token, err := s.creds.AccessToken(ctx, integ)
	if err != nil {
		// Nothing was visited, so the watermark stays put.
		logger.Error("facebook access token unavailable", "integration_id", integ.ID, "error", err)
		result.Errors++
		return result, nil
	}

	var since time.Time
	if integ.LastSyncedAt != nil {
		since = *integ.LastSyncedAt
	}

	var newest time.Time
	for _, formID := range integ.FormIDs {
		s.extendLock(ctx, held, integ.ID)
		leads, err := s.source.ListFormLeads(ctx, token, formID, since)
		if err != nil {
			logger.Error("list facebook form leads failed", "integration_id", integ.ID, "form_id", formID, "error", err)
			result.Errors++
			continue
		}
		for i := range leads {
			fb := &leads[i]
			if fb.FormID == "" {
				fb.FormID = formID
			}
			if t, ok := fb.CreatedAt(); ok && t.After(newest) {
				newest = t
			}
			switch out, err := s.store(ctx, integ, fb); {
			case err != nil:
				logger.Warn("store facebook lead failed", "integration_id", integ.ID, "facebook_lead_id", fb.ID, "error", err)
				result.Errors++
			case out == outcomeDuplicate:
				result.Duplicates++
			default:
				result.Synced++
			}
		}
	}

	if err := s.repo.UpdateLastSynced(ctx, integ.ID, started); err != nil {
		logger.Error("update sync watermark failed", "integration_id", integ.ID, "error", err)
	}

	s.recordActivity(ctx, &domain.Activity{
		Type:        domain.ActivityFacebookSync,
		Description: fmt.Sprintf("Synced %d new Facebook leads from %s", result.Synced, integ.PageName),
		EntityType:  "facebook_integration",
		EntityID:    integ.ID,
		OwnerID:     integ.OwnerID,
		Metadata: map[string]any{
			"synced":     result.Synced,
			"duplicates": result.Duplicates,
			"errors":     result.Errors,
			"forms":      len(integ.FormIDs),
		},
	})

	fields := []interface{}{
		"integration_id", integ.ID,
		"synced", result.Synced,
		"duplicates", result.Duplicates,
		"errors", result.Errors,
		"watermark", started,
	}
	if !newest.IsZero() {
		fields = append(fields, "newest_lead", newest.UTC())
	}
	logger.Info("facebook sync complete", fields...)
	return result, nil
}

// SyncAll runs SyncSince for every active integration and returns the
// combined counts. Integrations already being synced elsewhere are skipped.
func (s *Service) SyncAll(ctx context.Context) (*domain.SyncResult, error) {
	integrations, err := s.repo.ListActiveIntegrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active integrations: %w", err)
	}

	total := &domain.SyncResult{}
	for _, integ := range integrations {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		res, err := s.SyncSince(ctx, integ.ID)
		if errors.Is(err, ErrSyncInProgress) {
			logger.Info("facebook sync skipped, already running", "integration_id", integ.ID)
			continue
		}
		if err != nil {
			logger.Error("facebook sync failed", "integration_id", integ.ID, "error", err)
			total.Errors++
			continue
		}
		total.Synced += res.Synced
		total.Duplicates += res.Duplicates
		total.Errors += res.Errors
	}
	return total, nil
}

// store writes one pulled lead unless it already exists.
func (s *Service) store(ctx context.Context, integ *domain.FacebookIntegration, fb *facebook.Lead) (outcome, error) {
	lead := s.prepare(fb, integ)
	existing, err := s.findExisting(ctx, integ.OwnerID, lead)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return outcomeDuplicate, nil
	}
	if err := s.repo.CreateLead(ctx, lead); err != nil {
		return 0, err
	}
	return outcomeCreated, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) prepare(fb *facebook.Lead, integ *domain.FacebookIntegration) *domain.Lead {
	lead := MapLead(fb, s.defaultSource)
	lead.ID = uuid.New().String()
	lead.OwnerID = integ.OwnerID
	lead.ListID = integ.ListID
	return lead
}

// findExisting checks email first, then the stored Facebook lead ID.
func (s *Service) findExisting(ctx context.Context, ownerID string, lead *domain.Lead) (*domain.Lead, error) {
	if lead.Email != "" {
		existing, err := s.repo.FindLeadByEmail(ctx, ownerID, lead.Email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrLeadNotFound) {
			return nil, fmt.Errorf("find lead by email: %w", err)
		}
	}

	if fbID, ok := lead.CustomFields.Get(KeyLeadID); ok {
		existing, err := s.repo.FindLeadByCustomField(ctx, ownerID, KeyLeadID, fbID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrLeadNotFound) {
			return nil, fmt.Errorf("find lead by facebook id: %w", err)
		}
	}
	return nil, nil
}

// extender is implemented by locks with an expiry, such as the Redis lock.
type extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// extendLock renews a held sync lock before each form so a slow pull does
// not outlive the TTL. A lost lock is logged; the run still finishes.
func (s *Service) extendLock(ctx context.Context, lock distlock.DistLock, integrationID string) {
	ext, ok := lock.(extender)
	if !ok {
		return
	}
	switch err := ext.Extend(ctx, syncLockTTL); {
	case errors.Is(err, distlock.ErrNotHeld):
		logger.Warn("sync lock lost to another run", "integration_id", integrationID)
	case err != nil:
		logger.Warn("extend sync lock failed", "integration_id", integrationID, "error", err)
	}
}

func (s *Service) recordActivity(ctx context.Context, a *domain.Activity) {
	a.ID = uuid.New().String()
	if err := s.repo.InsertActivity(ctx, a); err != nil {
		logger.Warn("write activity failed", "type", a.Type, "entity_id", a.EntityID, "error", err)
	}
}
