package leadsync

import "errors"

// Sentinel errors for the lead sync service layer.
var (
	ErrIntegrationNotFound    = errors.New("facebook integration not found")
	ErrIntegrationUnavailable = errors.New("facebook integration is missing or inactive")
	ErrLeadNotFound           = errors.New("lead not found")
	ErrSyncInProgress         = errors.New("sync already running for this integration")
	ErrInvalidIntegration     = errors.New("pageId and accessToken are required")
)
