package api

import (
	"context"

	"github.com/huffhealth/crm/internal/config"
	"github.com/huffhealth/crm/internal/datanorm"
	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/service/leadimport"
	"github.com/huffhealth/crm/internal/service/leadsync"
	"github.com/huffhealth/crm/internal/storage"
)

// Importer is the batch import surface. *leadimport.Service satisfies it.
type Importer interface {
	Import(ctx context.Context, req leadimport.ImportRequest) (*domain.ImportResult, error)
	GetList(ctx context.Context, listID string) (*domain.LeadList, error)
	Progress(ctx context.Context, listID string) (*domain.ImportProgress, error)
}

// LeadSyncer is the Facebook integration surface. *leadsync.Service
// satisfies it.
type LeadSyncer interface {
	Receive(ctx context.Context, leadID string, src leadsync.SourceContext) error
	Connect(ctx context.Context, req leadsync.ConnectRequest) (*domain.FacebookIntegration, error)
	SyncSince(ctx context.Context, integrationID string) (*domain.SyncResult, error)
}

// Dispatcher runs work after the response has been written.
// *worker.TaskRunner satisfies it.
type Dispatcher interface {
	Go(name string, fn func(ctx context.Context) error)
}

// Handlers holds the dependencies of every route.
type Handlers struct {
	importer Importer
	mapper   *datanorm.Mapper
	archive  storage.Archiver
	limits   config.ImportConfig

	leadSync    LeadSyncer
	tasks       Dispatcher
	appSecret   string
	verifyToken string
}

// NewHandlers creates handlers for the import endpoints. Facebook routes are
// registered only after WithFacebook.
func NewHandlers(importer Importer, mapper *datanorm.Mapper, archive storage.Archiver, limits config.ImportConfig) *Handlers {
	if archive == nil {
		archive = storage.NopArchive{}
	}
	if mapper == nil {
		mapper = datanorm.NewMapper(datanorm.DefaultAliases())
	}
	return &Handlers{
		importer: importer,
		mapper:   mapper,
		archive:  archive,
		limits:   limits,
	}
}

// WithFacebook enables the webhook and integration routes.
func (h *Handlers) WithFacebook(sync LeadSyncer, tasks Dispatcher, appSecret, verifyToken string) *Handlers {
	h.leadSync = sync
	h.tasks = tasks
	h.appSecret = appSecret
	h.verifyToken = verifyToken
	return h
}
