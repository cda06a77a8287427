package adminapi

import (
	"go.uber.org/zap"

	"repairshop/internal/access"
	"repairshop/internal/catalog"
	"repairshop/internal/possync"
	"repairshop/internal/zettle"
	"repairshop/pkg/config"
	"repairshop/pkg/openapi"
)

const (
	ServiceName = "repairshop-api"
	Version     = "1.0.0"
)

// Deps are the collaborators built in main.
type Deps struct {
	Zettle   *zettle.Client
	Syncer   *possync.Syncer
	Services catalog.Repository
	Access   *access.Authorizer
	// TokenBackend is reported on the status page.
	TokenBackend zettle.TokenBackend
}

// App is the admin-api application container.
// Handlers and middleware have methods on this type.
//
// Keep it lean: shared deps and config only.
// Request-scoped work should use context.
type App struct {
	log          *zap.SugaredLogger
	cfg          config.Config
	zettle       *zettle.Client
	syncer       *possync.Syncer
	services     catalog.Repository
	access       *access.Authorizer
	tokenBackend zettle.TokenBackend
	api          *openapi.Registry
}

func New(log *zap.SugaredLogger, cfg config.Config, deps Deps) *App {
	return &App{
		log:          log,
		cfg:          cfg,
		zettle:       deps.Zettle,
		syncer:       deps.Syncer,
		services:     deps.Services,
		access:       deps.Access,
		tokenBackend: deps.TokenBackend,
		api:          openapi.NewRegistry(),
	}
}
