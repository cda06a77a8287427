package adminapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repairshop/pkg/middleware"
	"repairshop/pkg/openapi"
)

type route struct {
	op openapi.Operation
	h  http.HandlerFunc
}

var (
	adminRoles = []string{"ADMIN"}
	staffRoles = []string{"ADMIN", "STAFF"}
)

func (a *App) publicRoutes() []route {
	return []route{
		{openapi.Operation{Method: "GET", Path: "/api/zettle/oauth/start", Summary: "Start the Zettle OAuth flow", Tags: []string{"zettle"}, Public: true,
			Responses: map[string]any{"302": map[string]any{"description": "Redirect to the provider"}}}, a.oauthStart},
		{openapi.Operation{Method: "GET", Path: "/api/zettle/oauth/callback", Summary: "Zettle OAuth callback", Tags: []string{"zettle"}, Public: true,
			Parameters: []openapi.Parameter{query("code", "authorization code"), query("state", "CSRF state"), query("error", "provider error")},
			Responses:  map[string]any{"302": map[string]any{"description": "Redirect to the admin POS page"}}}, a.oauthCallback},
		{openapi.Operation{Method: "GET", Path: "/api/services", Summary: "Active repair services", Tags: []string{"services"}, Public: true}, a.listPublicServices},
	}
}

func (a *App) adminRoutes() []route {
	return []route{
		{openapi.Operation{Method: "GET", Path: "/admin/zettle/status", Summary: "Zettle connection status", Tags: []string{"zettle"}, Roles: adminRoles}, a.zettleStatus},
		{openapi.Operation{Method: "GET", Path: "/admin/zettle/test-connection", Summary: "Authenticate against Zettle", Tags: []string{"zettle"}, Roles: adminRoles}, a.zettleTestConnection},
		{openapi.Operation{Method: "POST", Path: "/admin/zettle/manual-setup", Summary: "Store a token pair obtained elsewhere", Tags: []string{"zettle"}, Roles: adminRoles,
			RequestBody: openapi.JSONBody(map[string]any{
				"type":       "object",
				"required":   []string{"accessToken"},
				"properties": map[string]any{"accessToken": map[string]any{"type": "string"}, "refreshToken": map[string]any{"type": "string"}},
			})}, a.zettleManualSetup},
		{openapi.Operation{Method: "GET", Path: "/admin/zettle/products", Summary: "List Zettle products", Tags: []string{"zettle"}, Roles: adminRoles}, a.zettleProducts},
		{openapi.Operation{Method: "POST", Path: "/admin/zettle/quick-sync", Summary: "Import products from Zettle", Tags: []string{"sync"}, Roles: adminRoles}, a.zettleQuickSync},
		{openapi.Operation{Method: "POST", Path: "/admin/zettle/sync", Summary: "Run a product sync", Tags: []string{"sync"}, Roles: adminRoles,
			RequestBody: openapi.JSONBody(map[string]any{
				"type":       "object",
				"properties": map[string]any{"direction": map[string]any{"type": "string", "enum": []string{"from_zettle", "to_zettle", "bidirectional"}}},
			})}, a.zettleSync},
		{openapi.Operation{Method: "GET", Path: "/admin/zettle/transactions", Summary: "List POS purchases", Tags: []string{"zettle"}, Roles: adminRoles,
			Parameters: []openapi.Parameter{query("startDate", "RFC3339 or YYYY-MM-DD"), query("endDate", "RFC3339 or YYYY-MM-DD"), query("limit", "max purchases")}}, a.zettleTransactions},
		{openapi.Operation{Method: "GET", Path: "/admin/services", Summary: "List services", Tags: []string{"services"}, Roles: staffRoles,
			Parameters: []openapi.Parameter{query("active", "only active services"), query("category", "category name")}}, a.listServices},
		{openapi.Operation{Method: "POST", Path: "/admin/services", Summary: "Create a service", Tags: []string{"services"}, Roles: adminRoles,
			RequestBody: openapi.JSONBody(serviceSchema)}, a.createService},
		{openapi.Operation{Method: "GET", Path: "/admin/services/{id}", Summary: "Get a service", Tags: []string{"services"}, Roles: staffRoles,
			Parameters: []openapi.Parameter{pathParam("id")}}, a.getService},
		{openapi.Operation{Method: "PUT", Path: "/admin/services/{id}", Summary: "Update a service", Tags: []string{"services"}, Roles: adminRoles,
			Parameters: []openapi.Parameter{pathParam("id")}, RequestBody: openapi.JSONBody(serviceSchema)}, a.updateService},
		{openapi.Operation{Method: "DELETE", Path: "/admin/services/{id}", Summary: "Delete a service", Tags: []string{"services"}, Roles: adminRoles,
			Parameters: []openapi.Parameter{pathParam("id")}}, a.deleteService},
	}
}

var serviceSchema = map[string]any{
	"type":     "object",
	"required": []string{"name", "price"},
	"properties": map[string]any{
		"name":        map[string]any{"type": "string"},
		"description": map[string]any{"type": "string"},
		"price":       map[string]any{"type": "number"},
		"duration":    map[string]any{"type": "integer"},
		"category":    map[string]any{"type": "string"},
		"isActive":    map[string]any{"type": "boolean"},
	},
}

func query(name, desc string) openapi.Parameter {
	return openapi.Parameter{Name: name, In: "query", Description: desc, Schema: map[string]any{"type": "string"}}
}

func pathParam(name string) openapi.Parameter {
	return openapi.Parameter{Name: name, In: "path", Required: true, Schema: map[string]any{"type": "string"}}
}

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		chimw.RealIP,
		chimw.Logger,
		middleware.Recover(a.log),
		middleware.DebugWriteHeader(a.cfg.DebugDoubleWrite, a.log),
		middleware.Tracing(a.cfg.OTLPEndpoint, ServiceName, a.log),
	)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.json", a.api.ServeHandler(ServiceName, Version))

	r.Route("/api", func(pr chi.Router) {
		pr.Use(cors(a.cfg.CORSOrigins))
		for _, rt := range a.publicRoutes() {
			a.api.Register(rt.op)
			pr.Method(rt.op.Method, strings.TrimPrefix(rt.op.Path, "/api"), rt.h)
		}
	})

	r.Route("/admin", func(ar chi.Router) {
		ar.Use(cors(a.cfg.CORSOrigins))
		ar.Use(a.adminAuth()...)
		for _, rt := range a.adminRoutes() {
			a.api.Register(rt.op)
			ar.Method(rt.op.Method, strings.TrimPrefix(rt.op.Path, "/admin"), rt.h)
		}
	})

	return r
}
