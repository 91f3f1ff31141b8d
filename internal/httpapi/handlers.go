package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"lightingmap.app/internal/audit"
	"lightingmap.app/internal/auth"
	"lightingmap.app/internal/lifecycle"
	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/obs"
	"lightingmap.app/internal/reconcile"
	"lightingmap.app/internal/relations"
)

// Deps are the domain services behind the HTTP surface.
type Deps struct {
	Store     lighting.Store
	Auth      *auth.Service
	Engine    *reconcile.Engine
	Relations *relations.Maintainer
	Lifecycle *lifecycle.Service
	Recorder  *audit.Recorder
}

// Options tunes the transport layer.
type Options struct {
	Version             string
	CORSOrigins         []string
	RateBurst           int
	RatePerMinute       int
	MaxBodyBytes        int64
	MaintenanceUser     string
	MaintenancePassword string
}

// API is the HTTP layer.
type API struct {
	Deps
	opts Options
}

func New(deps Deps, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 50 << 20
	}
	return &API{Deps: deps, opts: opts}
}

// Handler builds the router with the full middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, LoggingJSON, obs.Instrument, SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           600,
	}))
	r.Use(RateLimit(a.opts.RateBurst, a.opts.RatePerMinute))
	r.Use(MaxBodyBytes(a.opts.MaxBodyBytes))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", obs.Handler())

	r.Post("/login", a.handleLogin)
	r.Post("/addPendingUser", a.handleRegister)
	r.With(a.maintenanceAuth).Post("/api/maintenance/clean-orphan-lightpoints", a.handleSweep)

	r.Group(func(r chi.Router) {
		r.Use(a.authenticate)

		r.Route("/townHalls", func(r chi.Router) {
			r.Get("/", a.listTowns)
			r.With(requireRole(lighting.RoleAdministrator)).Post("/", a.createTown)
			r.With(requireRole(lighting.RoleAdministrator)).Post("/update", a.reconcileTown)
			r.With(requireRole(lighting.RoleAdministrator)).Delete("/", a.deleteTownByName)
			r.Get("/lightpoints/getActiveReports", a.activeReports)
			r.Get("/lightpoints/getPoint", a.pointByPole)
			r.Post("/lightPoints/viewport", a.viewport)
			r.Post("/lightPoints/clusters", a.clusters)
			r.With(requireRole(lighting.RoleAdministrator)).Post("/lightPoints/create", a.createLightPoint)
			r.With(requireRole(lighting.RoleSuperAdmin)).Post("/lightPoints/update/{id}", a.updateLightPoint)
			r.With(requireRole(lighting.RoleAdministrator)).Delete("/lightPoints/delete/{id}", a.deleteLightPoint)
			r.Get("/lightPoints/{id}", a.getLightPoint)
			r.Get("/{ref}", a.getTown)
			r.With(requireRole(lighting.RoleAdministrator)).Delete("/{ref}", a.deleteTownByID)
		})

		r.Post("/addReport", a.addReport)
		r.With(requireRole(lighting.RoleMaintainer)).Post("/addOperation", a.addOperation)

		r.Route("/users", func(r chi.Router) {
			r.Get("/profile", a.userProfile)
			r.Group(func(r chi.Router) {
				r.Use(requireRole(lighting.RoleSuperAdmin))
				r.Get("/", a.listUsers)
				r.Get("/getNotValidateUsers", a.listPendingUsers)
				r.Get("/getForEmail/{email}", a.getUserByEmail)
				r.Post("/validateUser", a.validateUser)
				r.Post("/removeUser", a.removeUser)
				r.Post("/update/modifyUser", a.modifyUser)
				r.Post("/addTownHalls", a.addUserTown)
				r.Delete("/removeTownHalls", a.removeUserTown)
				r.Get("/{id}", a.getUser)
			})
		})

		r.Route("/organizations", func(r chi.Router) {
			r.Use(requireRole(lighting.RoleSuperAdmin))
			r.Get("/", a.listOrganizations)
			r.Post("/", a.createOrganization)
			r.Get("/townhall/{townId}", a.organizationsByTown)
			r.Put("/members", a.addOrganizationMembers)
			r.Put("/members/remove", a.removeOrganizationMember)
			r.Put("/contracts", a.addOrganizationContract)
			r.Put("/townhall", a.associateOrganizationTown)
			r.Get("/{id}", a.getOrganization)
			r.Delete("/{id}", a.deleteOrganization(relations.Unlink))
			r.Delete("/{id}/with-users", a.deleteOrganization(relations.Cascade))
		})

		r.Post("/push/subscribe", a.subscribe)
		r.Post("/push/unsubscribe", a.unsubscribe)

		r.With(requireRole(lighting.RoleSuperAdmin)).Get("/accessLogs", a.listAccessLogs)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (a *API) corsOrigins() []string {
	if len(a.opts.CORSOrigins) == 0 {
		return []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	return a.opts.CORSOrigins
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lightingmap-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "lightingmap-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}
