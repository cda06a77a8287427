package adminapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"repairshop/internal/catalog"
)

// serviceInput is the editable part of a service. Omitted fields keep their value on update.
type serviceInput struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Duration    *int     `json:"duration"`
	Category    *string  `json:"category"`
	IsActive    *bool    `json:"isActive"`
}

func (in serviceInput) apply(s *catalog.Service) {
	if in.Name != nil {
		s.Name = *in.Name
	}
	if in.Description != nil {
		s.Description = *in.Description
	}
	if in.Price != nil {
		s.Price = *in.Price
	}
	if in.Duration != nil {
		s.DurationMinutes = *in.Duration
	}
	if in.Category != nil {
		s.Category = *in.Category
	}
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
}

func (a *App) listPublicServices(w http.ResponseWriter, r *http.Request) {
	list, err := a.services.List(r.Context(), catalog.Filter{ActiveOnly: true, Category: r.URL.Query().Get("category")})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, list, http.StatusOK)
}

func (a *App) listServices(w http.ResponseWriter, r *http.Request) {
	f := catalog.Filter{Category: r.URL.Query().Get("category")}
	if s := r.URL.Query().Get("active"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			a.writeError(w, r, fmt.Errorf("%w: active must be a boolean", errBadQuery))
			return
		}
		f.ActiveOnly = v
	}
	list, err := a.services.List(r.Context(), f)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, list, http.StatusOK)
}

func (a *App) getService(w http.ResponseWriter, r *http.Request) {
	s, err := a.services.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, s, http.StatusOK)
}

func (a *App) createService(w http.ResponseWriter, r *http.Request) {
	var in serviceInput
	if err := decodeJSON(r, &in, false); err != nil {
		a.writeError(w, r, err)
		return
	}
	s := catalog.Service{IsActive: true}
	in.apply(&s)
	created, err := a.services.Create(r.Context(), s)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.log.Infow("service created", "id", created.ID, "name", created.Name)
	writeJSON(w, created, http.StatusCreated)
}

func (a *App) updateService(w http.ResponseWriter, r *http.Request) {
	var in serviceInput
	if err := decodeJSON(r, &in, false); err != nil {
		a.writeError(w, r, err)
		return
	}
	cur, err := a.services.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	in.apply(&cur)
	updated, err := a.services.Update(r.Context(), cur)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, updated, http.StatusOK)
}

func (a *App) deleteService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.services.Delete(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.log.Infow("service deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}
