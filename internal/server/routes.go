package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/plank/internal/api/v1"
	"github.com/gosuda/plank/internal/api/ws"
)

func registerAPIRoutes(api huma.API, store v1.DataStore, guard v1.Authorizer, presence v1.PresenceSource) {
	v1.RegisterBoardRoutes(api, store, guard, presence)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/", hub.ServeHTTP)
}
