package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	custommiddleware "github.com/apetrenko/lottery-backoffice/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware бэк-офиса лотереи.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", custommiddleware.AuthHeader},
		MaxAge:         300,
	}))
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/lottery", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/games", h.CreateGame)
		r.Get("/games", h.ListGames)

		r.Post("/bins", h.CreateBin)
		r.Get("/bins", h.ListBins)

		r.Post("/packs/receive", h.ReceivePacks)
		r.Get("/packs", h.ListPacks)

		r.Route("/packs/{packID}", func(r chi.Router) {
			r.Get("/", h.GetPack)
			r.Get("/history", h.PackBinHistory)
			r.Post("/activate", h.ActivatePack)
			r.Post("/deplete", h.DepletePack)
			r.Post("/return", h.ReturnPack)
			r.Post("/move", h.MovePack)
		})

		r.Post("/shifts/open", h.OpenShift)
		r.Get("/shifts/current", h.GetCurrentShift)

		r.Route("/day", func(r chi.Router) {
			r.Get("/", h.GetBusinessDay)
			r.Get("/closing-data", h.GetClosingData)
			r.Post("/prepare", h.PrepareDayClose)
			r.Post("/commit", h.CommitDayClose)
			r.Post("/cancel", h.CancelDayClose)
		})

		r.Get("/variances", h.ListVariances)
		r.Post("/variances/{varianceID}/approve", h.ApproveVariance)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
