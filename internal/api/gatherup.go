package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gatherup/gatherup/internal/ads"
	"github.com/gatherup/gatherup/internal/chat"
	"github.com/gatherup/gatherup/internal/config"
	"github.com/gatherup/gatherup/internal/database"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
)

type GatherUpApp struct {
	log            *log.Logger
	db             database.GatherUpRepository
	engine         *ads.Engine
	cs             *chat.ChatServer
	mux            *http.Server
	validate       *validator.Validate
	signingKey     []byte
	allowedOrigins []string
}

func NewGatherUpApp(mux *http.ServeMux, logger *log.Logger, cs *chat.ChatServer, engine *ads.Engine, db database.GatherUpRepository, cfg *config.Config) *GatherUpApp {
	s := &GatherUpApp{
		log:            logger,
		db:             db,
		engine:         engine,
		cs:             cs,
		validate:       validator.New(),
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("POST /api/account/verification", s.authMiddleware(s.accountVerification))
	mux.Handle("POST /api/ads", s.authMiddleware(s.createAd))
	mux.Handle("GET /api/ads", s.authMiddleware(s.getAds))
	mux.Handle("DELETE /api/ads", s.authMiddleware(s.deleteAd))
	mux.Handle("GET /api/ads/gender-tally", s.authMiddleware(s.genderTally))
	mux.Handle("POST /api/requests", s.authMiddleware(s.createRequest))
	mux.Handle("GET /api/requests", s.authMiddleware(s.listRequests))
	mux.Handle("DELETE /api/requests", s.authMiddleware(s.deleteRequest))
	mux.Handle("POST /api/requests/accept", s.authMiddleware(s.acceptRequest))
	mux.Handle("POST /api/requests/reject", s.authMiddleware(s.rejectRequest))
	mux.Handle("DELETE /api/interest", s.authMiddleware(s.removeInterest))
	mux.Handle("GET /api/groups", s.authMiddleware(s.listGroups))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/members", s.authMiddleware(s.getMembers))
	mux.Handle("DELETE /api/members", s.authMiddleware(s.removeMember))
	mux.Handle("PUT /api/subscriptions", s.authMiddleware(s.putSubscription))
	mux.Handle("DELETE /api/subscriptions", s.authMiddleware(s.deleteSubscription))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.HandleFunc("GET /healthz", s.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *GatherUpApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *GatherUpApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
