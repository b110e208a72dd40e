package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// Server represents the REST API server
type Server struct {
	port   string
	server *http.Server
}

// NewRouter builds the API routes
func NewRouter(handler *Handler, jobHandler *JobHandler) *mux.Router {
	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(CORSMiddleware)

	// Health check
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Matches
	api.HandleFunc("/matches", handler.GetMatchesByDate).Methods("GET")
	api.HandleFunc("/matches/{matchID}", handler.GetMatch).Methods("GET")
	api.HandleFunc("/matches/{matchID}/prediction", handler.UpdateUserPrediction).Methods("PUT")
	api.HandleFunc("/matches/{matchID}/result", handler.UpdateActualScore).Methods("PUT")
	api.HandleFunc("/stats", handler.GetStats).Methods("GET")
	api.HandleFunc("/stats/results", handler.GetStatsResults).Methods("GET")
	api.HandleFunc("/leagues", handler.GetLeagues).Methods("GET")
	api.HandleFunc("/teams", handler.GetTeams).Methods("GET")
	api.HandleFunc("/teams/{teamID}/matches", handler.GetTeamMatches).Methods("GET")
	api.HandleFunc("/data", handler.DeleteAllData).Methods("DELETE")

	// Scrape jobs
	api.HandleFunc("/scrape", jobHandler.HandleScrape).Methods("POST")
	api.HandleFunc("/scrape/range", jobHandler.HandleScrapeRange).Methods("POST")
	api.HandleFunc("/jobs", jobHandler.HandleQueueStatus).Methods("GET")
	api.HandleFunc("/jobs/{jobID}/status", jobHandler.HandleJobStatus).Methods("GET")

	return router
}

// NewServer creates a new REST API server
func NewServer(port string, handler *Handler, jobHandler *JobHandler) *Server {
	return &Server{
		port: port,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: NewRouter(handler, jobHandler),
		},
	}
}

// Start starts the REST API server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
