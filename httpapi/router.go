package httpapi

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/middleware"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Options configures the HTTP surface.
type Options struct {
	Logger *zap.Logger
	// AllowedOrigins feeds the CORS policy; empty allows every origin.
	AllowedOrigins []string
	// Metrics is mounted on GET /metrics when set.
	Metrics http.Handler
	// Health is called by GET /healthz when set.
	Health func(ctx context.Context) error
}

// Server holds the handlers. Create it with New.
type Server struct {
	engine    *authflow.Engine
	logger    *zap.Logger
	echoCodes bool
}

// New returns the full handler tree: router, CORS, access log and recovery.
//
// Issued codes are echoed in responses when the engine config sets
// Codes.EchoInResponse.
func New(engine *authflow.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: engine, logger: logger, echoCodes: engine.Config().Codes.EchoInResponse}

	router := mux.NewRouter()
	router.Use(recoverer(logger), accessLog(logger))

	router.HandleFunc("/healthz", healthHandler(opts.Health)).Methods(http.MethodGet)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	s.Register(router.PathPrefix("/api/auth").Subrouter())
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Code: "not_found", Message: "Not found"})
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Code: "method_not_allowed", Message: "Method not allowed"})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	})
	return c.Handler(router)
}

// Register mounts the auth routes on r.
func (s *Server) Register(r *mux.Router) {
	onError := middleware.WithErrorHandler(s.guardError)
	anyToken := middleware.Guard(s.engine, onError)
	temporary := middleware.RequireTemporary(s.engine, onError)
	permanent := middleware.RequirePermanent(s.engine, onError)

	r.Handle("/register/", withDevice(http.HandlerFunc(s.register))).Methods(http.MethodPost)
	r.Handle("/login/", withDevice(http.HandlerFunc(s.login))).Methods(http.MethodPost)
	r.Handle("/logout/", permanent(http.HandlerFunc(s.logout))).Methods(http.MethodPost)
	r.Handle("/verify-code/", temporary(withDevice(http.HandlerFunc(s.verifyCode)))).Methods(http.MethodPost)
	r.Handle("/resend-code/", temporary(http.HandlerFunc(s.resendCode))).Methods(http.MethodPost)
	r.Handle("/mfa/methods/", anyToken(http.HandlerFunc(s.mfaMethods))).Methods(http.MethodGet)
	r.Handle("/mfa/configure/", permanent(http.HandlerFunc(s.getMFAConfig))).Methods(http.MethodGet)
	r.Handle("/mfa/configure/", permanent(http.HandlerFunc(s.configureMFA))).Methods(http.MethodPost)
	r.Handle("/mfa/verify/", anyToken(withDevice(http.HandlerFunc(s.verifyMFA)))).Methods(http.MethodPost)
}

func (s *Server) guardError(w http.ResponseWriter, _ *http.Request, err error) {
	status, body := errorResponse(err)
	writeJSON(w, status, body)
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, envelope{Data: object{"status": "unavailable"}, Code: "unavailable", Message: err.Error()})
				return
			}
		}
		writeOK(w, "", object{"status": "ok"})
	}
}
