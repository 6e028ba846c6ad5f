package http

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"posty/auth"
	"posty/domain"
	"posty/errs"
	"posty/metrics"
)

// Token policies decide whether logging in issues a new token.
const (
	// TokenPolicyReuse only issues a token if the user holds none yet.
	TokenPolicyReuse = "reuse"
	// TokenPolicyAlways issues a new token on every login.
	TokenPolicyAlways = "always"
)

// Config holds the settings of the http layer.
type Config struct {
	SupportEmail string
	TokenPolicy  string
	PublicDir    string
	CORSOrigins  []string
}

// Server provides most of the http functionality of this app, namely routing,
// request handling, and middleware. It also performs authentication and
// authorization before handing things over to one of the database services.
type Server struct {
	router  *mux.Router
	handler http.Handler
	cfg     Config
	log     *logrus.Logger
	now     func() time.Time
	authMw  *auth.TokenMw

	us domain.UserService
	ts domain.TokenService
	ps domain.PostService
	ls domain.LikeService
	is domain.ImageService
}

// NewServer returns a new instance of the server, registers all necessary
// routes and gives their handlers access to the app services passed in.
func NewServer(
	cfg Config,
	us domain.UserService,
	ts domain.TokenService,
	ps domain.PostService,
	ls domain.LikeService,
	is domain.ImageService,
	log *logrus.Logger,
) *Server {
	if cfg.TokenPolicy == "" {
		cfg.TokenPolicy = TokenPolicyReuse
	}

	// Construct a new Server with a gorilla router and the services passed in.
	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		authMw: &auth.TokenMw{TokenService: ts},
		us:     us,
		ts:     ts,
		ps:     ps,
		ls:     ls,
		is:     is,
	}

	// Register routes of the auth system.
	s.registerAuthRoutes(s.router)

	// Everything below /v1 requires a valid bearer token.
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.authMw.Apply)
	s.registerPostRoutes(v1)
	s.registerUserRoutes(v1)

	// Register routes serving operational and static content.
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	uploads := http.Dir(filepath.Join(cfg.PublicDir, domain.UploadsDir))
	s.router.PathPrefix("/" + domain.UploadsDir + "/").
		Handler(http.StripPrefix("/"+domain.UploadsDir+"/", s.noDirListing(http.FileServer(uploads)))).
		Methods(http.MethodGet)

	// Unknown routes and methods share one response.
	s.router.NotFoundHandler = http.HandlerFunc(s.handleFallback)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleFallback)

	// Set up middleware that needs to run on every matched request.
	s.router.Use(metrics.InstrumentHandler, setContentTypeJSON)

	// Wrap the router with the middleware that needs to run on every request.
	var h http.Handler = s.router
	h = &logHandler{log: log, next: h}
	h = handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "Accept"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(log), handlers.PrintRecoveryStack(true))(h)
	s.handler = h
	return s
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleFallback answers requests no route matches.
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	errs.ReturnError(w, r, errs.Errorf(errs.ENOTFOUND,
		"Route Not Found. If error persists, contact %s", s.cfg.SupportEmail))
}

// The setContentTypeJSON middleware sets the content type to "application/json".
// Static files and the metrics exposition bring their own content type.
func setContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" && !strings.HasPrefix(r.URL.Path, "/"+domain.UploadsDir+"/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// noDirListing answers requests for directories with the fallback response.
func (s *Server) noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			s.handleFallback(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run starts to listen and serve on the specified port. It shuts the server
// down gracefully once ctx is cancelled.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Infof("listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}
