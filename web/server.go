package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	pkghttp "github.com/vnetscan/vnetscan/pkg/http"
	"github.com/vnetscan/vnetscan/utils"
	"github.com/vnetscan/vnetscan/utils/customlog"
)

//go:embed dist
var embeddedFiles embed.FS

const (
	defaultMaxTransfer = 100 << 20
	shutdownTimeout    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard may be served from another origin during development
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Options configures a Server.
type Options struct {
	ListenAddr string
	Username   string
	Password   string
	// JWTSecret signs control API tokens; a random one is generated when empty.
	JWTSecret string

	// Geo answers /api/geolocation; nil skips lookups for public addresses.
	Geo         *GeoResolver
	MaxTransfer int64

	// Probe holds the defaults for server-side detection cycles.
	Probe   pkghttp.Options
	Threads int
	Save    bool
}

// Server is the diagnostics server: probe endpoints, dashboard and control API.
type Server struct {
	listenAddr  string
	router      *http.ServeMux
	hub         *Hub
	logger      *log.Logger // lines go to the dashboard
	manager     *ServiceManager
	auth        *Authenticator
	geo         *GeoResolver
	maxTransfer int64
	api         *APIHandler
}

func NewServer(opts Options) (*Server, error) {
	if (opts.Username == "") != (opts.Password == "") {
		return nil, errors.New("username and password must be set together")
	}

	secret := opts.JWTSecret
	if secret == "" {
		generated, err := utils.GeneratePassword(48)
		if err != nil {
			return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		secret = generated
	}
	auth, err := NewAuthenticator(opts.Username, opts.Password, []byte(secret))
	if err != nil {
		return nil, err
	}

	geo := opts.Geo
	if geo == nil {
		geo = NewGeoResolver(nil, 0)
	}
	maxTransfer := opts.MaxTransfer
	if maxTransfer <= 0 {
		maxTransfer = defaultMaxTransfer
	}

	hub := newHub()
	go hub.run()

	logger := log.New(hub, "", 0)
	manager := NewServiceManager(logger, hub)

	s := &Server{
		listenAddr:  opts.ListenAddr,
		router:      http.NewServeMux(),
		hub:         hub,
		logger:      logger,
		manager:     manager,
		auth:        auth,
		geo:         geo,
		maxTransfer: maxTransfer,
		api:         NewAPIHandler(manager, opts.Probe, opts.Threads, opts.Save),
	}

	if err := s.setupRoutes(); err != nil {
		hub.Close()
		return nil, err
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		customlog.Printf(customlog.Success, "Web server listening on http://%s\n", s.listenAddr)
		s.logger.Printf("Web server listening on http://%s", s.listenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	customlog.Printf(customlog.Processing, "Shutting down web server...\n")
	s.manager.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close stops background services and disconnects websocket clients.
func (s *Server) Close() {
	s.manager.StopAll()
	s.hub.Close()
}

func (s *Server) setupRoutes() error {
	// probe endpoints are public, like the ones they replace
	s.router.HandleFunc("/api/ping", withCORS(s.handlePing))
	s.router.HandleFunc("/api/bandwidth-test/download", withCORS(s.handleDownload))
	s.router.HandleFunc("/api/bandwidth-test/upload", withCORS(s.handleUpload))
	s.router.HandleFunc("/api/geolocation", withCORS(s.handleGeolocation))

	s.router.HandleFunc("/api/v1/auth/login", s.handleLogin)
	s.router.HandleFunc("/api/v1/auth/status", s.handleAuthStatus)
	s.router.Handle("/ws", s.JWTMiddleware(http.HandlerFunc(s.handleWebSocket)))
	s.api.RegisterRoutes(s.router, s.JWTMiddleware)

	distFS, err := fs.Sub(embeddedFiles, "dist")
	if err != nil {
		return fmt.Errorf("could not create sub-filesystem for frontend assets: %w", err)
	}
	fileServer := http.FileServer(http.FS(distFS))
	s.router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeJSONError(w, "Not found", http.StatusNotFound)
			return
		}
		// unknown paths get index.html for client-side routing
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}
		if f, err := distFS.Open(path); err != nil {
			r.URL.Path = "/"
		} else {
			f.Close()
		}
		fileServer.ServeHTTP(w, r)
	})
	return nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.auth.Enabled() {
		writeJSONError(w, "Authentication is not enabled on this server", http.StatusNotFound)
		return
	}

	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSONBody(w, r, &creds); err != nil {
		writeJSONError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if !s.auth.Check(creds.Username, creds.Password) {
		s.logger.Printf("Failed login attempt for user %q from %s", creds.Username, utils.ClientIP(r))
		writeJSONError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.auth.Issue(creds.Username)
	if err != nil {
		writeJSONError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]bool{"enabled": s.auth.Enabled()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		customlog.Printf(customlog.Failure, "Failed to upgrade websocket: %v\n", err)
		return
	}
	if claims, ok := claimsFrom(r.Context()); ok {
		s.logger.Printf("Dashboard connected as %s from %s", claims.Username, utils.ClientIP(r))
	}
	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, 256)}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
