// Package api provides the REST control API used by test harnesses to step
// the served serial and inspect what clients have fetched.
package api

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/piwi3910/xfrserver/pkg/api/types"
	"github.com/piwi3910/xfrserver/pkg/config"
	"github.com/piwi3910/xfrserver/pkg/server"
	"github.com/piwi3910/xfrserver/pkg/zone"
)

const cookieName = "xfrserver_session"

// Controller is the serial control surface the API drives.
type Controller interface {
	MoveToSerial(newSerial uint32) (bool, error)
	CurrentSerial() uint32
	ServedSerial() uint32
	Serials() []uint32
	Transfers() []server.TransferRecord
}

// Server is the REST API server.
type Server struct {
	config     config.APIConfig
	controller Controller
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	jwtSecret  []byte
	startTime  time.Time
	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a new API server.
// Metrics are served from gatherer; a nil gatherer uses the default registry.
func NewServer(cfg config.APIConfig, controller Controller, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:     cfg,
		controller: controller,
		gatherer:   gatherer,
		logger:     logger.Named("api"),
		startTime:  time.Now(),
	}

	if cfg.Auth.JWTSecret != "" {
		s.jwtSecret = []byte(cfg.Auth.JWTSecret)
	} else {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			// crypto/rand does not fail on supported platforms
			panic(fmt.Sprintf("failed to generate JWT secret: %v", err))
		}
		s.jwtSecret = secret
	}

	if s.authEnabled() {
		s.logger.Info("API authentication enabled")
	}

	return s
}

func (s *Server) authEnabled() bool {
	return s.config.Auth.PasswordHash != ""
}

// Start binds the listen address and serves until Shutdown.
// It returns once the socket is bound; serve errors are logged.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to bind API listener: %w", err)
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", zap.Stringer("address", listener.Addr()))

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/api/health", s.handleHealth)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	if s.authEnabled() {
		r.Post("/api/auth/login", s.handleLogin)
		r.Post("/api/auth/logout", s.handleLogout)
	}

	r.Group(func(r chi.Router) {
		if s.authEnabled() {
			r.Use(s.authMiddleware)
		}

		r.Get("/api/serial", s.handleGetSerial)
		r.Put("/api/serial", s.handleMoveSerial)
		r.Get("/api/serials", s.handleGetSerials)
		r.Get("/api/transfers", s.handleGetTransfers)
	})

	return r
}

// requestLogger logs each request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("api request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

type jwtClaims struct {
	jwt.RegisteredClaims
}

// Auth middleware
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			if cookie, err := r.Cookie(cookieName); err == nil {
				tokenString = cookie.Value
			}
		}
		if tokenString == "" {
			s.sendError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			s.sendError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := types.HealthResponse{
		Status:    "ok",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).String(),
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// Login handler
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.config.Auth.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("Failed login", zap.String("client_ip", r.RemoteAddr))
		s.sendError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	now := time.Now()
	expiresAt := now.Add(s.config.Auth.TokenExpiry)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "controller",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(s.config.Auth.TokenExpiry.Seconds()),
	})

	s.sendJSON(w, http.StatusOK, types.AuthResponse{
		Success:   true,
		Token:     tokenString,
		ExpiresAt: expiresAt,
	})
}

// Logout handler
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	s.sendJSON(w, http.StatusOK, types.APIResponse{Success: true, Timestamp: time.Now()})
}

func (s *Server) handleGetSerial(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, types.SerialResponse{
		Current: s.controller.CurrentSerial(),
		Served:  s.controller.ServedSerial(),
	})
}

func (s *Server) handleMoveSerial(w http.ResponseWriter, r *http.Request) {
	var req types.MoveSerialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Serial == nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	changed, err := s.controller.MoveToSerial(*req.Serial)
	switch {
	case errors.Is(err, zone.ErrSerialSequence):
		s.sendError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, zone.ErrUnknownSerial):
		s.sendError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, types.MoveSerialResponse{
		Changed: changed,
		Current: s.controller.CurrentSerial(),
	})
}

func (s *Server) handleGetSerials(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, types.SerialsResponse{Serials: s.controller.Serials()})
}

func (s *Server) handleGetTransfers(w http.ResponseWriter, r *http.Request) {
	records := s.controller.Transfers()

	transfers := make([]types.TransferInfo, 0, len(records))
	for _, rec := range records {
		transfers = append(transfers, types.TransferInfo{
			ConnID:       rec.ConnID,
			Client:       rec.Client,
			QType:        rec.QType,
			ClientSerial: rec.ClientSerial,
			Serial:       rec.Serial,
			Full:         rec.Full,
			Records:      rec.Records,
			Time:         rec.Time,
		})
	}

	s.sendJSON(w, http.StatusOK, types.TransfersResponse{
		Transfers: transfers,
		Total:     len(transfers),
	})
}

// Helper functions
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	resp := types.APIResponse{
		Success:   false,
		Error:     message,
		Timestamp: time.Now(),
	}
	s.sendJSON(w, status, resp)
}
