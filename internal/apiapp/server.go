package apiapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/docfetch"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/exporter"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/imaging"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/middleware"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/objstore"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/preview"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/store"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/submission"
)

type contextKey string

const userContextKey contextKey = "user"

type Config struct {
	Addr       string
	DBPath     string
	StorageURL string
	StorageKey string
	Buckets    []string
	ImageMode  imaging.Mode
	TrailDir   string
	SignedTTL  time.Duration
}

func DefaultConfigFromEnv() Config {
	buckets := docfetch.DefaultBuckets
	if raw := strings.TrimSpace(os.Getenv("STORAGE_BUCKETS")); raw != "" {
		buckets = strings.Split(raw, ",")
	}
	return Config{
		Addr:       envOrDefault("API_ADDR", ":8080"),
		DBPath:     envOrDefault("DB_PATH", "data.db"),
		StorageURL: strings.TrimSpace(os.Getenv("STORAGE_URL")),
		StorageKey: os.Getenv("STORAGE_SERVICE_KEY"),
		Buckets:    buckets,
		ImageMode:  imaging.Mode(envOrDefault("IMAGE_MODE", string(imaging.ModeRaster))),
		TrailDir:   strings.TrimSpace(os.Getenv("PROBE_TRAIL_DIR")),
		SignedTTL:  15 * time.Minute,
	}
}

type exportSubmissionRequest struct {
	SubmissionID string `json:"submission_id"`
}

type previewRequest struct {
	Kind    string `json:"kind,omitempty"`
	ID      string `json:"id,omitempty"`
	TeamID  string `json:"team_id,omitempty"`
	Bucket  string `json:"bucket,omitempty"`
	Path    string `json:"path,omitempty"`
	MaxRows int    `json:"max_rows,omitempty"`
	MaxCols int    `json:"max_cols,omitempty"`
}

// relationalStore is the slice of the store the server needs.
type relationalStore interface {
	SubmissionByID(ctx context.Context, id string) (submission.Record, string, error)
	IsTeamMember(ctx context.Context, teamID, userID string) (bool, error)
	UserByToken(ctx context.Context, token string) (*store.User, error)
}

type server struct {
	store    relationalStore
	exporter *exporter.Exporter
	previews *preview.Service
	logger   *zap.Logger
}

func Run(ctx context.Context, cfg Config) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if err := st.InitSchema(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}

	storage, err := objstore.NewClient(objstore.Config{
		BaseURL:    cfg.StorageURL,
		ServiceKey: cfg.StorageKey,
	}, logger)
	if err != nil {
		return err
	}

	normalizer, err := imaging.ForMode(cfg.ImageMode, storage, logger)
	if err != nil {
		return err
	}

	fetcher := docfetch.NewFetcher(storage, cfg.Buckets, logger)
	trail := docfetch.NewTrailWriter(cfg.TrailDir, logger)
	exp := exporter.New(st, fetcher, normalizer, trail, logger)
	previews := preview.NewService(st, storage, preview.Config{SignedURLTTL: cfg.SignedTTL}, logger)

	s := &server{store: st, exporter: exp, previews: previews, logger: logger}
	handler := s.routes()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("addr", cfg.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/health", http.HandlerFunc(s.health))
	mux.Handle("/api/exports/submission", middleware.Chain(http.HandlerFunc(s.exportSubmission), s.requireUser))
	mux.Handle("/api/previews", middleware.Chain(http.HandlerFunc(s.previewDocument), s.requireUser))

	return middleware.Chain(
		mux,
		middleware.RequestLogger(s.logger),
		middleware.SecurityHeaders(middleware.SecurityHeadersConfig{}),
	)
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireUser resolves the bearer token into a user and stashes it on
// the request context.
func (s *server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		user, err := s.store.UserByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, http.StatusInternalServerError, "authentication failed")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

func (s *server) exportSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req exportSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.SubmissionID = strings.TrimSpace(req.SubmissionID)
	if req.SubmissionID == "" {
		writeError(w, http.StatusBadRequest, "submission_id is required")
		return
	}

	// Authorization happens before any photo bytes move.
	rec, teamID, err := s.store.SubmissionByID(r.Context(), req.SubmissionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "submission not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "submission lookup failed")
		return
	}
	member, err := s.store.IsTeamMember(r.Context(), teamID, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "membership lookup failed")
		return
	}
	if !member {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	result, err := s.exporter.ExportRecord(r.Context(), rec, teamID)
	if err != nil {
		s.logger.Error("export failed",
			zap.String("submission", req.SubmissionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report generation failed")
		return
	}

	w.Header().Set("Content-Type", exporter.XLSXMIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.FileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *server) previewDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user := userFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, perr := s.previews.Preview(r.Context(), preview.Request{
		Kind:    req.Kind,
		ID:      req.ID,
		TeamID:  req.TeamID,
		Bucket:  req.Bucket,
		Path:    req.Path,
		UserID:  user.ID,
		MaxRows: req.MaxRows,
		MaxCols: req.MaxCols,
	})
	if perr != nil {
		kind := preview.KindOf(perr)
		writeJSON(w, statusForPreviewError(kind), map[string]any{
			"ok":    false,
			"error": kind,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func statusForPreviewError(kind preview.Kind) int {
	switch kind {
	case preview.KindUnauthorized:
		return http.StatusUnauthorized
	case preview.KindForbidden:
		return http.StatusForbidden
	case preview.KindMissingAttachment:
		return http.StatusNotFound
	case preview.KindUnsupportedURL:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func userFromContext(ctx context.Context) *store.User {
	user, _ := ctx.Value(userContextKey).(*store.User)
	return user
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
