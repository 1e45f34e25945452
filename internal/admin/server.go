package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/engagebot/internal/metrics"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
	"github.com/digkill/engagebot/internal/service"
	"github.com/digkill/engagebot/internal/stats"
	"github.com/digkill/engagebot/internal/usage"
)

type Engagement interface {
	HandleDelivery(ctx context.Context, ev service.DeliveryEvent) (*service.DeliveryResult, error)
	CompleteReview(ctx context.Context, rc service.ReviewCompletion) (*models.Interaction, error)
	DueReviews(ctx context.Context, restaurantID string) ([]service.DueReview, error)
	Abandon(ctx context.Context, restaurantID, phone, phoneHash string) (*models.Interaction, error)
	Interaction(ctx context.Context, restaurantID, phone, phoneHash string) (*models.Interaction, error)
}

type Stats interface {
	Summarize(ctx context.Context, scope stats.Scope, kind period.Kind) (*stats.Summary, error)
	MonthlyTrend(ctx context.Context, accountID string, monthsBack int) (*stats.MonthlySeries, error)
}

type UsageReader interface {
	List(ctx context.Context, q usage.Query) ([]models.UsageRecord, error)
}

type ReviewImporter interface {
	SetReviewSnapshot(ctx context.Context, snap models.ReviewSnapshot) error
}

type ReportArchive interface {
	UploadJSON(ctx context.Context, name string, v any) (string, error)
}

type Subscriptions interface {
	Subscribe(restaurantID string, chatID int64)
	Unsubscribe(restaurantID string, chatID int64)
}

// Deps are the components behind the HTTP surface. Reports and Subscriptions may be nil.
type Deps struct {
	Engagement    Engagement
	Stats         Stats
	Usage         UsageReader
	Reviews       ReviewImporter
	Reports       ReportArchive
	Subscriptions Subscriptions
}

type Server struct {
	addr     string
	username string
	password string
	log      *slog.Logger
	deps     Deps
	router   *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:     addr,
		username: username,
		password: password,
		log:      log,
		deps:     deps,
		router:   r,
	}
	r.Get("/healthz", s.handleHealth)
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Handle("/metrics", metrics.Handler())
		protected.Post("/events/delivery", s.handleDelivery)
		protected.Route("/reviews", func(r chi.Router) {
			r.Post("/completed", s.handleReviewCompleted)
			r.Get("/due", s.handleReviewsDue)
			r.Put("/snapshot", s.handleReviewSnapshot)
		})
		protected.Route("/interactions", func(r chi.Router) {
			r.Get("/", s.handleGetInteraction)
			r.Post("/abandon", s.handleAbandon)
		})
		protected.Route("/stats", func(r chi.Router) {
			r.Get("/summary", s.handleSummary)
			r.Get("/monthly", s.handleMonthly)
		})
		protected.Post("/reports/monthly", s.handleMonthlyReport)
		protected.Get("/usage", s.handleUsage)
		protected.Route("/notifications/subscriptions", func(r chi.Router) {
			r.Post("/", s.handleSubscribe)
			r.Delete("/", s.handleUnsubscribe)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type deliveryRequest struct {
	AccountID    string             `json:"account_id"`
	RestaurantID string             `json:"restaurant_id"`
	Phone        string             `json:"phone"`
	PhoneHash    string             `json:"phone_hash"`
	Kind         models.MessageKind `json:"kind"`
	Category     string             `json:"category"`
	EventKind    models.EventKind   `json:"event_kind"`
	Detail       map[string]any     `json:"detail"`
}

type deliveryResponse struct {
	PhoneHash   string                   `json:"phone_hash"`
	Status      models.InteractionStatus `json:"status"`
	Tier        models.ConversationType  `json:"tier"`
	Cost        models.Money             `json:"cost"`
	Billed      bool                     `json:"billed"`
	ReviewDue   bool                     `json:"review_due"`
	ReviewDueAt time.Time                `json:"review_due_at"`
}

func (s *Server) handleDelivery(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, err := s.deps.Engagement.HandleDelivery(r.Context(), service.DeliveryEvent{
		AccountID:    strings.TrimSpace(req.AccountID),
		RestaurantID: strings.TrimSpace(req.RestaurantID),
		Phone:        req.Phone,
		PhoneHash:    req.PhoneHash,
		Kind:         req.Kind,
		Category:     req.Category,
		EventKind:    req.EventKind,
		Detail:       req.Detail,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, deliveryResponse{
		PhoneHash:   res.Interaction.PhoneHash,
		Status:      res.Interaction.Status,
		Tier:        res.Tier,
		Cost:        res.Cost,
		Billed:      res.Billed,
		ReviewDue:   res.ReviewDue,
		ReviewDueAt: res.ReviewDueAt,
	})
}

type reviewCompletedRequest struct {
	AccountID    string `json:"account_id"`
	RestaurantID string `json:"restaurant_id"`
	Phone        string `json:"phone"`
	PhoneHash    string `json:"phone_hash"`
	Rating       int    `json:"rating"`
	Platform     string `json:"platform"`
}

func (s *Server) handleReviewCompleted(w http.ResponseWriter, r *http.Request) {
	var req reviewCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	it, err := s.deps.Engagement.CompleteReview(r.Context(), service.ReviewCompletion(req))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleReviewsDue(w http.ResponseWriter, r *http.Request) {
	restaurant := strings.TrimSpace(r.URL.Query().Get("restaurant"))
	if restaurant == "" {
		http.Error(w, "restaurant required", http.StatusBadRequest)
		return
	}
	due, err := s.deps.Engagement.DueReviews(r.Context(), restaurant)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, due)
}

type reviewSnapshotRequest struct {
	RestaurantID string      `json:"restaurant_id"`
	InitialCount int         `json:"initial_count"`
	CurrentCount int         `json:"current_count"`
	Timestamps   []time.Time `json:"timestamps"`
}

func (s *Server) handleReviewSnapshot(w http.ResponseWriter, r *http.Request) {
	var req reviewSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.RestaurantID) == "" {
		http.Error(w, "restaurant_id required", http.StatusBadRequest)
		return
	}
	if req.InitialCount < 0 || req.CurrentCount < 0 {
		http.Error(w, "counts must be non-negative", http.StatusBadRequest)
		return
	}
	snap := models.ReviewSnapshot{
		RestaurantID:  strings.TrimSpace(req.RestaurantID),
		InitialCount:  req.InitialCount,
		CurrentCount:  req.CurrentCount,
		Timestamps:    req.Timestamps,
		HasTimestamps: req.Timestamps != nil,
	}
	if err := s.deps.Reviews.SetReviewSnapshot(r.Context(), snap); err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetInteraction(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	it, err := s.deps.Engagement.Interaction(r.Context(), q.Get("restaurant"), q.Get("phone"), q.Get("phone_hash"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, it)
}

type abandonRequest struct {
	RestaurantID string `json:"restaurant_id"`
	Phone        string `json:"phone"`
	PhoneHash    string `json:"phone_hash"`
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	var req abandonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	it, err := s.deps.Engagement.Abandon(r.Context(), req.RestaurantID, req.Phone, req.PhoneHash)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, err := period.ParseKind(q.Get("period"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	scope := stats.Scope{
		AccountID:    strings.TrimSpace(q.Get("account")),
		RestaurantID: strings.TrimSpace(q.Get("restaurant")),
	}
	if scope.AccountID == "" && scope.RestaurantID == "" {
		http.Error(w, "account or restaurant required", http.StatusBadRequest)
		return
	}
	summary, err := s.deps.Stats.Summarize(r.Context(), scope, kind)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleMonthly(w http.ResponseWriter, r *http.Request) {
	account, months, err := monthlyParams(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	series, err := s.deps.Stats.MonthlyTrend(r.Context(), account, months)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		http.Error(w, "report archive not configured", http.StatusNotImplemented)
		return
	}
	account, months, err := monthlyParams(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	series, err := s.deps.Stats.MonthlyTrend(r.Context(), account, months)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	name := "monthly"
	if account != "" {
		name += "-" + account
	}
	url, err := s.deps.Reports.UploadJSON(r.Context(), name, series)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"url":    url,
		"months": len(series.Months),
	})
}

func monthlyParams(r *http.Request) (string, int, error) {
	q := r.URL.Query()
	months := 0
	if raw := strings.TrimSpace(q.Get("months")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return "", 0, fmt.Errorf("invalid months %q", raw)
		}
		months = n
	}
	return strings.TrimSpace(q.Get("account")), months, nil
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := usage.Query{
		AccountID:    strings.TrimSpace(q.Get("account")),
		RestaurantID: strings.TrimSpace(q.Get("restaurant")),
	}
	if raw := strings.TrimSpace(q.Get("period")); raw != "" {
		kind, err := period.ParseKind(raw)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		query.Period = kind
	}
	var err error
	if query.From, err = parseDate(q.Get("from")); err != nil {
		s.badRequest(w, err)
		return
	}
	if query.To, err = parseDate(q.Get("to")); err != nil {
		s.badRequest(w, err)
		return
	}
	records, err := s.deps.Usage.List(r.Context(), query)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if records == nil {
		records = []models.UsageRecord{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates; empty yields the zero time.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", raw)
	}
	return t, nil
}

type subscriptionRequest struct {
	RestaurantID string `json:"restaurant_id"`
	ChatID       int64  `json:"chat_id"`
}

func (s *Server) decodeSubscription(w http.ResponseWriter, r *http.Request) (subscriptionRequest, bool) {
	var req subscriptionRequest
	if s.deps.Subscriptions == nil {
		http.Error(w, "notifications not configured", http.StatusNotImplemented)
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	if strings.TrimSpace(req.RestaurantID) == "" || req.ChatID == 0 {
		http.Error(w, "restaurant_id and chat_id required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}
	s.deps.Subscriptions.Subscribe(strings.TrimSpace(req.RestaurantID), req.ChatID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}
	s.deps.Subscriptions.Unsubscribe(strings.TrimSpace(req.RestaurantID), req.ChatID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="engagebot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// serviceError maps domain sentinels to status codes.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		s.badRequest(w, err)
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, stats.ErrUnavailable):
		s.log.Warn("stats unavailable", "err", err)
		http.Error(w, stats.ErrUnavailable.Error(), http.StatusServiceUnavailable)
	default:
		s.internalError(w, err)
	}
}
