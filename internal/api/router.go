package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/trashtotreasure/treasure/internal/auth"
	"github.com/trashtotreasure/treasure/internal/claim"
	"github.com/trashtotreasure/treasure/internal/media"
	"github.com/trashtotreasure/treasure/internal/metrics"
)

// Deps holds everything the router needs.
type Deps struct {
	DB      *sql.DB
	Issuer  *auth.Issuer
	Claims  *claim.Service
	Media   *media.Store
	Metrics *metrics.Metrics
	Mailer  auth.Mailer

	BaseURL             string
	CORSOrigin          string
	OTPTTL              time.Duration
	RequireVerification bool
	MaxFiles            int
	MaxFileBytes        int64

	// AuthRateLimit is the sustained number of auth attempts per minute per
	// client IP; zero disables limiting.
	AuthRateLimit float64
	AuthRateBurst int
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	mailer := d.Mailer
	if mailer == nil {
		mailer = auth.LogMailer{}
	}
	otpTTL := d.OTPTTL
	if otpTTL <= 0 {
		otpTTL = auth.DefaultOTPTTL
	}

	usersHandler := &UsersHandler{
		DB:                  d.DB,
		Issuer:              d.Issuer,
		Mailer:              mailer,
		OTPTTL:              otpTTL,
		RequireVerification: d.RequireVerification,
	}
	itemsHandler := &ItemsHandler{
		Claims:       d.Claims,
		Media:        d.Media,
		BaseURL:      d.BaseURL,
		MaxFiles:     d.MaxFiles,
		MaxFileBytes: d.MaxFileBytes,
	}
	requestsHandler := &RequestsHandler{Claims: d.Claims, BaseURL: d.BaseURL}

	authMW := AuthMiddleware(d.Issuer, d.DB)
	optionalAuth := OptionalAuthMiddleware(d.Issuer, d.DB)
	limiter := NewRateLimiter(d.AuthRateLimit, d.AuthRateBurst)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, "ok", nil)
	})
	mux.Handle("GET /metrics", d.Metrics.Handler())

	// Accounts. Credential endpoints are rate limited per client IP.
	mux.Handle("POST /api/user/register", limiter.Middleware(http.HandlerFunc(usersHandler.Register)))
	mux.Handle("POST /api/user/login", limiter.Middleware(http.HandlerFunc(usersHandler.Login)))
	mux.Handle("POST /api/user/verify-otp", limiter.Middleware(http.HandlerFunc(usersHandler.VerifyOTP)))
	mux.Handle("POST /api/user/generate-otp", limiter.Middleware(authMW(http.HandlerFunc(usersHandler.GenerateOTP))))
	mux.Handle("GET /api/user/profile", authMW(http.HandlerFunc(usersHandler.Profile)))
	mux.Handle("PUT /api/user/profile", authMW(http.HandlerFunc(usersHandler.UpdateProfile)))
	mux.Handle("POST /api/user/logout", authMW(http.HandlerFunc(usersHandler.Logout)))

	// Items: browsing is public, everything else needs a token.
	mux.HandleFunc("GET /api/items", itemsHandler.List)
	mux.Handle("GET /api/items/{id}", optionalAuth(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("POST /api/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("POST /api/items/{id}/claim", authMW(http.HandlerFunc(itemsHandler.Claim)))
	mux.Handle("POST /api/items/{id}/request", authMW(http.HandlerFunc(itemsHandler.Request)))
	mux.Handle("PUT /api/items/{id}/status", authMW(http.HandlerFunc(itemsHandler.SetStatus)))

	// Requests.
	mux.Handle("GET /api/requests/owner", authMW(http.HandlerFunc(requestsHandler.ListForOwner)))
	mux.Handle("GET /api/requests/user", authMW(http.HandlerFunc(requestsHandler.ListForUser)))
	mux.Handle("PATCH /api/requests/{id}/accept", authMW(http.HandlerFunc(requestsHandler.Accept)))
	mux.Handle("PATCH /api/requests/{id}/reject", authMW(http.HandlerFunc(requestsHandler.Reject)))

	if d.Media != nil {
		mux.Handle("GET "+media.URLPrefix, d.Media.Handler())
	}

	var h http.Handler = mux
	h = RecoverMiddleware(h)
	h = LoggingMiddleware(d.Metrics)(h)
	h = CORSMiddleware(d.CORSOrigin)(h)
	return h
}
