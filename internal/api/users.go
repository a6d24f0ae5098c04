package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trashtotreasure/treasure/internal/auth"
	"github.com/trashtotreasure/treasure/internal/model"
	"github.com/trashtotreasure/treasure/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// UsersHandler handles account endpoints.
type UsersHandler struct {
	DB                  *sql.DB
	Issuer              *auth.Issuer
	Mailer              auth.Mailer
	OTPTTL              time.Duration
	RequireVerification bool
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type updateProfileRequest struct {
	Name    string `json:"name" validate:"required,max=100"`
	Phone   string `json:"phone" validate:"max=40"`
	Address string `json:"address" validate:"max=300"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Register handles POST /api/user/register.
func (h *UsersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = store.NormalizeEmail(req.Email)

	if err := validate.Struct(req); err != nil {
		jsonError(w, http.StatusBadRequest, "a name and a valid email are required")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("hashing password", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Name, req.Email, hash)
	if errors.Is(err, store.ErrDuplicate) {
		jsonError(w, http.StatusConflict, "user already exists")
		return
	}
	if err != nil {
		slog.Error("creating user", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.sendOTP(r, user); err != nil {
		// The account exists; the user can ask for a new code.
		slog.Error("sending verification code", "user", user.ID, "error", err)
	}

	token, err := h.Issuer.Issue(user.ID, user.Email)
	if err != nil {
		slog.Error("issuing token", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("user registered", "user", user.ID)
	jsonResponse(w, http.StatusCreated, "registration successful, check your email for a verification code",
		authResponse{Token: token, User: user})
}

// Login handles POST /api/user/login.
func (h *UsersHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "email and password required")
		return
	}

	user, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		slog.Error("loading user", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := auth.CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		slog.Error("checking password", "user", user.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		slog.Warn("login failed", "email", user.Email, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if h.RequireVerification && !user.Verified {
		jsonError(w, http.StatusForbidden, "account not verified")
		return
	}

	token, err := h.Issuer.Issue(user.ID, user.Email)
	if err != nil {
		slog.Error("issuing token", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("user logged in", "user", user.ID)
	jsonResponse(w, http.StatusOK, "login successful", authResponse{Token: token, User: user})
}

// VerifyOTP handles POST /api/user/verify-otp.
func (h *UsersHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.OTP = strings.TrimSpace(req.OTP)
	if req.Email == "" || req.OTP == "" {
		jsonError(w, http.StatusBadRequest, "email and OTP are required")
		return
	}

	user, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		slog.Error("loading user", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	if user.Verified {
		jsonResponse(w, http.StatusOK, "account already verified", user)
		return
	}

	ok, err := store.ConsumeOTP(r.Context(), h.DB, user.ID, req.OTP, time.Now())
	if err != nil {
		slog.Error("checking otp", "user", user.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid or expired OTP")
		return
	}
	if err := store.SetVerified(r.Context(), h.DB, user.ID); err != nil {
		slog.Error("verifying user", "user", user.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	user.Verified = true

	slog.Info("user verified", "user", user.ID)
	jsonResponse(w, http.StatusOK, "account verified successfully", user)
}

// GenerateOTP handles POST /api/user/generate-otp.
func (h *UsersHandler) GenerateOTP(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if user.Verified {
		jsonError(w, http.StatusBadRequest, "account already verified")
		return
	}
	if err := h.sendOTP(r, user); err != nil {
		slog.Error("sending verification code", "user", user.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	jsonResponse(w, http.StatusOK, "verification code sent", nil)
}

// Profile handles GET /api/user/profile.
func (h *UsersHandler) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, "", user)
}

// UpdateProfile handles PUT /api/user/profile.
func (h *UsersHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		jsonError(w, http.StatusBadRequest, "name is required; phone and address must be short")
		return
	}

	user, err := store.UpdateProfile(r.Context(), h.DB, userID(r), req.Name, req.Phone, req.Address)
	if err != nil {
		slog.Error("updating profile", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, "profile updated", user)
}

// Logout handles POST /api/user/logout by revoking the presented token.
func (h *UsersHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	expiresAt := time.Now().Add(auth.DefaultTokenTTL)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, expiresAt); err != nil {
		slog.Error("revoking token", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("user logged out", "user", claims.UserID)
	jsonResponse(w, http.StatusOK, "logged out", nil)
}

// currentUser loads the authenticated user, writing an error response if
// that fails.
func (h *UsersHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, err := store.GetUser(r.Context(), h.DB, userID(r))
	if err != nil {
		slog.Error("loading user", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return nil, false
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return nil, false
	}
	return user, true
}

func (h *UsersHandler) sendOTP(r *http.Request, user *model.User) error {
	code, err := auth.GenerateOTP()
	if err != nil {
		return err
	}
	if err := store.SetOTP(r.Context(), h.DB, user.ID, code, time.Now().Add(h.OTPTTL)); err != nil {
		return err
	}
	return h.Mailer.SendOTP(r.Context(), user.Email, code)
}
