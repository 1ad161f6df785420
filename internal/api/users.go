package api

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/careline/careline/internal/apperr"
	"github.com/careline/careline/store/user"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input past 72 bytes.
	maxPasswordLength = 72
	userStoreTimeout  = 5 * time.Second
)

type signupRequest struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Role         string `json:"role"`
	ProfileImage string `json:"profileImage"`
}

func (req *signupRequest) validate() error {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Role == "" {
		req.Role = string(user.RolePatient)
	}

	if req.FirstName == "" {
		return apperr.Validation("firstName is required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil || req.Email == "" {
		return apperr.Validation("a valid email is required")
	}
	if len(req.Password) < minPasswordLength || len(req.Password) > maxPasswordLength {
		return apperr.Validation("password must be %d to %d characters", minPasswordLength, maxPasswordLength)
	}
	if !user.Role(req.Role).Valid() {
		return apperr.Validation("role must be one of patient, doctor, nurse")
	}
	return nil
}

func storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), userStoreTimeout)
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, apperr.Internal(err, "failed to create user"))
		return
	}

	u := &user.User{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PasswordHash: string(hashedBytes),
		Role:         user.Role(req.Role),
		ProfileImage: strings.TrimSpace(req.ProfileImage),
		CreatedAt:    time.Now().UTC(),
	}

	ctx, cancel := storeCtx(r)
	defer cancel()
	if err := h.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			writeError(w, apperr.Conflict("email already registered"))
			return
		}
		h.log.Error("create user", zap.Error(err))
		writeError(w, apperr.Transient(err, "failed to create user, retry later"))
		return
	}
	h.log.Info("user registered", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	writeOK(w, http.StatusCreated, okBody{Message: "User created successfully", Data: u})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Status    bool         `json:"status"`
	Token     string       `json:"token"`
	ExpiresIn int          `json:"expires_in"`
	User      user.Profile `json:"user"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, apperr.Validation("email and password are required"))
		return
	}

	ctx, cancel := storeCtx(r)
	defer cancel()
	u, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeError(w, apperr.Unauthenticated("invalid credentials"))
			return
		}
		h.log.Error("lookup user", zap.Error(err))
		writeError(w, apperr.Transient(err, "login unavailable, retry later"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, apperr.Unauthenticated("invalid credentials"))
		return
	}

	token, err := h.tokens.GenerateToken(u.ID, string(u.Role))
	if err != nil {
		writeError(w, apperr.Internal(err, "failed to create session"))
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Status:    true,
		Token:     token,
		ExpiresIn: int(h.tokens.Validity().Seconds()),
		User:      u.Profile(),
	})
}
