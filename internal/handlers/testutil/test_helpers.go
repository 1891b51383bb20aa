package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/api"
	"github.com/rajkayal/hubauth/internal/app"
	iauth "github.com/rajkayal/hubauth/internal/auth"
	"github.com/rajkayal/hubauth/internal/auth/otp"
	"github.com/rajkayal/hubauth/internal/auth/providers"
	"github.com/rajkayal/hubauth/internal/database"
	"github.com/rajkayal/hubauth/internal/models"
	"github.com/rajkayal/hubauth/internal/notify"
	"github.com/rajkayal/hubauth/internal/services"
	"github.com/rajkayal/hubauth/pkg/crypto"
	"github.com/rajkayal/hubauth/pkg/response"
)

// CaptureDispatcher records issued codes instead of sending them, so
// tests can complete step-up flows without a mail server.
type CaptureDispatcher struct {
	mu    sync.Mutex
	codes map[string]string
	Fail  bool
}

func NewCaptureDispatcher() *CaptureDispatcher {
	return &CaptureDispatcher{codes: make(map[string]string)}
}

func (d *CaptureDispatcher) Send(_ context.Context, email, code, _ string) (*notify.Delivery, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail {
		return nil, fmt.Errorf("capture dispatcher: forced failure")
	}
	d.codes[email] = code
	return &notify.Delivery{MessageID: uuid.NewString()}, nil
}

// LastCode returns the most recent code captured for the email.
func (d *CaptureDispatcher) LastCode(email string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codes[strings.ToLower(email)]
}

// Env encapsulates a fully-wired API instance backed by an in-memory
// database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	JWT        *iauth.JWTService
	OTP        *services.OTPService
	Dispatcher *CaptureDispatcher
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_foreign_keys=1",
		strings.ReplaceAll(uuid.NewString(), "-", ""))
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, database.Prepare(db, database.SeedConfig{}))

	store, err := otp.NewStore(db)
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	dispatcher := NewCaptureDispatcher()
	otpSvc, err := services.NewOTPService(db, store, otp.DefaultPolicy(), dispatcher, audit)
	require.NoError(t, err)

	accounts, err := services.NewAccountService(db, otpSvc, audit)
	require.NoError(t, err)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:   "test-suite-super-secret-key-32-bytes!!",
		Issuer:   "test-suite",
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)

	local, err := providers.NewLocalProvider(db, providers.LocalConfig{})
	require.NoError(t, err)

	registry := providers.NewRegistry()

	stepUp, err := iauth.NewStepUpService(db, local, registry, otpSvc, jwtSvc, audit, iauth.AuthPolicy{
		RequireStepUpForPrivileged: true,
		AllowMockIdentity:          true,
		FederatedEmailDomain:       "hubauth.test",
	})
	require.NoError(t, err)

	cfg := &app.Config{}
	router, err := api.NewRouter(cfg, api.Deps{
		DB:       db,
		JWT:      jwtSvc,
		StepUp:   stepUp,
		Accounts: accounts,
		OTP:      otpSvc,
		Audit:    audit,
	})
	require.NoError(t, err)

	return &Env{
		T:          t,
		DB:         db,
		Router:     router,
		JWT:        jwtSvc,
		OTP:        otpSvc,
		Dispatcher: dispatcher,
	}
}

// CreateAccount inserts an account with a bcrypt password hash.
func (e *Env) CreateAccount(email, password, role string) *models.Account {
	e.T.Helper()

	hash, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	account := &models.Account{
		Email:         strings.ToLower(email),
		Name:          "Test Account",
		PasswordHash:  hash,
		Role:          role,
		Provider:      models.ProviderLocal,
		EmailVerified: true,
		Active:        true,
	}
	require.NoError(e.T, e.DB.Create(account).Error)
	return account
}

// TokenFor issues a bearer token for the account.
func (e *Env) TokenFor(account *models.Account) string {
	e.T.Helper()

	token, err := e.JWT.GenerateToken(iauth.TokenInput{
		UserID:   account.ID,
		Email:    account.Email,
		Role:     account.Role,
		Provider: account.Provider,
	})
	require.NoError(e.T, err)
	return token
}

// Request performs an HTTP request against the router, optionally with
// a JSON body and bearer token.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)
	return rec
}

// DecodeResponse parses the standard response envelope.
func DecodeResponse(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()

	var decoded response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return decoded
}

// DecodeInto re-marshals the envelope data into a typed destination.
func DecodeInto(t *testing.T, data any, dest any) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}
