// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/surveydesk/internal/auth"
	"github.com/olegiv/surveydesk/internal/middleware"
	"github.com/olegiv/surveydesk/internal/model"
	"github.com/olegiv/surveydesk/internal/service"
	"github.com/olegiv/surveydesk/internal/session"
	"github.com/olegiv/surveydesk/internal/store"
	"github.com/olegiv/surveydesk/internal/survey"
	"github.com/olegiv/surveydesk/internal/testutil"
)

const (
	testOrigin   = "https://company-secreteriat-v1-frontend.vercel.app"
	testPassword = "password1"
)

// testEnv is a fully wired router over a temporary database.
type testEnv struct {
	db       *sql.DB
	router   http.Handler
	sessions *session.Manager
	events   *service.EventService
}

type envOption func(*RouterConfig, *middleware.LoginProtectionConfig)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)

	lpCfg := middleware.LoginProtectionConfig{
		IPRateLimit:       1000,
		IPBurst:           1000,
		MaxFailedAttempts: 5,
		LockoutDuration:   time.Minute,
		AttemptWindow:     time.Minute,
	}

	catalog, err := survey.DefaultCatalog()
	require.NoError(t, err)

	sessions := session.NewManager(session.NewSQLStore(db), session.DefaultTTL)
	events := service.NewEventService(db)
	resolver := session.NewResolver(sessions, store.New(db), auth.SessionCookieName)
	policy := middleware.NewCORSPolicy(middleware.CORSConfig{DefaultOrigins: []string{testOrigin}})

	cfg := RouterConfig{
		CORS:            policy,
		Gate:            middleware.NewAuthGate(resolver, events),
		Surveys:         NewSurveysHandler(catalog, service.NewSubmissionService(db, catalog, events)),
		Health:          NewHealthHandler(db, "test"),
		RateLimiter:     middleware.NewGlobalRateLimiter(1000, 1000),
		CSRF:            middleware.CSRF(middleware.NewCSRFConfig([]byte("12345678901234567890123456789012"), policy.Origins(), false)),
		SecurityHeaders: middleware.DefaultSecurityHeadersConfig(true),
		RequestTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg, &lpCfg)
	}

	lp := middleware.NewLoginProtection(lpCfg, nil)
	t.Cleanup(lp.Stop)
	cfg.LoginProtection = lp
	cfg.Auth = NewAuthHandler(service.NewAuthService(db, sessions, events, lp), CookieConfig{})

	return &testEnv{db: db, router: NewRouter(cfg), sessions: sessions, events: events}
}

type reqOption func(*http.Request)

func withBearer(token string) reqOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(key, value string) reqOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func withCookie(value string) reqOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: value}) }
}

func (e *testEnv) do(method, path, body string, opts ...reqOption) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, opt := range opts {
		opt(req)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// signup registers a USER account and returns its token.
func (e *testEnv) signup(t *testing.T, email string) string {
	t.Helper()
	rr := e.do(http.MethodPost, RouteSignup, `{"email":"`+email+`","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeAuth(t, rr).Token
}

// loginAdmin creates an ADMIN account and logs it in.
func (e *testEnv) loginAdmin(t *testing.T) string {
	t.Helper()
	testutil.CreateUser(t, e.db, "admin@example.com", testPassword, string(model.RoleAdmin))
	rr := e.do(http.MethodPost, RouteLogin, `{"loginAs":"ADMIN","identifier":"admin@example.com","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeAuth(t, rr).Token
}

func decodeAuth(t *testing.T, rr *httptest.ResponseRecorder) authResponse {
	t.Helper()
	var resp authResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	require.Len(t, resp, 1, "error bodies carry only the error field")
	msg, ok := resp["error"].(string)
	require.True(t, ok)
	return msg
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

func TestSignupMeLogoutScenario(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, RouteSignup, `{"email":"a@b.com","password":"password1"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	signup := decodeAuth(t, rr)
	require.NotEmpty(t, signup.Token)
	assert.Equal(t, "a@b.com", signup.User.Email)
	assert.Equal(t, model.RoleUser, signup.User.Role)
	assert.NotEmpty(t, signup.User.ID)

	rr = env.do(http.MethodGet, RouteMe, "", withBearer(signup.Token))
	require.Equal(t, http.StatusOK, rr.Code)
	var me userResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &me))
	assert.Equal(t, signup.User, me.User)

	rr = env.do(http.MethodPost, RouteLogout, "", withBearer(signup.Token))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = env.do(http.MethodGet, RouteMe, "", withBearer(signup.Token))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized", errorOf(t, rr))
}

func TestSignupThenLoginReturnsSameIdentity(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, RouteSignup, `{"email":"  Person@Example.COM ","password":"longenough"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	signup := decodeAuth(t, rr)

	rr = env.do(http.MethodPost, RouteLogin, `{"loginAs":"USER","identifier":"person@example.com","password":"longenough"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	login := decodeAuth(t, rr)

	assert.Equal(t, signup.User, login.User)
	assert.NotEqual(t, signup.Token, login.Token, "each login issues a new session")
}

func TestSignupValidation(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "taken@example.com")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"missing email", `{"password":"password1"}`, http.StatusBadRequest, "Email and password are required."},
		{"missing password", `{"email":"x@example.com"}`, http.StatusBadRequest, "Email and password are required."},
		{"short password", `{"email":"x@example.com","password":"short"}`, http.StatusBadRequest, "Password must be at least 8 characters."},
		{"duplicate email", `{"email":"TAKEN@example.com","password":"password1"}`, http.StatusConflict, "An account with this email already exists."},
		{"malformed json", `{"email":`, http.StatusBadRequest, msgInvalidBody},
		{"trailing data", `{"email":"x@example.com","password":"password1"} {}`, http.StatusBadRequest, msgInvalidBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, RouteSignup, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantError, errorOf(t, rr))
			assert.Nil(t, sessionCookie(rr))
		})
	}
}

func TestLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "user@example.com")

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"missing role", `{"identifier":"user@example.com","password":"password1"}`, http.StatusBadRequest, "Login role, username/email and password are required."},
		{"missing identifier", `{"loginAs":"USER","password":"password1"}`, http.StatusBadRequest, "Login role, username/email and password are required."},
		{"bad role", `{"loginAs":"OWNER","identifier":"user@example.com","password":"password1"}`, http.StatusBadRequest, "Invalid login role selected."},
		{"wrong password", `{"loginAs":"USER","identifier":"user@example.com","password":"password2"}`, http.StatusUnauthorized, "Invalid username/email or password."},
		{"unknown account", `{"loginAs":"USER","identifier":"nobody@example.com","password":"password1"}`, http.StatusUnauthorized, "Invalid username/email or password."},
		{"role mismatch", `{"loginAs":"ADMIN","identifier":"user@example.com","password":"password1"}`, http.StatusForbidden, "This account is registered as USER. Please choose USER login."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, RouteLogin, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantError, errorOf(t, rr))
		})
	}
}

func TestLoginAccountLockout(t *testing.T) {
	env := newTestEnv(t, func(_ *RouterConfig, lp *middleware.LoginProtectionConfig) {
		lp.MaxFailedAttempts = 2
	})
	env.signup(t, "user@example.com")

	bad := `{"loginAs":"USER","identifier":"user@example.com","password":"wrongpass"}`

	rr := env.do(http.MethodPost, RouteLogin, bad)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(http.MethodPost, RouteLogin, bad)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	// Correct password is refused while locked
	rr = env.do(http.MethodPost, RouteLogin, `{"loginAs":"USER","identifier":"user@example.com","password":"password1"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestLoginIPRateLimit(t *testing.T) {
	env := newTestEnv(t, func(_ *RouterConfig, lp *middleware.LoginProtectionConfig) {
		lp.IPRateLimit = 0.001
		lp.IPBurst = 1
	})

	body := `{"loginAs":"USER","identifier":"user@example.com","password":"password1"}`
	rr := env.do(http.MethodPost, RouteLogin, body)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(http.MethodPost, RouteLogin, body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.NotEmpty(t, errorOf(t, rr))
}

func TestSessionCookie(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, RouteSignup, `{"email":"c@example.com","password":"password1"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	token := decodeAuth(t, rr).Token

	c := sessionCookie(rr)
	require.NotNil(t, c)
	assert.Equal(t, token, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.WithinDuration(t, time.Now().Add(session.DefaultTTL), c.Expires, time.Minute)

	// The cookie alone authenticates
	rr = env.do(http.MethodGet, RouteMe, "", withCookie(token))
	assert.Equal(t, http.StatusOK, rr.Code)

	// Logout through the cookie revokes and clears it
	rr = env.do(http.MethodPost, RouteLogout, "", withCookie(token))
	require.Equal(t, http.StatusOK, rr.Code)
	cleared := sessionCookie(rr)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)

	rr = env.do(http.MethodGet, RouteMe, "", withCookie(token))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestEmptyBearerDoesNotFallBackToCookie(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "d@example.com")

	rr := env.do(http.MethodGet, RouteMe, "", withHeader("Authorization", "Bearer "), withCookie(token))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(http.MethodGet, RouteMe, "", withHeader("Authorization", "bEaReR "+token))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLogoutIdempotent(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "e@example.com")

	for i := 0; i < 2; i++ {
		rr := env.do(http.MethodPost, RouteLogout, "", withBearer(token))
		assert.Equal(t, http.StatusOK, rr.Code, "logout %d", i+1)
		assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
	}

	// No credential at all is still a success
	rr := env.do(http.MethodPost, RouteLogout, "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(http.MethodPost, RouteLogout, "", withBearer("not-a-real-token"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestExpiredSessionRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "f@example.com")

	env.sessions.SetClock(func() time.Time { return time.Now().Add(session.DefaultTTL + time.Second) })

	rr := env.do(http.MethodGet, RouteMe, "", withBearer(token))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized", errorOf(t, rr))

	// Lazily deleted: rewinding the clock does not revive it
	env.sessions.SetClock(time.Now)
	rr = env.do(http.MethodGet, RouteMe, "", withBearer(token))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestUnauthorizedResponsesAreIdentical(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{RouteMe, RouteSurveys, "/surveys/workplace-wellbeing"}
	for _, path := range paths {
		missing := env.do(http.MethodGet, path, "")
		invalid := env.do(http.MethodGet, path, "", withBearer("garbage"))

		assert.Equal(t, http.StatusUnauthorized, missing.Code, path)
		assert.Equal(t, http.StatusUnauthorized, invalid.Code, path)
		assert.Equal(t, missing.Body.String(), invalid.Body.String(), path)
	}

	rr := env.do(http.MethodPost, "/surveys/workplace-wellbeing/submit", `{"answers":{}}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSurveyListAndGet(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "g@example.com")

	rr := env.do(http.MethodGet, RouteSurveys, "", withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code)
	var list surveyListResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Surveys, 3)

	rr = env.do(http.MethodGet, RouteSurveys+"?q=GOVERNANCE", "", withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code)
	list = surveyListResponse{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list.Surveys, 1)
	assert.Equal(t, "governance-self-assessment", list.Surveys[0].Slug)

	rr = env.do(http.MethodGet, RouteSurveys+"?q=no-such-text-anywhere", "", withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"surveys":[]}`, rr.Body.String())

	rr = env.do(http.MethodGet, "/surveys/training-feedback", "", withBearer(token))
	require.Equal(t, http.StatusOK, rr.Code)
	var one surveyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &one))
	assert.Equal(t, "training-feedback", one.Survey.Slug)
	assert.NotEmpty(t, one.Survey.Title)

	rr = env.do(http.MethodGet, "/surveys/unknown", "", withBearer(token))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Survey not found", errorOf(t, rr))
}

func TestSubmitRoleIsolation(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.signup(t, "h@example.com")
	adminToken := env.loginAdmin(t)

	body := `{"answers":{"q1":"yes","q2":3}}`

	rr := env.do(http.MethodPost, "/surveys/workplace-wellbeing/submit", body, withBearer(userToken))
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

	rr = env.do(http.MethodPost, "/surveys/workplace-wellbeing/submit", body, withBearer(adminToken))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Admins cannot submit assessments.", errorOf(t, rr))

	// Admins may still read surveys
	rr = env.do(http.MethodGet, RouteSurveys, "", withBearer(adminToken))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSubmitAnswersShape(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "i@example.com")
	path := "/surveys/training-feedback/submit"

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"empty object", `{"answers":{}}`, http.StatusCreated},
		{"nested object", `{"answers":{"a":{"b":[1,"two"]}}}`, http.StatusCreated},
		{"array", `{"answers":[]}`, http.StatusBadRequest},
		{"null", `{"answers":null}`, http.StatusBadRequest},
		{"string", `{"answers":"yes"}`, http.StatusBadRequest},
		{"number", `{"answers":42}`, http.StatusBadRequest},
		{"missing", `{}`, http.StatusBadRequest},
		{"malformed body", `{"answers":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, path, tt.body, withBearer(token))
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantStatus == http.StatusBadRequest {
				assert.Equal(t, "Invalid answers payload.", errorOf(t, rr))
			}
		})
	}
}

func TestSubmitUnknownSurveyBeforePayload(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "j@example.com")

	rr := env.do(http.MethodPost, "/surveys/unknown/submit", `{"answers":[]}`, withBearer(token))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Survey not found", errorOf(t, rr))
}

func TestSubmitSanitizesAnswers(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "k@example.com")

	rr := env.do(http.MethodPost, "/surveys/training-feedback/submit",
		`{"answers":{"comment":"<script>alert(1)</script>great"}}`, withBearer(token))
	require.Equal(t, http.StatusCreated, rr.Code)

	var data string
	require.NoError(t, env.db.QueryRow(`SELECT data FROM submissions LIMIT 1`).Scan(&data))
	assert.JSONEq(t, `{"comment":"great"}`, data)

	rr = env.do(http.MethodPost, "/surveys/training-feedback/submit",
		`{"answers":{"comment":"R&D scored 5 < 6, \"fine\""}}`, withBearer(token))
	require.Equal(t, http.StatusCreated, rr.Code)

	require.NoError(t, env.db.QueryRow(`SELECT data FROM submissions ORDER BY rowid DESC LIMIT 1`).Scan(&data))
	assert.Equal(t, `{"comment":"R&D scored 5 < 6, \"fine\""}`, data)
}

func TestCORSOnResponses(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "l@example.com")

	t.Run("allowed origin reflected", func(t *testing.T) {
		rr := env.do(http.MethodGet, RouteMe, "", withBearer(token), withHeader("Origin", testOrigin))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rr.Header().Values("Vary"), "Origin")
		assert.Equal(t, middleware.MethodsGet, rr.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("error responses carry CORS", func(t *testing.T) {
		rr := env.do(http.MethodGet, RouteMe, "", withHeader("Origin", testOrigin))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("disallowed origin not reflected", func(t *testing.T) {
		rr := env.do(http.MethodGet, RouteMe, "", withBearer(token), withHeader("Origin", "https://evil.example.com"))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("no origin header", func(t *testing.T) {
		rr := env.do(http.MethodGet, RouteMe, "", withBearer(token))
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		path    string
		methods string
	}{
		{RouteSignup, middleware.MethodsPost},
		{RouteLogin, middleware.MethodsPost},
		{RouteLogout, middleware.MethodsPost},
		{RouteMe, middleware.MethodsGet},
		{RouteSurveys, middleware.MethodsGet},
		{"/surveys/workplace-wellbeing", middleware.MethodsGet},
		{"/surveys/workplace-wellbeing/submit", middleware.MethodsPost},
		{RouteHealth, middleware.MethodsGet},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := env.do(http.MethodOptions, tt.path, "", withHeader("Origin", testOrigin))
			assert.Equal(t, http.StatusNoContent, rr.Code)
			assert.Empty(t, rr.Body.String())
			assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.methods, rr.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", rr.Header().Get("Access-Control-Allow-Headers"))
		})
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/nope", "", withHeader("Origin", testOrigin))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, msgNotFound, errorOf(t, rr))
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))

	rr = env.do(http.MethodGet, RouteLogin, "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, msgMethodNotAllowed, errorOf(t, rr))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, RouteHealth, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestHealthDatabaseDown(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Close())

	rr := env.do(http.MethodGet, RouteHealth, "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCSRFCrossSite(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "m@example.com")

	crossSite := []reqOption{
		withHeader("Sec-Fetch-Site", "cross-site"),
		withHeader("Origin", "https://evil.example.com"),
	}
	with := func(extra ...reqOption) []reqOption {
		return append(append([]reqOption{}, crossSite...), extra...)
	}

	t.Run("cookie submit rejected", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/surveys/workplace-wellbeing/submit", `{"answers":{}}`, with(withCookie(token))...)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "Forbidden - CSRF validation failed", errorOf(t, rr))
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

		var count int
		require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM submissions`).Scan(&count))
		assert.Zero(t, count)
	})

	t.Run("bearer submit not checked", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/surveys/workplace-wellbeing/submit", `{"answers":{}}`, with(withBearer(token))...)
		assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	})

	t.Run("login handled", func(t *testing.T) {
		rr := env.do(http.MethodPost, RouteLogin,
			`{"loginAs":"USER","identifier":"m@example.com","password":"`+testPassword+`"}`, crossSite...)
		assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("logout never errors", func(t *testing.T) {
		rr := env.do(http.MethodPost, RouteLogout, "", with(withCookie(token))...)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"ok":true}`, rr.Body.String())

		c := sessionCookie(rr)
		require.NotNil(t, c, "logout should clear the session cookie")
		assert.Negative(t, c.MaxAge)

		rr = env.do(http.MethodGet, RouteMe, "", withBearer(token))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

// stubCatalog lets router tests control how the catalog behaves.
type stubCatalog struct {
	list func(ctx context.Context) []survey.Survey
}

func (c stubCatalog) List(ctx context.Context, _ string) []survey.Survey { return c.list(ctx) }

func (c stubCatalog) Get(context.Context, string) (survey.Survey, bool) {
	return survey.Survey{}, false
}

func withCatalog(c survey.Catalog) envOption {
	return func(cfg *RouterConfig, _ *middleware.LoginProtectionConfig) {
		cfg.Surveys = NewSurveysHandler(c, nil)
	}
}

func TestPanicReturnsJSONWithCORS(t *testing.T) {
	env := newTestEnv(t, withCatalog(stubCatalog{list: func(context.Context) []survey.Survey {
		panic("catalog exploded")
	}}))
	token := env.signup(t, "p@example.com")

	rr := env.do(http.MethodGet, RouteSurveys, "", withBearer(token), withHeader("Origin", testOrigin))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, middleware.MsgInternalError, errorOf(t, rr))
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestTimeoutReturnsJSONWithCORS(t *testing.T) {
	env := newTestEnv(t,
		withCatalog(stubCatalog{list: func(ctx context.Context) []survey.Survey {
			<-ctx.Done()
			return nil
		}}),
		func(cfg *RouterConfig, _ *middleware.LoginProtectionConfig) {
			cfg.RequestTimeout = 50 * time.Millisecond
		},
	)
	token := env.signup(t, "q@example.com")

	rr := env.do(http.MethodGet, RouteSurveys, "", withBearer(token), withHeader("Origin", testOrigin))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, middleware.MsgRequestTimeout, errorOf(t, rr))
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, []string{"Origin"}, rr.Header().Values("Vary"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestEmptyBearerOverRealConnection(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "r@example.com")

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	// net/http trims header values on the wire, so "Bearer " arrives as
	// "Bearer", which is not a bearer credential.
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+RouteMe, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer ")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForbiddenAttemptRecordedInEventLog(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.loginAdmin(t)

	rr := env.do(http.MethodPost, "/surveys/workplace-wellbeing/submit", `{"answers":{}}`, withBearer(adminToken))
	require.Equal(t, http.StatusForbidden, rr.Code)

	events, err := env.events.Recent(t.Context(), 10)
	require.NoError(t, err)

	found := false
	for _, e := range events {
		if e.Category == model.EventCategoryAuth && strings.Contains(e.Message, "Access denied") {
			found = true
		}
	}
	assert.True(t, found, "expected an access denied event")
}
