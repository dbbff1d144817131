// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/handlers"
	"codeberg.org/oliverandrich/go-accounts/internal/middleware"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/account"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"codeberg.org/oliverandrich/go-accounts/internal/services/token"
	"codeberg.org/oliverandrich/go-accounts/internal/storage"
	"codeberg.org/oliverandrich/go-accounts/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Secur3!pw"

type challenge struct {
	email string
	code  string
	token string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []challenge
}

func (n *fakeNotifier) SendRegistrationChallenge(_ context.Context, email, code, tok string) error {
	return n.add(email, code, tok)
}

func (n *fakeNotifier) SendResetChallenge(_ context.Context, email, code, tok string) error {
	return n.add(email, code, tok)
}

func (n *fakeNotifier) add(email, code, tok string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, challenge{email: email, code: code, token: tok})
	return nil
}

func (n *fakeNotifier) last(t *testing.T) challenge {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

type testApp struct {
	e        *echo.Echo
	h        *handlers.Handlers
	repo     *repository.Repository
	notifier *fakeNotifier
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db, repo := testutil.NewTestDB(t)

	sessions, err := session.NewManager(&config.SessionConfig{CookieName: "_session", MaxAge: 3600}, false)
	require.NoError(t, err)
	images, err := storage.NewFileStore(t.TempDir(), "/media", 0)
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	svc := account.New(repo, token.NewService(), notifier, sessions,
		account.WithHasher(auth.NewHasher(bcrypt.MinCost)),
		account.WithImageStore(images),
	)
	h := handlers.New(svc, sessions, db, images, 0)

	e := echo.New()
	e.Validator = handlers.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler
	e.Use(middleware.LoadAccount(sessions, repo))

	e.GET("/health", h.Health)
	e.GET("/auth/password-rules", h.PasswordRules)
	e.POST("/auth/login", h.Login)
	e.POST("/auth/logout", h.Logout)
	e.POST("/auth/register", h.Register)
	e.POST("/auth/forgot-password", h.ForgotPassword)
	e.GET("/confirm/:token", h.ConfirmPage)
	e.POST("/confirm/:token", h.Confirm)
	e.GET("/reset/:token", h.ResetPage)
	e.POST("/reset/:token", h.ResetCode)
	e.POST("/reset/:token/password", h.SetPassword)
	e.GET("/account", h.Account, middleware.RequireAuth)
	e.POST("/account/profile", h.UpdateProfile, middleware.RequireAuth)
	e.GET("/accounts/:id", h.StaffAccount, middleware.RequireStaff)
	e.POST("/accounts/:id/profile", h.StaffUpdateProfile, middleware.RequireAuth)

	return &testApp{e: e, h: h, repo: repo, notifier: notifier}
}

func (a *testApp) do(t *testing.T, req *http.Request, cookies ...*http.Cookie) (*httptest.ResponseRecorder, handlers.Response) {
	t.Helper()
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var resp handlers.Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func (a *testApp) post(t *testing.T, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, handlers.Response) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return a.do(t, testutil.NewRequest(http.MethodPost, path, bytes.NewReader(payload)), cookies...)
}

func (a *testApp) get(t *testing.T, path string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, handlers.Response) {
	t.Helper()
	return a.do(t, httptest.NewRequest(http.MethodGet, path, nil), cookies...)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "_session" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

// registerAndConfirm creates an active account over HTTP and returns its session cookie.
func (a *testApp) registerAndConfirm(t *testing.T, name, email string) *http.Cookie {
	t.Helper()
	rec, _ := a.post(t, "/auth/register", map[string]string{
		"name": name, "email": email, "password": testPassword, "repeat_password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	sent := a.notifier.last(t)
	rec, _ = a.post(t, "/confirm/"+sent.token, map[string]string{"code": sent.code})
	require.Equal(t, http.StatusOK, rec.Code)
	return sessionCookie(t, rec)
}

func TestHealth(t *testing.T) {
	h := handlers.New(nil, nil, nil, nil, 0)

	c, rec := testutil.NewEchoContext(echo.New(), http.MethodGet, "/health", nil)

	err := h.Health(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealth_WithDatabase(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegisterAndConfirm(t *testing.T) {
	app := newTestApp(t)

	rec, resp := app.post(t, "/auth/register", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": testPassword, "repeat_password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.OK)

	sent := app.notifier.last(t)
	assert.Equal(t, "alice@example.com", sent.email)

	rec, resp = app.get(t, "/confirm/"+sent.token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.OK)

	wrong := "999999"
	if sent.code == wrong {
		wrong = "888888"
	}
	rec, resp = app.post(t, "/confirm/"+sent.token, map[string]string{"code": wrong})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "The code is incorrect. Please try again.", resp.Message)

	rec, resp = app.post(t, "/confirm/"+sent.token, map[string]string{"code": sent.code})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Account)
	assert.Equal(t, "alice@example.com", resp.Account.Email)
	cookie := sessionCookie(t, rec)

	rec, resp = app.get(t, "/account", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Account)
	assert.Equal(t, "Alice", resp.Account.Name)

	// The link is spent once the registration is confirmed.
	rec, _ = app.get(t, "/confirm/"+sent.token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegister_Pending(t *testing.T) {
	app := newTestApp(t)
	body := map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": testPassword, "repeat_password": testPassword,
	}

	rec, _ := app.post(t, "/auth/register", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp := app.post(t, "/auth/register", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, resp.Message, "already been sent")
	assert.Len(t, app.notifier.sent, 1)
}

func TestRegister_AlreadyActive(t *testing.T) {
	app := newTestApp(t)
	app.registerAndConfirm(t, "Alice", "alice@example.com")

	rec, resp := app.post(t, "/auth/register", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": testPassword, "repeat_password": testPassword,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, resp.OK)
}

func TestRegister_Validation(t *testing.T) {
	app := newTestApp(t)

	rec, resp := app.post(t, "/auth/register", map[string]string{
		"name": "Alice", "email": "not-an-email", "password": testPassword, "repeat_password": "other",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Errors, "Enter a valid email address.")
	assert.Contains(t, resp.Errors, "The passwords do not match.")

	rec, resp = app.post(t, "/auth/register", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "weak", "repeat_password": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Errors, "Password must be at least 8 characters long.")
	assert.Empty(t, app.notifier.sent)
}

func TestConfirmPage_UnknownToken(t *testing.T) {
	app := newTestApp(t)

	rec, resp := app.get(t, "/confirm/does-not-exist")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "This link has expired or is invalid. Please try again.", resp.Message)
}

func TestConfirm_CodeFormat(t *testing.T) {
	app := newTestApp(t)

	rec, resp := app.post(t, "/confirm/whatever", map[string]string{"code": "12ab56"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Errors, "Code must contain digits only.")
}

func TestLoginLogout(t *testing.T) {
	app := newTestApp(t)
	app.registerAndConfirm(t, "Alice", "alice@example.com")

	rec, resp := app.post(t, "/auth/login", map[string]string{"email": "alice@example.com", "password": "wrong-pass1!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Email or password is incorrect.", resp.Message)

	rec, resp = app.post(t, "/auth/login", map[string]string{"email": "ALICE@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Account)
	cookie := sessionCookie(t, rec)

	rec, _ = app.get(t, "/account", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = app.post(t, "/auth/logout", map[string]string{}, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(t, rec)
	assert.Negative(t, cleared.MaxAge)
}

func TestAccount_RequiresLogin(t *testing.T) {
	app := newTestApp(t)

	rec, resp := app.get(t, "/account")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, resp.OK)
	assert.Equal(t, "Please log in to view this page.", resp.Message)
}

func TestPasswordResetFlow(t *testing.T) {
	app := newTestApp(t)
	app.registerAndConfirm(t, "Alice", "alice@example.com")
	const newPassword = "N3w!passw0rd"

	rec, resp := app.post(t, "/auth/forgot-password", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email sent. Please check your inbox.", resp.Message)
	sent := app.notifier.last(t)

	rec, resp = app.post(t, "/auth/forgot-password", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, resp.Message, "already been sent")

	rec, _ = app.get(t, "/reset/"+sent.token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = app.post(t, "/reset/"+sent.token, map[string]string{"code": sent.code})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = app.post(t, "/reset/"+sent.token+"/password", map[string]string{
		"password": newPassword, "repeat_password": "different1!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Errors, "The passwords do not match.")

	rec, _ = app.post(t, "/reset/"+sent.token+"/password", map[string]string{
		"password": newPassword, "repeat_password": newPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = app.post(t, "/reset/"+sent.token+"/password", map[string]string{
		"password": newPassword, "repeat_password": newPassword,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = app.post(t, "/auth/login", map[string]string{"email": "alice@example.com", "password": newPassword})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForgotPassword_Failures(t *testing.T) {
	app := newTestApp(t)

	rec, resp := app.post(t, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "The email you entered is incorrect.", resp.Message)

	rec, _ = app.post(t, "/auth/register", map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": testPassword, "repeat_password": testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp = app.post(t, "/auth/forgot-password", map[string]string{"email": "bob@example.com"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, resp.Message, "not active yet")
}

func profileRequest(t *testing.T, path, name string, img []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("name", name))
	if img != nil {
		part, err := w.CreateFormFile("image", "avatar.png")
		require.NoError(t, err)
		_, err = io.Copy(part, bytes.NewReader(img))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestUpdateProfile(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndConfirm(t, "Alice", "alice@example.com")

	rec, resp := app.do(t, profileRequest(t, "/account/profile", "Alice Liddell", pngBytes(t)), cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, resp.Account)
	assert.Equal(t, "Alice Liddell", resp.Account.Name)
	assert.Regexp(t, `^/media/avatars/\d+/[0-9a-f-]+\.png$`, resp.Account.ImageURL)

	rec, resp = app.do(t, profileRequest(t, "/account/profile", "Alice", []byte("not an image")), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotEmpty(t, resp.Errors)
	assert.Contains(t, resp.Errors[0], "Upload a valid image")

	rec, resp = app.do(t, profileRequest(t, "/account/profile", "", nil), cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, resp.Errors, "Name is required.")
}

func TestStaffRoutes(t *testing.T) {
	app := newTestApp(t)
	aliceCookie := app.registerAndConfirm(t, "Alice", "alice@example.com")
	bobCookie := app.registerAndConfirm(t, "Bob", "bob@example.com")

	ctx := context.Background()
	alice, err := app.repo.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	bob, err := app.repo.FindByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	alicePath := "/accounts/" + strconv.FormatInt(alice.ID, 10)

	rec, _ := app.get(t, alicePath, bobCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = app.do(t, profileRequest(t, alicePath+"/profile", "Mallory", nil), bobCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	bob.IsStaff = true
	require.NoError(t, app.repo.Save(ctx, bob))

	rec, resp := app.get(t, alicePath, bobCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", resp.Account.Email)

	rec, resp = app.do(t, profileRequest(t, alicePath+"/profile", "Alice by Staff", nil), bobCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alice by Staff", resp.Account.Name)

	rec, _ = app.get(t, "/accounts/999999", bobCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = app.get(t, alicePath, aliceCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestErrorHandler_NotFound(t *testing.T) {
	app := newTestApp(t)

	rec, resp := app.get(t, "/nope")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.OK)
	assert.Equal(t, "Not Found", resp.Message)
}

func TestInactiveSessionIgnored(t *testing.T) {
	app := newTestApp(t)
	cookie := app.registerAndConfirm(t, "Alice", "alice@example.com")

	acct, err := app.repo.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	acct.IsActive = false
	require.NoError(t, app.repo.Save(context.Background(), acct))

	rec, _ := app.get(t, "/account", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_FormEncoded(t *testing.T) {
	app := newTestApp(t)
	app.registerAndConfirm(t, "Alice", "alice@example.com")

	form := url.Values{"email": {"alice@example.com"}, "password": {testPassword}}
	c, rec := testutil.NewEchoContextWithHeaders(app.e, http.MethodPost, "/auth/login",
		strings.NewReader(form.Encode()),
		map[string]string{echo.HeaderContentType: echo.MIMEApplicationForm})

	require.NoError(t, app.h.Login(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, sessionCookie(t, rec))
}

func TestPasswordRules(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/password-rules", nil)
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body["rules"], 5)
}
