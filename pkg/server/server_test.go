package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"coffrefort/pkg/auth"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/models"
	"coffrefort/pkg/objectstore/disk"
	"coffrefort/pkg/quota"
)

const (
	testSecret   = "test-secret"
	testPassword = "correct-horse"
	testBoundary = "----WebKitFormBoundary7MA4YWxkTrZu0gW"
)

// apiSuite runs a full server on a temporary SQLite catalog and disk store.
type apiSuite struct {
	suite.Suite
	tempDir string
	ctx     context.Context
	catalog *catalog.Store
	store   *disk.Store
	issuer  *auth.Issuer
	server  *Server
	options Options
}

func (s *apiSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "server-test-*")
	s.Require().NoError(err)
	s.ctx = context.Background()

	s.catalog, err = catalog.Open(s.ctx, catalog.DriverSQLite, filepath.Join(s.tempDir, "vault.db"))
	s.Require().NoError(err)

	s.store = disk.New(filepath.Join(s.tempDir, "uploads"))
	s.issuer = auth.NewIssuer(auth.IssuerOptions{Secret: testSecret})
	s.options = Options{
		Catalog:       s.catalog,
		Store:         s.store,
		Issuer:        s.issuer,
		Ledger:        quota.NewLedger(s.catalog, quota.ScopeGlobal),
		Version:       "test-v1.0.0",
		Backend:       "disk",
		WebDir:        s.tempDir,
		DefaultQuota:  1 << 20,
		AuthRateLimit: 1000,
		AuthRateBurst: 1000,
	}
	s.server = New(s.options)
}

func (s *apiSuite) TearDownTest() {
	if s.catalog != nil {
		s.catalog.Close()
	}
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

func (s *apiSuite) do(method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.server.ServeHTTP(rec, req)
	return rec
}

func (s *apiSuite) doJSON(method, path string, payload interface{}, token string) *httptest.ResponseRecorder {
	if payload == nil {
		return s.do(method, path, nil, "", token)
	}
	if raw, ok := payload.(string); ok {
		return s.do(method, path, strings.NewReader(raw), "application/json", token)
	}

	data, err := json.Marshal(payload)
	s.Require().NoError(err)
	return s.do(method, path, bytes.NewReader(data), "application/json", token)
}

func (s *apiSuite) decode(rec *httptest.ResponseRecorder, target interface{}) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), target), rec.Body.String())
}

func (s *apiSuite) errorOf(rec *httptest.ResponseRecorder) string {
	var body map[string]interface{}
	s.decode(rec, &body)
	message, _ := body["error"].(string)
	return message
}

func (s *apiSuite) createUser(email string, quotaTotal int64, isAdmin bool) (*models.User, string) {
	hash, err := auth.HashPassword(testPassword)
	s.Require().NoError(err)

	user, err := s.catalog.CreateUser(s.ctx, email, hash, quotaTotal, isAdmin)
	s.Require().NoError(err)

	token, err := s.issuer.Issue(user)
	s.Require().NoError(err)
	return user, token
}

// multipartBody builds a form with one file part and optional text fields.
func multipartBody(field, filename, contentType string, content []byte, fields map[string]string) *bytes.Buffer {
	body := &bytes.Buffer{}
	for name, value := range fields {
		body.WriteString("--" + testBoundary + "\r\n")
		body.WriteString(fmt.Sprintf("Content-Disposition: form-data; name=%q\r\n\r\n", name))
		body.WriteString(value + "\r\n")
	}
	body.WriteString("--" + testBoundary + "\r\n")
	body.WriteString(fmt.Sprintf("Content-Disposition: form-data; name=%q; filename=%q\r\n", field, filename))
	body.WriteString("Content-Type: " + contentType + "\r\n\r\n")
	body.Write(content)
	body.WriteString("\r\n--" + testBoundary + "--\r\n")
	return body
}

func (s *apiSuite) upload(token, filename, contentType string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	body := multipartBody("file", filename, contentType, content, fields)
	return s.do(http.MethodPost, "/files", body, "multipart/form-data; boundary="+testBoundary, token)
}

func (s *apiSuite) uploadOK(token, filename string, content []byte) *models.UploadResult {
	rec := s.upload(token, filename, "application/pdf", content, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var result models.UploadResult
	s.decode(rec, &result)
	return &result
}

// ServerTestSuite covers accounts, authentication and the service routes.
type ServerTestSuite struct {
	apiSuite
}

func (s *ServerTestSuite) TestHealth() {
	rec := s.doJSON(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, rec.Code)

	var info HealthInfo
	s.decode(rec, &info)
	s.Equal("ok", info.Status)
	s.Equal("ok", info.Database)
	s.Equal("test-v1.0.0", info.Version)
	s.Equal("disk", info.StorageBackend)
	s.Equal("0m", info.Uptime)
}

func (s *ServerTestSuite) TestHealthDatabaseDown() {
	s.Require().NoError(s.catalog.Close())

	rec := s.doJSON(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusServiceUnavailable, rec.Code)

	var info HealthInfo
	s.decode(rec, &info)
	s.Equal("unavailable", info.Status)
	s.Equal("error", info.Database)
}

func (s *ServerTestSuite) TestFormatUptime() {
	s.Equal("0m", formatUptime(59))
	s.Equal("2h 5m", formatUptime(2*3600+5*60))
	s.Equal("1d 0h 1m", formatUptime(24*3600+60))
}

func (s *ServerTestSuite) TestRegisterAndLogin() {
	rec := s.doJSON(http.MethodPost, "/auth/register", map[string]interface{}{
		"email":    "alice@example.com",
		"password": testPassword,
	}, "")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]interface{}
	s.decode(rec, &created)
	s.Equal("User created successfully", created["message"])
	s.Equal("alice@example.com", created["email"])
	s.NotZero(created["id"])

	user, err := s.catalog.FindUserByEmail(s.ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Equal(int64(1<<20), user.QuotaTotal)
	s.False(user.IsAdmin)

	rec = s.doJSON(http.MethodPost, "/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": testPassword,
	}, "")
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var login map[string]interface{}
	s.decode(rec, &login)
	token, _ := login["jwt"].(string)
	s.NotEmpty(token)
	s.Equal("Bearer", login["token_type"])
	s.Equal(float64(3600), login["expires_in"])

	claims, err := s.issuer.Parse(token)
	s.Require().NoError(err)
	s.Equal("alice@example.com", claims.Email)

	rec = s.doJSON(http.MethodGet, "/files", nil, token)
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())
}

func (s *ServerTestSuite) TestRegisterExplicitQuota() {
	rec := s.doJSON(http.MethodPost, "/auth/register", map[string]interface{}{
		"email":       "quota@example.com",
		"password":    testPassword,
		"quota_total": 0,
	}, "")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	user, err := s.catalog.FindUserByEmail(s.ctx, "quota@example.com")
	s.Require().NoError(err)
	s.Zero(user.QuotaTotal)
}

func (s *ServerTestSuite) TestRegisterValidation() {
	testCases := []struct {
		name    string
		payload interface{}
		message string
	}{
		{"missing email", map[string]string{"password": testPassword}, "Email and password are required"},
		{"missing password", map[string]string{"email": "a@example.com"}, "Email and password are required"},
		{"bad email", map[string]string{"email": "not-an-email", "password": testPassword}, "Invalid email format"},
		{"short password", map[string]string{"email": "a@example.com", "password": "short"}, "Password must be at least 8 characters long"},
		{"negative quota", map[string]interface{}{"email": "a@example.com", "password": testPassword, "quota_total": -1}, "quota_total must be a non-negative integer"},
		{"password too long", map[string]string{"email": "a@example.com", "password": strings.Repeat("p", 80)}, "Password must be at most 72 bytes long"},
		{"malformed body", `{"email":`, "invalid request body"},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			rec := s.doJSON(http.MethodPost, "/auth/register", tc.payload, "")
			s.Equal(http.StatusBadRequest, rec.Code)
			s.Equal(tc.message, s.errorOf(rec))
		})
	}
}

func (s *ServerTestSuite) TestRegisterDuplicateEmail() {
	s.createUser("dup@example.com", 0, false)

	rec := s.doJSON(http.MethodPost, "/auth/register", map[string]string{
		"email":    "dup@example.com",
		"password": testPassword,
	}, "")
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal("Email already exists", s.errorOf(rec))
}

func (s *ServerTestSuite) TestRegisterAdminRules() {
	rec := s.doJSON(http.MethodPost, "/auth/register", map[string]interface{}{
		"email": "root@example.com", "password": testPassword, "is_admin": true,
	}, "")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.doJSON(http.MethodPost, "/auth/register", map[string]interface{}{
		"email": "mallory@example.com", "password": testPassword, "is_admin": true,
	}, "")
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("admin access required", s.errorOf(rec))

	_, userToken := s.createUser("user@example.com", 0, false)
	rec = s.doJSON(http.MethodPost, "/auth/register", map[string]interface{}{
		"email": "mallory@example.com", "password": testPassword, "is_admin": true,
	}, userToken)
	s.Equal(http.StatusForbidden, rec.Code)

	admin, err := s.catalog.FindUserByEmail(s.ctx, "root@example.com")
	s.Require().NoError(err)
	s.True(admin.IsAdmin)
	adminToken, err := s.issuer.Issue(admin)
	s.Require().NoError(err)

	rec = s.doJSON(http.MethodPost, "/auth/register", map[string]interface{}{
		"email": "second-admin@example.com", "password": testPassword, "is_admin": true,
	}, adminToken)
	s.Equal(http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *ServerTestSuite) TestConcurrentFirstAdminRegistrations() {
	const attempts = 5
	codes := make(chan int, attempts)

	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			rec := s.doJSON(http.MethodPost, "/auth/register", map[string]interface{}{
				"email": fmt.Sprintf("root-%d@example.com", index), "password": testPassword, "is_admin": true,
			}, "")
			codes <- rec.Code
		}(i)
	}
	wg.Wait()
	close(codes)

	created := 0
	for code := range codes {
		if code == http.StatusCreated {
			created++
			continue
		}
		s.Equal(http.StatusForbidden, code)
	}
	s.Equal(1, created)

	users, err := s.catalog.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 1)
	s.True(users[0].IsAdmin)
}

func (s *ServerTestSuite) TestLoginFailuresLookAlike() {
	s.createUser("bob@example.com", 0, false)

	wrongPassword := s.doJSON(http.MethodPost, "/auth/login", map[string]string{
		"email": "bob@example.com", "password": "wrong-password",
	}, "")
	unknownEmail := s.doJSON(http.MethodPost, "/auth/login", map[string]string{
		"email": "nobody@example.com", "password": testPassword,
	}, "")

	s.Equal(http.StatusUnauthorized, wrongPassword.Code)
	s.Equal(http.StatusUnauthorized, unknownEmail.Code)
	s.JSONEq(`{"error":"Invalid credentials"}`, wrongPassword.Body.String())
	s.Equal(wrongPassword.Body.String(), unknownEmail.Body.String())

	rec := s.doJSON(http.MethodPost, "/auth/login", map[string]string{"email": "bob@example.com"}, "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal("Email and password are required", s.errorOf(rec))
}

func (s *ServerTestSuite) TestAuthenticatedRoutesRejectBadTokens() {
	user, _ := s.createUser("carol@example.com", 0, false)

	foreign := auth.NewIssuer(auth.IssuerOptions{Secret: "another-secret"})
	foreignToken, err := foreign.Issue(user)
	s.Require().NoError(err)

	stale := auth.NewIssuer(auth.IssuerOptions{
		Secret: testSecret,
		Now:    func() time.Time { return time.Now().Add(-2 * time.Hour) },
	})
	expiredToken, err := stale.Issue(user)
	s.Require().NoError(err)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/files"},
		{http.MethodGet, "/filesPaginated"},
		{http.MethodGet, "/files/1"},
		{http.MethodGet, "/files/1/download"},
		{http.MethodDelete, "/files/1"},
		{http.MethodPost, "/files/1/shares"},
		{http.MethodGet, "/stats"},
		{http.MethodPut, "/quota"},
		{http.MethodGet, "/me/quota"},
		{http.MethodGet, "/me/activity"},
		{http.MethodGet, "/folders"},
		{http.MethodPost, "/folders"},
		{http.MethodDelete, "/folders/1"},
		{http.MethodGet, "/users"},
	}

	for _, route := range routes {
		rec := s.doJSON(route.method, route.path, nil, "")
		s.Equal(http.StatusUnauthorized, rec.Code, "%s %s without token", route.method, route.path)
		s.Equal("token missing", s.errorOf(rec))

		rec = s.doJSON(route.method, route.path, nil, foreignToken)
		s.Equal(http.StatusUnauthorized, rec.Code, "%s %s with foreign token", route.method, route.path)
		s.Equal("invalid token", s.errorOf(rec))

		rec = s.doJSON(route.method, route.path, nil, expiredToken)
		s.Equal(http.StatusUnauthorized, rec.Code, "%s %s with expired token", route.method, route.path)
		s.Equal("invalid token", s.errorOf(rec))
	}

	rec := s.upload(foreignToken, "doc.pdf", "application/pdf", []byte("%PDF-1.4"), nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("invalid token", s.errorOf(rec))

	rec = s.upload(expiredToken, "doc.pdf", "application/pdf", []byte("%PDF-1.4"), nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *ServerTestSuite) TestMissingSecret() {
	user, token := s.createUser("dave@example.com", 0, false)
	s.NotNil(user)

	options := s.options
	options.Issuer = auth.NewIssuer(auth.IssuerOptions{})
	s.server = New(options)

	rec := s.doJSON(http.MethodGet, "/files", nil, token)
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("jwt secret not configured", s.errorOf(rec))

	rec = s.doJSON(http.MethodPost, "/auth/login", map[string]string{
		"email": "dave@example.com", "password": testPassword,
	}, "")
	s.Equal(http.StatusInternalServerError, rec.Code)
}

func (s *ServerTestSuite) TestTokenForDeletedUser() {
	user, token := s.createUser("erin@example.com", 0, false)
	s.Require().NoError(s.catalog.DeleteUser(s.ctx, user.ID))

	rec := s.doJSON(http.MethodGet, "/me/quota", nil, token)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("user not found", s.errorOf(rec))
}

func (s *ServerTestSuite) TestAdminRoutes() {
	_, adminToken := s.createUser("admin@example.com", 0, true)
	user, userToken := s.createUser("frank@example.com", 0, false)

	rec := s.doJSON(http.MethodGet, "/users", nil, userToken)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Equal("admin access required", s.errorOf(rec))

	rec = s.doJSON(http.MethodGet, "/users", nil, adminToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	var users []map[string]interface{}
	s.decode(rec, &users)
	s.Len(users, 2)
	s.NotContains(rec.Body.String(), "password")

	rec = s.doJSON(http.MethodGet, fmt.Sprintf("/users/%d", user.ID), nil, adminToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	var fetched models.User
	s.decode(rec, &fetched)
	s.Equal("frank@example.com", fetched.Email)

	rec = s.doJSON(http.MethodGet, "/users/999", nil, adminToken)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal("User not found", s.errorOf(rec))

	rec = s.doJSON(http.MethodGet, "/users/abc", nil, adminToken)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.doJSON(http.MethodDelete, fmt.Sprintf("/users/%d", user.ID), nil, adminToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"message":"User deleted successfully"}`, rec.Body.String())

	rec = s.doJSON(http.MethodDelete, fmt.Sprintf("/users/%d", user.ID), nil, adminToken)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerTestSuite) TestMetricsEndpoint() {
	s.doJSON(http.MethodPost, "/auth/login", map[string]string{
		"email": "nobody@example.com", "password": testPassword,
	}, "")
	s.doJSON(http.MethodGet, "/files", nil, "")

	rec := s.doJSON(http.MethodGet, "/metrics", nil, "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `coffrefort_auth_failures_total{status="401"} 2`)
}

func (s *ServerTestSuite) TestUnknownRoute() {
	rec := s.doJSON(http.MethodGet, "/nope", nil, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.JSONEq(`{"error":"Not Found"}`, rec.Body.String())
}

func (s *ServerTestSuite) TestAuthRateLimit() {
	options := s.options
	options.AuthRateLimit = 0.001
	options.AuthRateBurst = 1
	s.server = New(options)

	payload := map[string]string{"email": "nobody@example.com", "password": testPassword}
	rec := s.doJSON(http.MethodPost, "/auth/login", payload, "")
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.doJSON(http.MethodPost, "/auth/login", payload, "")
	s.Equal(http.StatusTooManyRequests, rec.Code)
	s.Equal("rate limit exceeded", s.errorOf(rec))

	rec = s.doJSON(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *ServerTestSuite) TestShutdownWithoutStart() {
	s.NoError(s.server.Shutdown())
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
