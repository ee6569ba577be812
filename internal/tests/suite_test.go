// internal/tests/suite_test.go
package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/vistahub/license-gate/internal/config"
	"github.com/vistahub/license-gate/internal/i18n"
	"github.com/vistahub/license-gate/internal/router"
	"github.com/vistahub/license-gate/internal/store"
	"github.com/vistahub/license-gate/internal/testutil"
	"github.com/vistahub/license-gate/internal/utils"
)

const (
	testSigningSecret = "integration-signing-secret"
	testAdminPassword = "integration-password"
)

// ServerTestSuite drives the full router against an in-memory database.
type ServerTestSuite struct {
	suite.Suite
	cfg   *config.Config
	rt    *router.Router
	token string
}

func (suite *ServerTestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	suite.Require().NoError(i18n.Initialize())
}

func (suite *ServerTestSuite) SetupTest() {
	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	suite.Require().NoError(err)

	suite.cfg = &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{PublicBaseURL: "https://gate.example", CORSOrigins: []string{"*"}},
		JWT:         config.JWTConfig{SecretKey: "integration-jwt-secret", AccessTokenTTL: 1, Issuer: "license-gate"},
		Admin:       config.AdminConfig{Username: "admin", PasswordHash: string(hash)},
		Signature:   config.SignatureConfig{Secret: testSigningSecret, ReplayWindow: time.Minute},
		Nonce:       config.NonceConfig{Backend: config.NonceBackendDatabase, PruneInterval: time.Minute},
		Delivery: config.DeliveryConfig{
			LicenseKeyPrefix: "VISTA",
			PayloadURLTTL:    time.Minute,
			StoreTimeout:     2 * time.Second,
			RecorderBuffer:   64,
		},
		RateLimit: config.RateLimitConfig{PerMinute: 600, Burst: 100},
	}
	suite.Require().NoError(suite.cfg.Validate())

	db := testutil.NewDB(suite.T())
	suite.rt, err = router.Initialize(db, suite.cfg, store.NewDatabaseNonceStore(db))
	suite.Require().NoError(err)

	suite.token = suite.login()
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.rt.Close()
}

func (suite *ServerTestSuite) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.rt.Engine.ServeHTTP(w, req)
	return w
}

func (suite *ServerTestSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func (suite *ServerTestSuite) login() string {
	w := suite.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"username": "admin",
		"password": testAdminPassword,
	}, "")
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	data := suite.decode(w)["data"].(map[string]interface{})
	return data["token"].(string)
}

func (suite *ServerTestSuite) createProject(name, payloadRef string) {
	w := suite.do(http.MethodPost, "/v1/admin/projects", map[string]string{
		"name":        name,
		"payload_ref": payloadRef,
	}, suite.token)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
}

func (suite *ServerTestSuite) issue(project string, days int, owner string) string {
	body := map[string]interface{}{"project": project, "duration_days": days}
	if owner != "" {
		body["owner_identity"] = owner
	}
	w := suite.do(http.MethodPost, "/v1/admin/licenses", body, suite.token)
	suite.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	data := suite.decode(w)["data"].(map[string]interface{})
	return data["key"].(string)
}

func deliveryPath(key, device string, ts time.Time) string {
	unix := ts.Unix()
	q := url.Values{}
	q.Set("key", key)
	q.Set("deviceId", device)
	q.Set("timestamp", strconv.FormatInt(unix, 10))
	q.Set("signature", utils.SignRequest([]byte(testSigningSecret), key, device, unix))
	return "/api/verify?" + q.Encode()
}

func (suite *ServerTestSuite) deliver(key, device string, ts time.Time) *httptest.ResponseRecorder {
	return suite.do(http.MethodGet, deliveryPath(key, device, ts), nil, "")
}

func (suite *ServerTestSuite) license(key string) map[string]interface{} {
	w := suite.do(http.MethodGet, fmt.Sprintf("/v1/admin/licenses/%s", key), nil, suite.token)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	return suite.decode(w)["data"].(map[string]interface{})["license"].(map[string]interface{})
}

func deliveryRequest(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func (suite *ServerTestSuite) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	suite.rt.Engine.ServeHTTP(w, req)
	return w
}

func signedBody(key, device string, ts time.Time) map[string]interface{} {
	unix := ts.Unix()
	return map[string]interface{}{
		"key":       key,
		"deviceId":  device,
		"timestamp": unix,
		"signature": utils.SignRequest([]byte(testSigningSecret), key, device, unix),
	}
}
