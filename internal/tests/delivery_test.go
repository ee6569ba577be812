// internal/tests/delivery_test.go
package tests

import (
	"net/http"
	"strings"
	"time"

	"github.com/vistahub/license-gate/internal/services"
)

func (suite *ServerTestSuite) TestDeliveryActivatesAndBinds() {
	suite.createProject("aim", "https://cdn.example.com/aim.lua")
	key := suite.issue("aim", 7, "")
	now := time.Now()

	w := suite.deliver(key, "hwid-1", now)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("no-store", w.Header().Get("Cache-Control"))
	suite.NotContains(w.Body.String(), "cdn.example.com")

	payload, ok := services.NewDeliveryEncoder().Decode(w.Body.String())
	suite.True(ok)
	suite.Equal("https://cdn.example.com/aim.lua", payload)

	l := suite.license(key)
	suite.Equal("active", l["status"])
	suite.Equal("hwid-1", l["bound_device_id"])

	// Same device again with a fresh timestamp.
	w = suite.deliver(key, "hwid-1", now.Add(-time.Second))
	suite.Equal(http.StatusOK, w.Code)

	// Another device is denied.
	w = suite.deliver(key, "hwid-2", now.Add(-2*time.Second))
	suite.Equal(http.StatusForbidden, w.Code)
	suite.True(strings.HasPrefix(w.Body.String(), "-- DENIED: device-mismatch: "), w.Body.String())
}

func (suite *ServerTestSuite) TestDeliveryRejectsReplay() {
	suite.createProject("aim", "https://cdn.example.com/aim.lua")
	key := suite.issue("aim", 7, "")
	path := deliveryPath(key, "hwid-1", time.Now())

	w := suite.do(http.MethodGet, path, nil, "")
	suite.Equal(http.StatusOK, w.Code)

	w = suite.do(http.MethodGet, path, nil, "")
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.True(strings.HasPrefix(w.Body.String(), "-- REJECTED: request-replayed: "), w.Body.String())
}

func (suite *ServerTestSuite) TestDeliveryRejectsBadRequests() {
	suite.createProject("aim", "https://cdn.example.com/aim.lua")
	key := suite.issue("aim", 7, "")
	now := time.Now()

	w := suite.do(http.MethodGet, "/api/verify?key="+key, nil, "")
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Contains(w.Body.String(), "-- REJECTED: missing-parameters: ")

	tampered := strings.Replace(deliveryPath(key, "hwid-1", now), "deviceId=hwid-1", "deviceId=hwid-9", 1)
	w = suite.do(http.MethodGet, tampered, nil, "")
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Contains(w.Body.String(), "signature-mismatch")

	w = suite.deliver(key, "hwid-1", now.Add(-5*time.Minute))
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Contains(w.Body.String(), "request-expired")

	// Nothing above may activate the license.
	suite.Equal("waiting", suite.license(key)["status"])
}

func (suite *ServerTestSuite) TestDeliveryUnknownKeyAndBan() {
	suite.createProject("aim", "https://cdn.example.com/aim.lua")
	now := time.Now()

	w := suite.deliver("VISTA-NOPE-NOPE-NOPE", "hwid-1", now)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Contains(w.Body.String(), "-- DENIED: not-found: ")

	key := suite.issue("aim", 7, "")
	w = suite.do(http.MethodPut, "/v1/admin/licenses/"+key+"/ban", nil, suite.token)
	suite.Require().Equal(http.StatusOK, w.Code)

	w = suite.deliver(key, "hwid-1", now)
	suite.Equal(http.StatusForbidden, w.Code)
	suite.Contains(w.Body.String(), "-- DENIED: banned: ")
}

func (suite *ServerTestSuite) TestDeliveryMessagesFollowAcceptLanguage() {
	w := suite.do(http.MethodGet, "/api/verify", nil, "")
	suite.Contains(w.Body.String(), "Required parameters are missing")

	req := deliveryRequest("/api/verify")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9")
	w = suite.serve(req)
	suite.Contains(w.Body.String(), "缺少必要參數")
}

func (suite *ServerTestSuite) TestVerifyJSON() {
	suite.createProject("aim", "https://cdn.example.com/aim.lua")
	key := suite.issue("aim", 30, "")
	now := time.Now()

	body := signedBody(key, "hwid-1", now)
	w := suite.do(http.MethodPost, "/verify", body, "")
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	response := suite.decode(w)
	suite.Equal(true, response["granted"])
	suite.NotEmpty(response["expiresAt"])

	w = suite.do(http.MethodPost, "/verify", signedBody(key, "hwid-2", now), "")
	suite.Equal(http.StatusForbidden, w.Code)
	response = suite.decode(w)
	suite.Equal(false, response["granted"])
	suite.Equal("device-mismatch", response["reason"])

	w = suite.do(http.MethodPost, "/verify", map[string]interface{}{"key": key, "deviceId": "hwid-1", "timestamp": "later"}, "")
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("malformed-parameters", suite.decode(w)["reason"])
}

func (suite *ServerTestSuite) TestAccessLogsRecordDecisions() {
	suite.createProject("aim", "https://cdn.example.com/aim.lua")
	key := suite.issue("aim", 7, "")
	now := time.Now()

	suite.Equal(http.StatusOK, suite.deliver(key, "hwid-1", now).Code)
	suite.Equal(http.StatusForbidden, suite.deliver(key, "hwid-2", now).Code)
	suite.Equal(http.StatusUnauthorized, suite.do(http.MethodGet, strings.Replace(deliveryPath(key, "hwid-3", now), "signature=", "signature=00", 1), nil, "").Code)

	// Drain the asynchronous recorder before reading the log.
	suite.rt.Close()

	w := suite.do(http.MethodGet, "/v1/admin/licenses/"+key+"/access-logs", nil, suite.token)
	suite.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	suite.Equal("2", w.Header().Get("X-Total-Count"))

	entries := suite.decode(w)["data"].([]interface{})
	outcomes := map[string]bool{}
	for _, e := range entries {
		entry := e.(map[string]interface{})
		reason, _ := entry["reason"].(string)
		outcomes[entry["outcome"].(string)+":"+reason] = true
	}
	suite.True(outcomes["granted:"])
	suite.True(outcomes["refused:device-mismatch"])
}

func (suite *ServerTestSuite) TestPayloadFromS3RequiresCredentials() {
	suite.createProject("esp", "s3://payload-bucket/esp.lua")
	key := suite.issue("esp", 7, "")

	w := suite.deliver(key, "hwid-1", time.Now())
	suite.Equal(http.StatusServiceUnavailable, w.Code)
	suite.Contains(w.Body.String(), "-- RETRY: unavailable: ")
}

func (suite *ServerTestSuite) TestHealthAndMetrics() {
	w := suite.do(http.MethodGet, "/health", nil, "")
	suite.Equal(http.StatusOK, w.Code)

	suite.deliver("VISTA-NOPE-NOPE-NOPE", "hwid-1", time.Now())

	w = suite.do(http.MethodGet, "/metrics", nil, "")
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), "license_verification_decisions_total")
}
