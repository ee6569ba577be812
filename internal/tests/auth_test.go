// internal/tests/auth_test.go
package tests

import (
	"net/http"
	"time"

	"github.com/vistahub/license-gate/internal/utils"
)

func (suite *ServerTestSuite) TestLoginRejectsWrongPassword() {
	w := suite.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"username": "admin",
		"password": "not-the-password",
	}, "")
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal(false, suite.decode(w)["success"])
}

func (suite *ServerTestSuite) TestLoginValidation() {
	w := suite.do(http.MethodPost, "/v1/auth/login", map[string]string{"username": "admin"}, "")
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *ServerTestSuite) TestAdminRoutesRequireToken() {
	w := suite.do(http.MethodGet, "/v1/admin/licenses", nil, "")
	suite.Equal(http.StatusUnauthorized, w.Code)

	foreign, err := utils.NewTokenManager("someone-elses-secret", "license-gate", time.Hour).Generate("admin", utils.RoleAdmin)
	suite.Require().NoError(err)
	w = suite.do(http.MethodGet, "/v1/admin/licenses", nil, foreign)
	suite.Equal(http.StatusUnauthorized, w.Code)

	w = suite.do(http.MethodGet, "/v1/admin/licenses", nil, suite.token)
	suite.Equal(http.StatusOK, w.Code)
}
