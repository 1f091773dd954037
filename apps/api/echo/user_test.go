package echoapi_test

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/darslik/apps/api/echo"
	"github.com/trezcool/darslik/core/user"
	"github.com/trezcool/darslik/services/email"
	testutil "github.com/trezcool/darslik/tests"
)

const strongPwd = "Kettle#Drum42"

func Test_userApi_login(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@test.uz", strongPwd, []string{user.RoleLearner}, true)
	testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@test.uz", strongPwd, []string{user.RoleLearner}, false)

	failed := marshallObj(t, httpErr{Error: "authentication failed"})
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", wantCode: http.StatusBadRequest, wantData: failed,
			body: marshallObj(t, echoapi.LoginRequest{Username: "lol", Password: strongPwd}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest, wantData: failed,
			body: marshallObj(t, echoapi.LoginRequest{Username: "hero", Password: "nope"}),
		},
		{
			name: "deactivated", wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
			body: marshallObj(t, echoapi.LoginRequest{Username: "ndog", Password: strongPwd}),
		},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/login"
	}
	app.run(t, tests)

	for _, uname := range []string{"hero", "HERO@test.uz "} {
		t.Run("logged in as "+uname, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", marshallObj(t, echoapi.LoginRequest{Username: uname, Password: strongPwd}))
			app.srv.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp echoapi.LoginResponse
			unmarshall(t, rec, &resp)
			assert.NotEmpty(t, resp.Token)
		})
	}
}

func Test_userApi_register(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@test.uz", "", nil, true)

	t.Run("invalid", func(t *testing.T) {
		body := marshallObj(t, user.NewUser{Name: "Ali", Username: "hero", Password: "lol", PasswordConfirm: "lol"})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("learner created, roles ignored", func(t *testing.T) {
		body := marshallObj(t, user.NewUser{
			Name:            "Ali Valiyev",
			Username:        "alivali",
			Email:           "ali@test.uz",
			Password:        strongPwd,
			PasswordConfirm: strongPwd,
			Roles:           []string{user.RoleStaffOwner},
		})
		req, rec := newRequest(http.MethodPost, "/v1/users/register", body)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp echoapi.RegisterResponse
		unmarshall(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "alivali", resp.User.Username)
		assert.Equal(t, []string{user.RoleLearner}, resp.User.Roles)

		// the token is usable right away
		req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
		app.srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_userApi_me(t *testing.T) {
	app := newTestApp(t)
	hero, heroToken := app.learner(t, "hero")

	app.run(t, []httpTest{
		{name: "auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "me", path: "/v1/users/me", token: heroToken, wantData: marshallObj(t, hero)},
	})
}

func Test_userApi_query(t *testing.T) {
	app := newTestApp(t)
	_, staffToken := app.staff(t)
	_, heroToken := app.learner(t, "hero")

	app.run(t, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "staff required", path: "/v1/users", token: heroToken, wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden)},
		{name: "roles", path: "/v1/users/roles", token: staffToken, wantData: marshallObj(t, user.Roles)},
	})

	t.Run("search", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users?search=her", staffToken)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var users []user.User
		unmarshall(t, rec, &users)
		require.Len(t, users, 1)
		assert.Equal(t, "hero", users[0].Username)
	})
}

func Test_userApi_detail(t *testing.T) {
	app := newTestApp(t)
	staff, staffToken := app.staff(t)
	hero, heroToken := app.learner(t, "hero")
	zero, _ := app.learner(t, "zero")
	owner := testutil.CreateUser(t, app.usrRepo, "Owner", "owner", "owner@test.uz", "", []string{user.RoleStaffOwner}, true)

	app.run(t, []httpTest{
		{name: "own profile", path: "/v1/users/" + hero.ID, token: heroToken, wantData: marshallObj(t, hero)},
		{name: "other profile hidden", path: "/v1/users/" + zero.ID, token: heroToken, wantCode: http.StatusNotFound, wantData: marshallObj(t, errNotFound)},
		{name: "staff sees all", path: "/v1/users/" + zero.ID, token: staffToken, wantData: marshallObj(t, zero)},
		{
			name: "learner cannot change roles", method: http.MethodPut, path: "/v1/users/" + hero.ID, token: heroToken,
			body: []byte(`{"roles": ["staff:"]}`), wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden),
		},
		{
			name: "learner cannot delete", method: http.MethodDelete, path: "/v1/users/" + zero.ID, token: heroToken,
			wantCode: http.StatusNotFound,
		},
		{
			name: "cannot delete self", method: http.MethodDelete, path: "/v1/users/" + staff.ID, token: staffToken,
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden),
		},
		{
			name: "cannot delete higher role", method: http.MethodDelete, path: "/v1/users/" + owner.ID, token: staffToken,
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden),
		},
		{name: "deleted", method: http.MethodDelete, path: "/v1/users/" + zero.ID, token: staffToken, wantCode: http.StatusNoContent},
	})

	_, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: zero.ID})
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func Test_userApi_refreshToken(t *testing.T) {
	app := newTestApp(t)
	naughty := testutil.CreateUser(t, app.usrRepo, "N Dog", "ndog", "ndog@test.uz", "", []string{user.RoleLearner}, false)
	hero, heroToken := app.learner(t, "hero")

	now := time.Now()
	unrefreshableClaims := tokens.Claims(hero, now.Add(-2*conf.Server.JWTRefreshExpirationDelta).Unix())
	unrefreshableClaims.StandardClaims = jwt.StandardClaims{
		Subject:   hero.ID,
		ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
		IssuedAt:  now.Unix(),
	}
	unrefreshableToken, err := tokens.Sign(unrefreshableClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{name: "inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "account deactivated"})},
		{name: "refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: "refresh has expired"})},
	}
	for i := range tests {
		tests[i].method = http.MethodPost
		tests[i].path = "/v1/users/token-refresh"
	}
	app.run(t, tests)

	t.Run("token refreshed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", heroToken)
		app.srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		// cannot guess the new token.. just check that it's not empty
		var resp echoapi.LoginResponse
		unmarshall(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})
}

var resetURLRegex = regexp.MustCompile(`/password-reset-confirm\?\S+`)

func Test_userApi_passwordReset(t *testing.T) {
	app := newTestApp(t)
	hero := testutil.CreateUser(t, app.usrRepo, "Hero", "hero", "hero@test.uz", strongPwd, []string{user.RoleLearner}, true)

	successData := marshallObj(t, echoapi.SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
	app.run(t, []httpTest{
		{
			name: "invalid email", method: http.MethodPost, path: "/v1/users/password-reset", wantCode: http.StatusBadRequest,
			body: marshallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/v1/users/password-reset",
			body: marshallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.uz"}), wantData: successData,
		},
	})
	_, sent := emailsvc.LastSentMessage()
	assert.False(t, sent, "no email for unknown addresses")

	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marshallObj(t, echoapi.PasswordResetRequest{Email: hero.Email}))
	app.srv.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantData: successData}, rec)

	msg, sent := emailsvc.LastSentMessage()
	require.True(t, sent)
	assert.Equal(t, hero.Email, msg.To[0].Address)
	assert.Contains(t, msg.TextContent, hero.Name)
	assert.Contains(t, msg.HTMLContent, hero.Name)

	link := resetURLRegex.FindString(msg.TextContent)
	require.NotEmpty(t, link, "reset link not found in %q", msg.TextContent)
	u, err := url.Parse(strings.TrimSpace(link))
	require.NoError(t, err)
	uid, token := u.Query().Get("uid"), u.Query().Get("token")

	const newPwd = "Pelican&Moon77"
	app.run(t, []httpTest{
		{
			name: "weak password", method: http.MethodPost, path: "/v1/users/password-reset-confirm", wantCode: http.StatusBadRequest,
			body:     marshallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: "12345678", PasswordConfirm: "12345678"}),
			wantData: marshallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		},
		{
			name: "invalid token", method: http.MethodPost, path: "/v1/users/password-reset-confirm", wantCode: http.StatusBadRequest,
			body:     marshallObj(t, user.ResetUserPassword{Token: "abc-def", UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marshallObj(t, map[string]string{"token": "invalid or expired token"}),
		},
		{
			name: "password reset", method: http.MethodPost, path: "/v1/users/password-reset-confirm",
			body:     marshallObj(t, user.ResetUserPassword{Token: token, UID: uid, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marshallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
	})

	refreshed, err := app.usrRepo.GetUser(context.Background(), user.GetFilter{ID: hero.ID})
	require.NoError(t, err)
	assert.NoError(t, refreshed.CheckPassword(newPwd))
}
