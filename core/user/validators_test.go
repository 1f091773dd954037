package user_test

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darslik/core/user"
	logsvc "github.com/trezcool/darslik/services/logger"
	testutil "github.com/trezcool/darslik/tests"
)

func TestPasswordPolicy(t *testing.T) {
	validate, _ := testutil.Validator()
	user.LoadCommonPasswords(logsvc.NewDiscardLogger())

	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "ok", pwd: "Tangerine-92!"},
		{name: "too short", pwd: "Ab1!", wantTag: "pwdminlen"},
		{name: "whitespace", pwd: "Tangerine 92!", wantTag: "pwdnospace"},
		{name: "all numeric", pwd: "1234567890", wantTag: "pwdnotallnum"},
		{name: "no special char", pwd: "Tangerine92", wantTag: "pwdcplx"},
		{name: "no upper case", pwd: "tangerine-92!", wantTag: "pwdcplx"},
		{name: "common", pwd: "P@ssw0rd", wantTag: "pwdnocommon"},
		{name: "common, case insensitive", pwd: "Qwerty123!", wantTag: "pwdnocommon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(user.ResetUserPassword{Token: "t", UID: "u", Password: tt.pwd, PasswordConfirm: tt.pwd})
			if tt.wantTag == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			verrs, ok := err.(validator.ValidationErrors)
			require.True(t, ok)
			require.Len(t, verrs, 1)
			assert.Equal(t, "password", verrs[0].Field())
			assert.Equal(t, tt.wantTag, verrs[0].Tag())
		})
	}

	t.Run("similar to user attributes", func(t *testing.T) {
		err := validate.Struct(user.NewUser{
			Name:            "Amani Juma",
			Username:        "amanijuma",
			Password:        "Amanijuma1!",
			PasswordConfirm: "Amanijuma1!",
		})
		require.Error(t, err)
		verrs := err.(validator.ValidationErrors)
		assert.Equal(t, "pwdtoosim", verrs[0].Tag())
	})
}
