package auth

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestTwoFactorRoundTrip(t *testing.T) {
	secret, err := GenerateTwoFactorSecret("signer", "owner@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	require.True(t, VerifyTwoFactorCode(secret, code))
	require.False(t, VerifyTwoFactorCode(secret, "000000"))
}

func TestVerifyTwoFactorCodeEmptyInputs(t *testing.T) {
	require.False(t, VerifyTwoFactorCode("", "123456"))
	require.False(t, VerifyTwoFactorCode("SECRET", ""))
}
