package auth

import (
	"github.com/pquerna/otp/totp"
)

// GenerateTwoFactorSecret provisions a TOTP secret for a user account.
func GenerateTwoFactorSecret(issuer, accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// VerifyTwoFactorCode checks a six-digit TOTP code against the stored secret.
func VerifyTwoFactorCode(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}
	return totp.Validate(code, secret)
}
