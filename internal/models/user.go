package models

// User is an authenticated account: envelope owners and recipients whose
// derived access auth is ACCOUNT. Recipients without accounts act solely
// through their signing token.
type User struct {
	BaseModel

	Email    string `gorm:"not null;uniqueIndex" json:"email"`
	Name     string `json:"name"`
	Password string `gorm:"not null" json:"-"`

	// TwoFactorSecret backs TOTP verification for TWO_FACTOR action auth.
	TwoFactorSecret string `json:"-"`

	IsActive bool `gorm:"not null" json:"is_active"`
}
