package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	// ErrOrderViolation signals a sequential-signing recipient acting before
	// its predecessors completed.
	ErrOrderViolation = errors.New("signing: recipient is not yet actionable in the signing order")

	// ErrEnvelopeNotDraft signals structural mutations attempted after distribution.
	ErrEnvelopeNotDraft = errors.New("envelope: structure may only change while in draft")

	// ErrAlreadySealed signals a reseal request against an envelope whose
	// artifacts are already in place. Callers treat it as success.
	ErrAlreadySealed = errors.New("sealing: envelope already sealed")
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate") ||
		strings.Contains(lower, "constraint")
}
