package models

// TwoFactorTier is the confidence with which a 2FA number was extracted
type TwoFactorTier string

const (
	TwoFactorTierDirect        TwoFactorTier = "direct"
	TwoFactorTierStrongSame    TwoFactorTier = "strong-same-line"
	TwoFactorTierStrongFollows TwoFactorTier = "strong-following-line"
	TwoFactorTierWeak          TwoFactorTier = "weak-context"
)

// TwoFactorChallenge is an ephemeral number-matching code. Never persisted.
type TwoFactorChallenge struct {
	Code     string        `json:"code"`
	Tier     TwoFactorTier `json:"tier"`
	Evidence string        `json:"evidence"` // Text line the code was taken from
}
