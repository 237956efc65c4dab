package security

const (
	defaultMinPasswordLength = 6
	defaultMaxPasswordLength = 256
)

// PasswordPolicy describes the configurable password requirements.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	MinStrengthScore int
}

// DefaultPasswordValidator enforces the minimum length accepted at
// registration and reset, without a strength score.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPolicyValidator(PasswordPolicy{})
}

// NewPolicyValidator builds a validator for the policy, filling unset limits
// with defaults. The zxcvbn rule is only active for a positive score.
func NewPolicyValidator(policy PasswordPolicy) *PasswordValidator {
	if policy.MinLength <= 0 {
		policy.MinLength = defaultMinPasswordLength
	}
	if policy.MaxLength <= 0 {
		policy.MaxLength = defaultMaxPasswordLength
	}

	return NewPasswordValidator(
		MinLengthRule(policy.MinLength),
		MaxLengthRule(policy.MaxLength),
		RequirePasswordStrengthRule(policy.MinStrengthScore),
	)
}
