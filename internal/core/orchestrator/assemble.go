package orchestrator

import (
	"strconv"

	"github.com/cockatrice/testatrice/internal/core/domain"
)

// Assemble flattens a profile into the parameters consumed by the renderer.
// Booleans become "true"/"false" and enumerations their canonical names.
func Assemble(p domain.ConfigurationProfile) map[string]string {
	b := strconv.FormatBool
	i := strconv.Itoa
	return map[string]string{
		"server_identifier": p.ServerIdentifier,

		"require_client_id":        b(p.RequireClientID),
		"required_features":        p.RequiredFeatures,
		"idle_client_timeout":      i(p.IdleClientTimeout),
		"max_game_inactivity_time": i(p.MaxGameInactivityTime),

		"authentication_method": string(p.AuthenticationMethod),
		"common_password":       p.CommonPassword,

		"enable_registration":      b(p.EnableRegistration),
		"require_registration":     b(p.RequireRegistration),
		"require_email":            b(p.RequireEmail),
		"require_email_activation": b(p.RequireEmailActivation),
		"max_accounts_per_email":   i(p.MaxAccountsPerEmail),

		"enable_forgot_password":           b(p.EnableForgotPassword),
		"forgot_password_token_life":       i(p.ForgotPasswordTokenLife),
		"enable_forgot_password_challenge": b(p.EnableForgotPasswordChallenge),

		"password_min_length":      i(p.PasswordMinLength),
		"username_min_length":      i(p.UsernameMinLength),
		"username_max_length":      i(p.UsernameMaxLength),
		"allow_lowercase":          b(p.AllowLowercase),
		"allow_uppercase":          b(p.AllowUppercase),
		"allow_numerics":           b(p.AllowNumerics),
		"allowed_punctuation":      p.AllowedPunctuation,
		"allow_punctuation_prefix": b(p.AllowPunctuationPrefix),
		"disallowed_words":         p.DisallowedWords,

		"rooms_method": string(p.RoomsMethod),
	}
}
