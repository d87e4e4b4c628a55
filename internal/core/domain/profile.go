package domain

import "fmt"

// AuthenticationMethod selects how the game server authenticates users.
type AuthenticationMethod string

const (
	AuthNone     AuthenticationMethod = "none"
	AuthPassword AuthenticationMethod = "password"
	AuthSQL      AuthenticationMethod = "sql"
)

// ParseAuthenticationMethod converts a string to an AuthenticationMethod.
func ParseAuthenticationMethod(s string) (AuthenticationMethod, error) {
	switch m := AuthenticationMethod(s); m {
	case AuthNone, AuthPassword, AuthSQL:
		return m, nil
	}
	return "", Invalid("parse", fmt.Sprintf("authentication method must be one of none|password|sql, got %q", s))
}

// RoomMethod selects where the room list is read from.
type RoomMethod string

const (
	RoomsConfig RoomMethod = "config"
	RoomsSQL    RoomMethod = "sql"
)

// ParseRoomMethod converts a string to a RoomMethod.
func ParseRoomMethod(s string) (RoomMethod, error) {
	switch m := RoomMethod(s); m {
	case RoomsConfig, RoomsSQL:
		return m, nil
	}
	return "", Invalid("parse", fmt.Sprintf("rooms method must be one of config|sql, got %q", s))
}

// ConfigurationProfile is the game server configuration of one instance.
// It is copied into the instance at construction and never changed after.
type ConfigurationProfile struct {
	// Identity. Filled with the instance identifier on construction.
	ServerIdentifier string `json:"server_identifier"`

	// Session policy.
	RequireClientID       bool   `json:"require_client_id"`
	RequiredFeatures      string `json:"required_features"`
	IdleClientTimeout     int    `json:"idle_client_timeout"`
	MaxGameInactivityTime int    `json:"max_game_inactivity_time"`

	// Authentication policy.
	AuthenticationMethod AuthenticationMethod `json:"authentication_method"`
	CommonPassword       string               `json:"common_password"`

	// Registration policy.
	EnableRegistration     bool `json:"enable_registration"`
	RequireRegistration    bool `json:"require_registration"`
	RequireEmail           bool `json:"require_email"`
	RequireEmailActivation bool `json:"require_email_activation"`
	MaxAccountsPerEmail    int  `json:"max_accounts_per_email"`

	// Password reset policy.
	EnableForgotPassword          bool `json:"enable_forgot_password"`
	ForgotPasswordTokenLife       int  `json:"forgot_password_token_life"`
	EnableForgotPasswordChallenge bool `json:"enable_forgot_password_challenge"`

	// Username and password policy.
	PasswordMinLength      int    `json:"password_min_length"`
	UsernameMinLength      int    `json:"username_min_length"`
	UsernameMaxLength      int    `json:"username_max_length"`
	AllowLowercase         bool   `json:"allow_lowercase"`
	AllowUppercase         bool   `json:"allow_uppercase"`
	AllowNumerics          bool   `json:"allow_numerics"`
	AllowedPunctuation     string `json:"allowed_punctuation"`
	AllowPunctuationPrefix bool   `json:"allow_punctuation_prefix"`
	DisallowedWords        string `json:"disallowed_words"`

	// Room listing source.
	RoomsMethod RoomMethod `json:"rooms_method"`
}

// DefaultProfile returns the profile used when the caller sets nothing.
func DefaultProfile() ConfigurationProfile {
	return ConfigurationProfile{
		IdleClientTimeout:       3600,
		MaxGameInactivityTime:   120,
		AuthenticationMethod:    AuthSQL,
		CommonPassword:          "password",
		MaxAccountsPerEmail:     2,
		EnableForgotPassword:    true,
		ForgotPasswordTokenLife: 60,
		PasswordMinLength:       6,
		UsernameMinLength:       6,
		UsernameMaxLength:       12,
		AllowLowercase:          true,
		AllowUppercase:          true,
		AllowNumerics:           true,
		AllowedPunctuation:      "_.-",
		RoomsMethod:             RoomsConfig,
	}
}
