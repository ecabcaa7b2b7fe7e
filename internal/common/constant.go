package common

const (
	// SessionIDQueryParam carries the session id on logout requests.
	SessionIDQueryParam = "sessionId"

	// VerificationCodeDigits is the fixed length of an email verification code.
	VerificationCodeDigits = 6

	// SessionKeySize is the size of a per-session symmetric key (256 bits).
	SessionKeySize = 32

	// RefreshTokenSize is the number of random bytes behind a refresh token.
	RefreshTokenSize = 32
)
