package common

// SessionTokenHeaderName carries the verification session token on submissions.
const SessionTokenHeaderName = "X-Session-Token"

// Session token length bounds accepted on every read path.
const (
	MinSessionTokenLength = 32
	MaxSessionTokenLength = 64
)

// SessionTokenBytes is the number of random bytes behind a generated token (hex encoded: 48 chars).
const SessionTokenBytes = 24
