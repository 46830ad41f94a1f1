package core

// Status is the single source of truth for session state consumed by UI gating.
// Exactly one value holds at a time.
type Status string

const (
	StatusBootstrapping   Status = "bootstrapping"
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
	StatusRefreshing      Status = "refreshing"
	StatusError           Status = "error"
)

// AuthTokens is the token pair issued by the backend on a successful
// challenge/solution exchange or refresh. Expirations arrive as stringified
// timestamps: unix seconds, unix milliseconds or an ISO-8601 datetime.
type AuthTokens struct {
	Subject                string `json:"subject"`
	AccessTokenExpiration  string `json:"access_token_expiration"`
	RefreshTokenExpiration string `json:"refresh_token_expiration"`
}

// SessionSnapshot is the persisted unit written to the session store.
// A legacy persisted shape (bare AuthTokens, no wallet address) is still read
// as fallback and migrated on load.
type SessionSnapshot struct {
	Tokens        AuthTokens `json:"tokens"`
	WalletAddress string     `json:"wallet_address,omitempty"`
}

// WalletSession is the result of a successful connect handshake with the
// external wallet application. Held in memory only, never persisted.
type WalletSession struct {
	PublicKey     string   // wallet public key, base58
	Token         string   // session token issued by the wallet app
	DappPublicKey [32]byte // ephemeral public key used for this connection
	DappSecretKey [32]byte // ephemeral secret key, discarded with the session
	SharedSecret  [32]byte // precomputed box key for subsequent sign requests
}
