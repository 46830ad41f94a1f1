// Package backendtest is an in-process stand-in for the auth backend,
// implementing the RPC contract the session core consumes. It lets tests and
// the demo binary run the full challenge/solution/refresh/revoke flow with
// real signature verification and real token expirations.
package backendtest

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/layer-3/walletbridge/core"
)

const (
	sessionCookie = "wb_session"

	challengeTTL = 5 * time.Minute
)

type challengeRecord struct {
	wallet    string
	origin    string
	expiresAt time.Time
}

type sessionRecord struct {
	wallet        string
	refreshExpiry time.Time
}

// Backend is the fake auth backend. Zero value is not usable; construct with
// New.
type Backend struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	signKey *ecdsa.PrivateKey

	mu         sync.Mutex
	challenges map[string]challengeRecord
	sessions   map[string]sessionRecord
	accounts   map[string]*core.TradingAccount
	expFormat  int
}

// New creates a backend with default token lifetimes.
func New() *Backend {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}
	return &Backend{
		AccessTTL:  5 * time.Minute,
		RefreshTTL: 5 * 24 * time.Hour,
		signKey:    key,
		challenges: make(map[string]challengeRecord),
		sessions:   make(map[string]sessionRecord),
		accounts:   make(map[string]*core.TradingAccount),
	}
}

// Router returns a gin engine serving the RPC endpoint at "/".
func (b *Backend) Router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/", b.handleRPC)
	return router
}

// Account returns the provisioned account for a wallet, if any.
func (b *Backend) Account(wallet string) *core.TradingAccount {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accounts[wallet]
}

type rpcRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (b *Backend) handleRPC(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": -32700, "message": "parse error"}})
		return
	}

	var (
		result any
		err    error
	)
	switch req.Method {
	case "auth/challenge":
		result, err = b.challenge(req.Params)
	case "auth/solution":
		result, err = b.solution(c, req.Params)
	case "auth/refresh":
		result, err = b.refresh(c)
	case "auth/revoke":
		result, err = b.revoke(c)
	case "account/ensure":
		result, err = b.ensureAccount(c)
	default:
		err = fmt.Errorf("method not found: %s", req.Method)
	}

	if err != nil {
		c.JSON(http.StatusOK, gin.H{"id": req.ID, "error": gin.H{"code": 401, "message": err.Error()}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": req.ID, "result": result})
}

func (b *Backend) challenge(params []json.RawMessage) (string, error) {
	var origin, wallet string
	var scopes []string
	if err := decodeParams(params, &origin, &wallet, &scopes); err != nil {
		return "", err
	}
	if wallet == "" || len(scopes) == 0 {
		return "", fmt.Errorf("challenge requires a wallet address and scope list")
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	challenge := fmt.Sprintf("%s wants you to sign in with your wallet %s (scopes: %s, nonce: %s)",
		origin, wallet, strings.Join(scopes, ","), hex.EncodeToString(nonce))

	b.mu.Lock()
	b.challenges[challenge] = challengeRecord{
		wallet:    wallet,
		origin:    origin,
		expiresAt: time.Now().Add(challengeTTL),
	}
	b.mu.Unlock()
	return challenge, nil
}

func (b *Backend) solution(c *gin.Context, params []json.RawMessage) (*core.AuthTokens, error) {
	var challenge, solution string
	if err := decodeParams(params, &challenge, &solution); err != nil {
		return nil, err
	}

	b.mu.Lock()
	record, ok := b.challenges[challenge]
	delete(b.challenges, challenge)
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown challenge")
	}
	if time.Now().After(record.expiresAt) {
		return nil, fmt.Errorf("challenge expired")
	}

	if err := verifySolution(record.wallet, challenge, solution); err != nil {
		return nil, err
	}

	return b.openSession(c, record.wallet)
}

// verifySolution accepts hex secp256k1 personal-sign signatures for 0x
// addresses and base58 ed25519 signatures for external wallets.
func verifySolution(wallet, challenge, solution string) error {
	if strings.HasPrefix(wallet, "0x") {
		sig, err := hexutil.Decode(solution)
		if err != nil || len(sig) != 65 {
			return fmt.Errorf("malformed signature")
		}
		if sig[ethcrypto.RecoveryIDOffset] >= 27 {
			sig[ethcrypto.RecoveryIDOffset] -= 27
		}
		pub, err := ethcrypto.SigToPub(accounts.TextHash([]byte(challenge)), sig)
		if err != nil {
			return fmt.Errorf("signature recovery failed: %w", err)
		}
		if !strings.EqualFold(ethcrypto.PubkeyToAddress(*pub).Hex(), wallet) {
			return core.ErrWalletMismatch
		}
		return nil
	}

	pub, err := base58.Decode(wallet)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("malformed wallet address")
	}
	sig, err := base58.Decode(solution)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("malformed signature")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(challenge), sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

func (b *Backend) openSession(c *gin.Context, wallet string) (*core.AuthTokens, error) {
	now := time.Now()
	accessExpiry := now.Add(b.AccessTTL)
	refreshExpiry := now.Add(b.RefreshTTL)
	sid := uuid.New().String()

	claims := jwt.RegisteredClaims{
		Subject:   wallet,
		ID:        sid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(accessExpiry),
		Audience:  jwt.ClaimStrings{"session:access"},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(b.signKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	b.mu.Lock()
	b.sessions[sid] = sessionRecord{wallet: wallet, refreshExpiry: refreshExpiry}
	b.mu.Unlock()

	c.SetCookie(sessionCookie, signed, int(b.RefreshTTL.Seconds()), "/", "", false, true)

	return &core.AuthTokens{
		Subject:                wallet,
		AccessTokenExpiration:  b.formatExpiry(accessExpiry),
		RefreshTokenExpiration: b.formatExpiry(refreshExpiry),
	}, nil
}

func (b *Backend) refresh(c *gin.Context) (*core.AuthTokens, error) {
	record, sid, err := b.boundSession(c)
	if err != nil {
		return nil, err
	}
	if time.Now().After(record.refreshExpiry) {
		b.mu.Lock()
		delete(b.sessions, sid)
		b.mu.Unlock()
		return nil, core.ErrSessionExpired
	}

	b.mu.Lock()
	delete(b.sessions, sid)
	b.mu.Unlock()
	return b.openSession(c, record.wallet)
}

func (b *Backend) revoke(c *gin.Context) (bool, error) {
	_, sid, err := b.boundSession(c)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	delete(b.sessions, sid)
	b.mu.Unlock()
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	return true, nil
}

func (b *Backend) ensureAccount(c *gin.Context) (*core.TradingAccount, error) {
	record, _, err := b.boundSession(c)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if account, ok := b.accounts[record.wallet]; ok {
		return account, nil
	}
	account := &core.TradingAccount{
		ID:        uuid.New().String(),
		Owner:     record.wallet,
		Balance:   decimal.Zero,
		Locked:    decimal.Zero,
		CreatedAt: time.Now(),
	}
	b.accounts[record.wallet] = account
	return account, nil
}

// boundSession resolves the session bound to the request's cookie. The token
// signature is always checked; its exp is not, since refresh is expected to
// arrive with a stale access token.
func (b *Backend) boundSession(c *gin.Context) (sessionRecord, string, error) {
	raw, err := c.Cookie(sessionCookie)
	if err != nil {
		return sessionRecord{}, "", fmt.Errorf("no session credentials")
	}

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return &b.signKey.PublicKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return sessionRecord{}, "", fmt.Errorf("invalid session token: %w", err)
	}

	b.mu.Lock()
	record, ok := b.sessions[claims.ID]
	b.mu.Unlock()
	if !ok {
		return sessionRecord{}, "", fmt.Errorf("session not found or revoked")
	}
	return record, claims.ID, nil
}

// formatExpiry rotates through the three accepted wire encodings so clients
// exercise every parse path.
func (b *Backend) formatExpiry(t time.Time) string {
	b.mu.Lock()
	format := b.expFormat
	b.expFormat++
	b.mu.Unlock()

	switch format % 3 {
	case 0:
		return strconv.FormatInt(t.Unix(), 10)
	case 1:
		return strconv.FormatInt(t.UnixMilli(), 10)
	default:
		return t.UTC().Format(time.RFC3339)
	}
}

func decodeParams(params []json.RawMessage, targets ...any) error {
	if len(params) < len(targets) {
		return fmt.Errorf("expected %d params, got %d", len(targets), len(params))
	}
	for i, target := range targets {
		if err := json.Unmarshal(params[i], target); err != nil {
			return fmt.Errorf("bad param %d: %w", i, err)
		}
	}
	return nil
}
