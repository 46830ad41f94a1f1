package handshake

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/nacl/box"

	"github.com/layer-3/walletbridge/core"
)

const nonceSize = 24

// connectResponse is the decrypted payload of a connect callback.
type connectResponse struct {
	PublicKey string `json:"public_key"`
	Session   string `json:"session"`
}

// signRequest is the cleartext shape encrypted into a sign deep link.
type signRequest struct {
	Session string `json:"session"`
	Message string `json:"message"`
}

// signResponse is the decrypted payload of a sign callback.
type signResponse struct {
	Signature string `json:"signature"`
}

func (c *Channel) connectURL(dappPublic *[32]byte, cluster string) string {
	q := url.Values{}
	q.Set("app_url", c.cfg.AppURL)
	q.Set("dapp_encryption_public_key", base58.Encode(dappPublic[:]))
	q.Set("redirect_link", c.cfg.ConnectRedirectURL)
	if cluster != "" {
		q.Set("cluster", cluster)
	}
	return c.cfg.WalletBaseURL + "/connect?" + q.Encode()
}

func (c *Channel) signURL(session *core.WalletSession, message []byte) (string, error) {
	payload, err := json.Marshal(signRequest{
		Session: session.Token,
		Message: base58.Encode(message),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sign payload: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	shared := session.SharedSecret
	ciphertext := box.SealAfterPrecomputation(nil, payload, &nonce, &shared)

	q := url.Values{}
	q.Set("dapp_encryption_public_key", base58.Encode(session.DappPublicKey[:]))
	q.Set("nonce", base58.Encode(nonce[:]))
	q.Set("redirect_link", c.cfg.SignRedirectURL)
	q.Set("payload", base58.Encode(ciphertext))
	return c.cfg.WalletBaseURL + "/signMessage?" + q.Encode(), nil
}

// matchCallback matches an inbound URL against the two configured redirect
// routes and returns its query parameters.
func (c *Channel) matchCallback(rawURL string) (requestKind, url.Values, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, nil, false
	}
	if routeMatches(u, c.cfg.ConnectRedirectURL) {
		return kindConnect, u.Query(), true
	}
	if routeMatches(u, c.cfg.SignRedirectURL) {
		return kindSign, u.Query(), true
	}
	return 0, nil, false
}

func routeMatches(u *url.URL, route string) bool {
	r, err := url.Parse(route)
	if err != nil {
		return false
	}
	return u.Scheme == r.Scheme && u.Host == r.Host && u.Path == r.Path
}

// decodeConnectCallback derives the shared secret from the wallet's
// advertised public key and the ephemeral secret generated for this attempt,
// then opens and parses the encrypted response.
func decodeConnectCallback(params url.Values, dappPublic, dappSecret *[32]byte) (*core.WalletSession, error) {
	walletKey, err := decodeKey32(params.Get("phantom_encryption_public_key"))
	if err != nil {
		return nil, fmt.Errorf("%w: phantom_encryption_public_key: %v", core.ErrMalformedCallback, err)
	}

	var shared [32]byte
	box.Precompute(&shared, walletKey, dappSecret)

	plaintext, err := openPayload(params, &shared)
	if err != nil {
		return nil, err
	}

	var resp connectResponse
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		return nil, fmt.Errorf("%w: connect response is not valid JSON: %v", core.ErrMalformedCallback, err)
	}
	if resp.PublicKey == "" || resp.Session == "" {
		return nil, fmt.Errorf("%w: connect response missing public_key or session", core.ErrMalformedCallback)
	}

	return &core.WalletSession{
		PublicKey:     resp.PublicKey,
		Token:         resp.Session,
		DappPublicKey: *dappPublic,
		DappSecretKey: *dappSecret,
		SharedSecret:  shared,
	}, nil
}

// decodeSignCallback opens the response under the shared secret established
// at connect time.
func decodeSignCallback(params url.Values, shared *[32]byte) (string, error) {
	plaintext, err := openPayload(params, shared)
	if err != nil {
		return "", err
	}

	var resp signResponse
	if err := json.Unmarshal(plaintext, &resp); err != nil {
		return "", fmt.Errorf("%w: sign response is not valid JSON: %v", core.ErrMalformedCallback, err)
	}
	if resp.Signature == "" {
		return "", fmt.Errorf("%w: sign response missing signature", core.ErrMalformedCallback)
	}
	return resp.Signature, nil
}

func openPayload(params url.Values, shared *[32]byte) ([]byte, error) {
	nonceBytes, err := base58.Decode(params.Get("nonce"))
	if err != nil || len(nonceBytes) != nonceSize {
		return nil, fmt.Errorf("%w: bad nonce", core.ErrMalformedCallback)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], nonceBytes)

	ciphertext, err := base58.Decode(params.Get("data"))
	if err != nil || len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: bad data", core.ErrMalformedCallback)
	}

	plaintext, ok := box.OpenAfterPrecomputation(nil, ciphertext, &nonce, shared)
	if !ok {
		return nil, core.ErrDecryptionFailed
	}
	return plaintext, nil
}

func decodeKey32(s string) (*[32]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32-byte key, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
