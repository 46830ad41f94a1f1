// Package handshake implements the one-shot encrypted request/response
// exchange with an external wallet application, using the platform deep-link
// mechanism as the only transport.
package handshake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/nacl/box"

	"github.com/layer-3/walletbridge/core"
	"github.com/layer-3/walletbridge/ports"
)

// Config holds the URL endpoints of the exchange.
type Config struct {
	// WalletBaseURL is the external wallet app's universal-link base,
	// e.g. "https://phantom.app/ul/v1".
	WalletBaseURL string

	// AppURL identifies this app to the wallet on connect.
	AppURL string

	// ConnectRedirectURL and SignRedirectURL are the deep links the wallet
	// calls back into this process with. Inbound URLs are matched against
	// them by scheme, host and path.
	ConnectRedirectURL string
	SignRedirectURL    string
}

type requestKind int

const (
	kindConnect requestKind = iota
	kindSign
)

type connectOutcome struct {
	session *core.WalletSession
	err     error
}

type signOutcome struct {
	signature string
	err       error
}

// pendingRequest is the saved continuation for the single in-flight exchange:
// the operation kind, the crypto material needed to complete it, and the
// channel the suspended caller is blocked on. Correlated by id so a stale
// request cannot complete a newer one.
type pendingRequest struct {
	id   string
	kind requestKind

	// connect: the ephemeral keypair generated for this attempt
	dappPublic *[32]byte
	dappSecret *[32]byte

	// sign: the shared secret established during the prior connect
	sharedSecret *[32]byte

	connectCh chan connectOutcome
	signCh    chan signOutcome
}

// Channel performs encrypted connect/sign exchanges with the wallet app.
// At most one request is in flight process-wide; starting a second one while
// the first is outstanding is an error, not a queued operation.
type Channel struct {
	cfg    Config
	opener ports.Opener

	mu      sync.Mutex
	pending *pendingRequest
}

// NewChannel creates a new handshake channel.
func NewChannel(cfg Config, opener ports.Opener) *Channel {
	return &Channel{cfg: cfg, opener: opener}
}

// Connect generates an ephemeral keypair, opens the wallet's connect deep
// link and suspends until the wallet calls back into this process. There is
// no internal timeout; cancellation comes from ctx (the caller's
// navigation-away equivalent), which abandons the pending slot.
func (c *Channel) Connect(ctx context.Context, cluster string) (*core.WalletSession, error) {
	public, secret, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral keypair: %w", err)
	}

	req := &pendingRequest{
		id:         uuid.New().String(),
		kind:       kindConnect,
		dappPublic: public,
		dappSecret: secret,
		connectCh:  make(chan connectOutcome, 1),
	}

	if err := c.register(req); err != nil {
		return nil, err
	}

	url := c.connectURL(public, cluster)
	if err := c.opener.OpenURL(ctx, url); err != nil {
		c.abandon(req.id)
		return nil, fmt.Errorf("failed to open wallet app: %w", err)
	}

	select {
	case out := <-req.connectCh:
		return out.session, out.err
	case <-ctx.Done():
		c.abandon(req.id)
		return nil, ctx.Err()
	}
}

// SignMessage encrypts the message under the session's shared secret, opens
// the wallet's sign deep link and suspends like Connect. The shared secret is
// the one established during the prior connect; it is never re-derived.
func (c *Channel) SignMessage(ctx context.Context, session *core.WalletSession, message []byte) (string, error) {
	if session == nil {
		return "", core.ErrNoWalletSession
	}

	url, err := c.signURL(session, message)
	if err != nil {
		return "", err
	}

	shared := session.SharedSecret
	req := &pendingRequest{
		id:           uuid.New().String(),
		kind:         kindSign,
		sharedSecret: &shared,
		signCh:       make(chan signOutcome, 1),
	}

	if err := c.register(req); err != nil {
		return "", err
	}

	if err := c.opener.OpenURL(ctx, url); err != nil {
		c.abandon(req.id)
		return "", fmt.Errorf("failed to open wallet app: %w", err)
	}

	select {
	case out := <-req.signCh:
		return out.signature, out.err
	case <-ctx.Done():
		c.abandon(req.id)
		return "", ctx.Err()
	}
}

// HandleRedirect consumes an incoming deep link. URLs that do not match a
// known callback route return false untouched; matched URLs always clear the
// pending slot, resolving or rejecting the suspended caller.
func (c *Channel) HandleRedirect(rawURL string) bool {
	kind, params, ok := c.matchCallback(rawURL)
	if !ok {
		return false
	}

	c.mu.Lock()
	req := c.pending
	c.pending = nil
	c.mu.Unlock()

	if req == nil {
		return true
	}

	if req.kind != kind {
		req.fail(fmt.Errorf("%w: callback route does not match pending %s request",
			core.ErrMalformedCallback, req.kindName()))
		return true
	}

	if code := params.Get("errorCode"); code != "" {
		req.fail(fmt.Errorf("wallet returned error %s: %s", code, params.Get("errorMessage")))
		return true
	}

	switch kind {
	case kindConnect:
		session, err := decodeConnectCallback(params, req.dappPublic, req.dappSecret)
		req.connectCh <- connectOutcome{session: session, err: err}
	case kindSign:
		signature, err := decodeSignCallback(params, req.sharedSecret)
		req.signCh <- signOutcome{signature: signature, err: err}
	}
	return true
}

// Reset unconditionally clears the pending slot without resolving or
// rejecting it. Used only for hard session teardown; an abandoned waiter is
// released by its own context.
func (c *Channel) Reset() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

func (c *Channel) register(req *pendingRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return core.ErrHandshakePending
	}
	c.pending = req
	return nil
}

// abandon clears the slot only if it still holds the given request, so a
// cancelled caller cannot wipe out a request registered after it.
func (c *Channel) abandon(id string) {
	c.mu.Lock()
	if c.pending != nil && c.pending.id == id {
		c.pending = nil
	}
	c.mu.Unlock()
}

func (r *pendingRequest) fail(err error) {
	switch r.kind {
	case kindConnect:
		r.connectCh <- connectOutcome{err: err}
	case kindSign:
		r.signCh <- signOutcome{err: err}
	}
}

func (r *pendingRequest) kindName() string {
	if r.kind == kindConnect {
		return "connect"
	}
	return "sign"
}
