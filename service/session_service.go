package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/layer-3/walletbridge/core"
	"github.com/layer-3/walletbridge/handshake"
	"github.com/layer-3/walletbridge/ports"
)

const (
	methodChallenge = "auth/challenge"
	methodSolution  = "auth/solution"
	methodRefresh   = "auth/refresh"
	methodRevoke    = "auth/revoke"

	// AuthOrigin is the fixed origin all challenge requests are scoped to.
	AuthOrigin = "app.layer3.io"

	revokeReason = "user_logout"
)

// AuthScopes is the fixed capability scope list requested with every challenge.
var AuthScopes = []string{"trade", "wallet", "rewards"}

// SessionService owns the session status and drives all transitions: it
// bridges a wallet signature to a backend token pair, keeps the snapshot
// persisted, refreshes opportunistically and invalidates the session when the
// connected wallet no longer matches the authenticated one.
type SessionService struct {
	store       ports.Store
	rpc         ports.Caller
	channel     *handshake.Channel
	events      ports.EventPublisher // optional
	provisioner ports.Provisioner    // optional

	origin string
	scopes []string
	now    func() time.Time

	mu              sync.Mutex
	status          core.Status
	tokens          *core.AuthTokens
	sessionWallet   string // wallet recorded at authentication time
	connectedWallet string // most recently connected wallet, embedded or external
	walletSession   *core.WalletSession
	lastErr         string
	provisioned     bool
}

// NewSessionService creates a new session service in the bootstrapping state.
// events and provisioner may be nil.
func NewSessionService(
	store ports.Store,
	rpc ports.Caller,
	channel *handshake.Channel,
	events ports.EventPublisher,
	provisioner ports.Provisioner,
) *SessionService {
	return &SessionService{
		store:       store,
		rpc:         rpc,
		channel:     channel,
		events:      events,
		provisioner: provisioner,
		origin:      AuthOrigin,
		scopes:      AuthScopes,
		now:         time.Now,
		status:      core.StatusBootstrapping,
	}
}

// Status returns the current session status.
func (s *SessionService) Status() core.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Tokens returns the current token pair, or nil when not authenticated.
func (s *SessionService) Tokens() *core.AuthTokens {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		return nil
	}
	t := *s.tokens
	return &t
}

// SessionWallet returns the wallet address recorded at authentication time.
func (s *SessionService) SessionWallet() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionWallet
}

// LastError returns the message attached to the most recent failure or
// session invalidation, empty when none.
func (s *SessionService) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Bootstrap restores the session from the persisted snapshot. It always ends
// in authenticated or unauthenticated, clearing stale storage along the way.
func (s *SessionService) Bootstrap(ctx context.Context) {
	s.setStatus(ctx, core.StatusBootstrapping)

	snapshot, err := s.store.Load(ctx)
	if err != nil {
		slogctx.Error(ctx, "failed to load session snapshot", "error", err)
		s.setStatus(ctx, core.StatusUnauthenticated)
		return
	}
	if snapshot == nil {
		s.setStatus(ctx, core.StatusUnauthenticated)
		return
	}

	now := s.now()
	if !snapshot.Tokens.RefreshValidAt(now) {
		s.clearStorage(ctx)
		s.setStatus(ctx, core.StatusUnauthenticated)
		return
	}

	if snapshot.Tokens.AccessValidAt(now) {
		s.adopt(ctx, snapshot.Tokens, snapshot.WalletAddress)
		return
	}

	// access expired, refresh still valid
	s.setStatus(ctx, core.StatusRefreshing)
	tokens, err := s.callRefresh(ctx)
	if err != nil {
		slogctx.Warn(ctx, "bootstrap refresh failed", "error", err)
		s.clearStorage(ctx)
		s.setStatus(ctx, core.StatusUnauthenticated)
		return
	}
	s.persist(ctx, *tokens, snapshot.WalletAddress)
	s.adopt(ctx, *tokens, snapshot.WalletAddress)
}

// ConnectWallet runs the external connect handshake and records the returned
// wallet public key as the actively connected wallet. Blocks until the wallet
// app calls back or ctx is cancelled.
func (s *SessionService) ConnectWallet(ctx context.Context, cluster string) (string, error) {
	session, err := s.channel.Connect(ctx, cluster)
	if err != nil {
		return "", fmt.Errorf("wallet connect failed: %w", err)
	}

	s.mu.Lock()
	s.walletSession = session
	s.mu.Unlock()

	s.SetConnectedWallet(ctx, session.PublicKey)
	return session.PublicKey, nil
}

// SetConnectedWallet records the most recently connected wallet address and
// re-evaluates the wallet-mismatch guard.
func (s *SessionService) SetConnectedWallet(ctx context.Context, address string) {
	s.mu.Lock()
	s.connectedWallet = address
	s.mu.Unlock()
	s.checkWalletMatch(ctx)
}

// AuthenticateFromWallet authenticates using the external wallet connected
// via ConnectWallet, delegating the challenge signature to the handshake
// channel. Only meaningful from unauthenticated or error.
func (s *SessionService) AuthenticateFromWallet(ctx context.Context) error {
	s.mu.Lock()
	session := s.walletSession
	s.mu.Unlock()
	if session == nil {
		return core.ErrNoWalletSession
	}

	return s.authenticate(ctx, session.PublicKey, func(ctx context.Context, message []byte) (string, error) {
		return s.channel.SignMessage(ctx, session, message)
	})
}

// AuthenticateWithSigner authenticates using an embedded signer.
func (s *SessionService) AuthenticateWithSigner(ctx context.Context, signer ports.Signer) error {
	s.SetConnectedWallet(ctx, signer.Address())
	return s.authenticate(ctx, signer.Address(), signer.SignMessage)
}

// authenticate is the shared challenge/solution path: request a challenge
// scoped to the fixed origin and scopes, sign it, submit the solution,
// persist the resulting tokens and flip to authenticated.
func (s *SessionService) authenticate(ctx context.Context, wallet string, sign func(context.Context, []byte) (string, error)) error {
	s.mu.Lock()
	if s.status != core.StatusUnauthenticated && s.status != core.StatusError {
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot authenticate from %s", core.ErrInvalidTransition, s.status)
	}
	s.mu.Unlock()
	s.setStatus(ctx, core.StatusAuthenticating)

	var challenge string
	if err := s.rpc.Call(ctx, methodChallenge, []any{s.origin, wallet, s.scopes}, &challenge); err != nil {
		return s.failAuth(ctx, fmt.Errorf("challenge request failed: %w", err))
	}

	solution, err := sign(ctx, []byte(challenge))
	if err != nil {
		return s.failAuth(ctx, fmt.Errorf("challenge signing failed: %w", err))
	}

	var tokens core.AuthTokens
	if err := s.rpc.Call(ctx, methodSolution, []any{challenge, solution}, &tokens); err != nil {
		return s.failAuth(ctx, fmt.Errorf("solution submission failed: %w", err))
	}

	s.persist(ctx, tokens, wallet)
	s.adopt(ctx, tokens, wallet)
	return nil
}

// Refresh rotates the token pair. It always ends in authenticated on success
// or unauthenticated (with cleared storage) on failure; status is never left
// stuck in refreshing.
func (s *SessionService) Refresh(ctx context.Context) error {
	s.setStatus(ctx, core.StatusRefreshing)

	tokens, err := s.callRefresh(ctx)
	if err != nil {
		slogctx.Warn(ctx, "session refresh failed", "error", err)
		s.clearStorage(ctx)
		s.mu.Lock()
		s.tokens = nil
		s.sessionWallet = ""
		s.mu.Unlock()
		s.setStatus(ctx, core.StatusUnauthenticated)
		return fmt.Errorf("refresh failed: %w", err)
	}

	s.mu.Lock()
	wallet := s.sessionWallet
	s.mu.Unlock()
	s.persist(ctx, *tokens, wallet)
	s.adopt(ctx, *tokens, wallet)
	return nil
}

func (s *SessionService) callRefresh(ctx context.Context) (*core.AuthTokens, error) {
	// The backend identifies the session via transport-level credentials,
	// so the call carries no parameters.
	var tokens core.AuthTokens
	if err := s.rpc.Call(ctx, methodRefresh, nil, &tokens); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Logout best-effort revokes the session server-side and disconnects the
// wallet, swallowing both failures, then always clears the local session.
func (s *SessionService) Logout(ctx context.Context) {
	var revoked bool
	if err := s.rpc.Call(ctx, methodRevoke, []any{revokeReason}, &revoked); err != nil {
		slogctx.Warn(ctx, "server-side revoke failed", "error", err)
	}
	s.channel.Reset()

	s.mu.Lock()
	wallet := s.sessionWallet
	s.mu.Unlock()
	if s.events != nil {
		if err := s.events.PublishLogout(ctx, wallet); err != nil {
			slogctx.Warn(ctx, "failed to publish logout event", "error", err)
		}
	}

	s.ClearSession(ctx)
}

// ClearSession wipes persisted storage, transport credentials and in-memory
// session state, then sets unauthenticated.
func (s *SessionService) ClearSession(ctx context.Context) {
	s.clearStorage(ctx)
	s.rpc.ClearCredentials()

	s.mu.Lock()
	s.tokens = nil
	s.sessionWallet = ""
	s.walletSession = nil
	s.lastErr = ""
	s.mu.Unlock()

	s.setStatus(ctx, core.StatusUnauthenticated)
}

// checkWalletMatch invalidates the session when the actively connected
// wallet differs from the wallet recorded at authentication time. Re-run on
// every wallet change and every status change.
func (s *SessionService) checkWalletMatch(ctx context.Context) {
	s.mu.Lock()
	mismatch := s.status == core.StatusAuthenticated &&
		s.connectedWallet != "" && s.sessionWallet != "" &&
		s.connectedWallet != s.sessionWallet
	connected, recorded := s.connectedWallet, s.sessionWallet
	s.mu.Unlock()
	if !mismatch {
		return
	}

	msg := fmt.Sprintf("active wallet %s does not match session wallet %s; signed out",
		core.TruncateAddress(connected), core.TruncateAddress(recorded))
	slogctx.Warn(ctx, "wallet mismatch, invalidating session",
		"connected", core.TruncateAddress(connected), "session", core.TruncateAddress(recorded))

	s.ClearSession(ctx)

	s.mu.Lock()
	s.lastErr = msg
	s.mu.Unlock()
}

// adopt installs a token pair as the live session and flips to authenticated,
// then runs the mismatch guard and the one-shot provisioning side effect.
func (s *SessionService) adopt(ctx context.Context, tokens core.AuthTokens, wallet string) {
	s.mu.Lock()
	t := tokens
	s.tokens = &t
	s.sessionWallet = wallet
	s.mu.Unlock()

	s.setStatus(ctx, core.StatusAuthenticated)
	s.checkWalletMatch(ctx)
	s.ensureProvisioned(ctx)
}

// ensureProvisioned runs the account-provisioning side effect at most once
// per successful authentication lifetime. Failure does not revert
// authentication but surfaces as a session error and re-arms the attempt.
func (s *SessionService) ensureProvisioned(ctx context.Context) {
	if s.provisioner == nil {
		return
	}

	s.mu.Lock()
	if s.provisioned || s.status != core.StatusAuthenticated {
		s.mu.Unlock()
		return
	}
	s.provisioned = true
	s.mu.Unlock()

	account, err := s.provisioner.EnsurePrimaryAccount(ctx)
	if err != nil {
		slogctx.Error(ctx, "account provisioning failed", "error", err)
		s.mu.Lock()
		s.provisioned = false
		s.lastErr = fmt.Sprintf("account provisioning failed: %v", err)
		s.mu.Unlock()
		return
	}
	slogctx.Debug(ctx, "primary trading account ensured", "account", account.ID)
}

func (s *SessionService) failAuth(ctx context.Context, err error) error {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.setStatus(ctx, core.StatusError)
	return err
}

func (s *SessionService) persist(ctx context.Context, tokens core.AuthTokens, wallet string) {
	snapshot := &core.SessionSnapshot{Tokens: tokens, WalletAddress: wallet}
	if err := s.store.Save(ctx, snapshot); err != nil {
		slogctx.Error(ctx, "failed to persist session snapshot", "error", err)
	}
}

func (s *SessionService) clearStorage(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		slogctx.Error(ctx, "failed to clear session store", "error", err)
	}
}

func (s *SessionService) setStatus(ctx context.Context, status core.Status) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	wallet := s.sessionWallet
	s.mu.Unlock()

	if s.events != nil {
		if err := s.events.PublishStatusChange(ctx, status, wallet); err != nil {
			slogctx.Warn(ctx, "failed to publish status change", "error", err)
		}
	}
}
