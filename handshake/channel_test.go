package handshake

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/layer-3/walletbridge/core"
)

var testConfig = Config{
	WalletBaseURL:      "https://wallet.example/ul/v1",
	AppURL:             "https://app.example",
	ConnectRedirectURL: "walletbridge://onconnect",
	SignRedirectURL:    "walletbridge://onsign",
}

// fakeOpener records opened deep links and signals each launch.
type fakeOpener struct {
	opened chan string
	err    error
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{opened: make(chan string, 4)}
}

func (o *fakeOpener) OpenURL(ctx context.Context, rawURL string) error {
	if o.err != nil {
		return o.err
	}
	o.opened <- rawURL
	return nil
}

// walletApp plays the external wallet's side of the exchange.
type walletApp struct {
	public *[32]byte
	secret *[32]byte

	address string
	session string
}

func newWalletApp(t *testing.T) *walletApp {
	t.Helper()
	public, secret, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return &walletApp{
		public:  public,
		secret:  secret,
		address: "B8oMnUyzW3DmDJvmYTKqZZkMvGsNvKsSjUyWFQvBpBsx",
		session: "wallet-session-token",
	}
}

// answerConnect builds the callback URL the wallet would redirect to after a
// connect deep link.
func (w *walletApp) answerConnect(t *testing.T, openedURL string) string {
	t.Helper()
	u, err := url.Parse(openedURL)
	require.NoError(t, err)
	require.Equal(t, "/ul/v1/connect", u.Path)

	dappKey := decodeTestKey(t, u.Query().Get("dapp_encryption_public_key"))

	var shared [32]byte
	box.Precompute(&shared, dappKey, w.secret)

	payload, err := json.Marshal(map[string]string{
		"public_key": w.address,
		"session":    w.session,
	})
	require.NoError(t, err)

	return w.sealCallback(t, u.Query().Get("redirect_link"), &shared, payload, url.Values{
		"phantom_encryption_public_key": {base58.Encode(w.public[:])},
	})
}

// answerSign decrypts the sign deep link and responds with a signature over
// the carried message.
func (w *walletApp) answerSign(t *testing.T, openedURL string, signature string) string {
	t.Helper()
	u, err := url.Parse(openedURL)
	require.NoError(t, err)
	require.Equal(t, "/ul/v1/signMessage", u.Path)

	dappKey := decodeTestKey(t, u.Query().Get("dapp_encryption_public_key"))
	var shared [32]byte
	box.Precompute(&shared, dappKey, w.secret)

	nonceRaw, err := base58.Decode(u.Query().Get("nonce"))
	require.NoError(t, err)
	var nonce [nonceSize]byte
	copy(nonce[:], nonceRaw)

	ciphertext, err := base58.Decode(u.Query().Get("payload"))
	require.NoError(t, err)
	plaintext, ok := box.OpenAfterPrecomputation(nil, ciphertext, &nonce, &shared)
	require.True(t, ok, "wallet must be able to open the sign payload")

	var req signRequest
	require.NoError(t, json.Unmarshal(plaintext, &req))
	require.Equal(t, w.session, req.Session)

	payload, err := json.Marshal(map[string]string{"signature": signature})
	require.NoError(t, err)
	return w.sealCallback(t, u.Query().Get("redirect_link"), &shared, payload, url.Values{})
}

func (w *walletApp) sealCallback(t *testing.T, redirect string, shared *[32]byte, payload []byte, extra url.Values) string {
	t.Helper()
	var nonce [nonceSize]byte
	_, err := rand.Read(nonce[:])
	require.NoError(t, err)

	data := box.SealAfterPrecomputation(nil, payload, &nonce, shared)
	extra.Set("nonce", base58.Encode(nonce[:]))
	extra.Set("data", base58.Encode(data))
	return redirect + "?" + extra.Encode()
}

func decodeTestKey(t *testing.T, s string) *[32]byte {
	t.Helper()
	key, err := decodeKey32(s)
	require.NoError(t, err)
	return key
}

// startConnect runs Connect in the background and returns the opened URL plus
// the result channel.
func startConnect(t *testing.T, c *Channel, opener *fakeOpener) (string, chan connectOutcome) {
	t.Helper()
	results := make(chan connectOutcome, 1)
	go func() {
		session, err := c.Connect(context.Background(), "mainnet-beta")
		results <- connectOutcome{session: session, err: err}
	}()

	select {
	case opened := <-opener.opened:
		return opened, results
	case <-time.After(time.Second):
		t.Fatal("connect deep link was never opened")
		return "", nil
	}
}

func TestConnectRoundTrip(t *testing.T) {
	opener := newFakeOpener()
	c := NewChannel(testConfig, opener)
	wallet := newWalletApp(t)

	opened, results := startConnect(t, c, opener)

	u, err := url.Parse(opened)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, testConfig.AppURL, q.Get("app_url"))
	assert.Equal(t, testConfig.ConnectRedirectURL, q.Get("redirect_link"))
	assert.Equal(t, "mainnet-beta", q.Get("cluster"))
	assert.NotEmpty(t, q.Get("dapp_encryption_public_key"))

	require.True(t, c.HandleRedirect(wallet.answerConnect(t, opened)))

	out := <-results
	require.NoError(t, out.err)
	require.NotNil(t, out.session)
	assert.Equal(t, wallet.address, out.session.PublicKey)
	assert.Equal(t, wallet.session, out.session.Token)

	// the shared secret must match the wallet's derivation
	var expected [32]byte
	box.Precompute(&expected, wallet.public, &out.session.DappSecretKey)
	assert.Equal(t, expected, out.session.SharedSecret)
}

func TestConnectRejectsConcurrentRequest(t *testing.T) {
	opener := newFakeOpener()
	c := NewChannel(testConfig, opener)
	wallet := newWalletApp(t)

	opened, results := startConnect(t, c, opener)

	_, err := c.Connect(context.Background(), "")
	require.ErrorIs(t, err, core.ErrHandshakePending)

	_, err = c.SignMessage(context.Background(), &core.WalletSession{}, []byte("x"))
	require.ErrorIs(t, err, core.ErrHandshakePending)

	// the first request is untouched and still completes
	require.True(t, c.HandleRedirect(wallet.answerConnect(t, opened)))
	out := <-results
	require.NoError(t, out.err)
}

func TestConnectRejectsOnLaunchFailure(t *testing.T) {
	opener := newFakeOpener()
	opener.err = errors.New("no handler for scheme")
	c := NewChannel(testConfig, opener)

	_, err := c.Connect(context.Background(), "")
	require.ErrorContains(t, err, "failed to open wallet app")

	// the slot is free again
	c.mu.Lock()
	assert.Nil(t, c.pending)
	c.mu.Unlock()
}

func TestHandleRedirectErrorCodeWins(t *testing.T) {
	opener := newFakeOpener()
	c := NewChannel(testConfig, opener)
	wallet := newWalletApp(t)

	opened, results := startConnect(t, c, opener)

	// errorCode takes precedence even when data/nonce are present
	callback := wallet.answerConnect(t, opened) + "&errorCode=4001&errorMessage=User+rejected"
	require.True(t, c.HandleRedirect(callback))

	out := <-results
	require.Error(t, out.err)
	assert.Contains(t, out.err.Error(), "4001")
	assert.Contains(t, out.err.Error(), "User rejected")
}

func TestHandleRedirectIgnoresUnknownRoute(t *testing.T) {
	opener := newFakeOpener()
	c := NewChannel(testConfig, opener)
	wallet := newWalletApp(t)

	opened, results := startConnect(t, c, opener)

	assert.False(t, c.HandleRedirect("walletbridge://something-else?data=x"))
	assert.False(t, c.HandleRedirect("otherapp://onconnect?data=x"))
	assert.False(t, c.HandleRedirect("://not a url"))

	// pending request survived and still resolves
	require.True(t, c.HandleRedirect(wallet.answerConnect(t, opened)))
	out := <-results
	require.NoError(t, out.err)
}

func TestHandleRedirectMalformedPayload(t *testing.T) {
	opener := newFakeOpener()
	c := NewChannel(testConfig, opener)

	_, results := startConnect(t, c, opener)

	require.True(t, c.HandleRedirect(testConfig.ConnectRedirectURL+"?nonce=abc&data=abc"))
	out := <-results
	require.ErrorIs(t, out.err, core.ErrMalformedCallback)

	// slot was cleared even though the callback was bad
	_, results = startConnect(t, c, opener)
	require.True(t, c.HandleRedirect(testConfig.ConnectRedirectURL+"?errorCode=1&errorMessage=x"))
	out = <-results
	require.Error(t, out.err)
}

func TestSignMessageRoundTrip(t *testing.T) {
	opener := newFakeOpener()
	c := NewChannel(testConfig, opener)
	wallet := newWalletApp(t)

	opened, results := startConnect(t, c, opener)
	require.True(t, c.HandleRedirect(wallet.answerConnect(t, opened)))
	out := <-results
	require.NoError(t, out.err)
	session := out.session

	signResults := make(chan signOutcome, 1)
	go func() {
		sig, err := c.SignMessage(context.Background(), session, []byte("challenge-to-sign"))
		signResults <- signOutcome{signature: sig, err: err}
	}()
	openedSign := <-opener.opened

	require.True(t, c.HandleRedirect(wallet.answerSign(t, openedSign, "sig-base58")))
	got := <-signResults
	require.NoError(t, got.err)
	assert.Equal(t, "sig-base58", got.signature)
}

func TestSignCallbackWrongSecretFailsDecryption(t *testing.T) {
	opener := newFakeOpener()
	c := NewChannel(testConfig, opener)
	wallet := newWalletApp(t)

	opened, results := startConnect(t, c, opener)
	require.True(t, c.HandleRedirect(wallet.answerConnect(t, opened)))
	out := <-results
	require.NoError(t, out.err)

	signResults := make(chan signOutcome, 1)
	go func() {
		sig, err := c.SignMessage(context.Background(), out.session, []byte("msg"))
		signResults <- signOutcome{signature: sig, err: err}
	}()
	<-opener.opened

	// a response sealed under an unrelated secret must not open
	var wrong [32]byte
	_, err := rand.Read(wrong[:])
	require.NoError(t, err)
	callback := wallet.sealCallback(t, testConfig.SignRedirectURL, &wrong, []byte(`{"signature":"x"}`), url.Values{})

	require.True(t, c.HandleRedirect(callback))
	got := <-signResults
	require.ErrorIs(t, got.err, core.ErrDecryptionFailed)
}

func TestSignMessageRequiresSession(t *testing.T) {
	c := NewChannel(testConfig, newFakeOpener())
	_, err := c.SignMessage(context.Background(), nil, []byte("msg"))
	require.ErrorIs(t, err, core.ErrNoWalletSession)
}

func TestResetClearsPendingSlot(t *testing.T) {
	opener := newFakeOpener()
	c := NewChannel(testConfig, opener)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan connectOutcome, 1)
	go func() {
		session, err := c.Connect(ctx, "")
		results <- connectOutcome{session: session, err: err}
	}()
	<-opener.opened

	c.Reset()

	// slot is free again; the old waiter is released only by its own context
	c.mu.Lock()
	assert.Nil(t, c.pending)
	c.mu.Unlock()

	cancel()
	out := <-results
	require.ErrorIs(t, out.err, context.Canceled)
}

func TestCancelledConnectFreesSlot(t *testing.T) {
	opener := newFakeOpener()
	c := NewChannel(testConfig, opener)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan connectOutcome, 1)
	go func() {
		session, err := c.Connect(ctx, "")
		results <- connectOutcome{session: session, err: err}
	}()
	<-opener.opened

	cancel()
	out := <-results
	require.ErrorIs(t, out.err, context.Canceled)

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.pending == nil
	}, time.Second, 5*time.Millisecond)
}
