// Package walletbridge is the wallet authentication core of the companion
// app: an encrypted deep-link handshake with an external wallet application
// and the session lifecycle that turns a wallet signature into a backend
// session.
package walletbridge

import (
	"errors"

	"github.com/layer-3/walletbridge/adapters/rpc"
	"github.com/layer-3/walletbridge/handshake"
	"github.com/layer-3/walletbridge/ports"
	"github.com/layer-3/walletbridge/service"
)

// Config assembles a Client from its collaborators.
type Config struct {
	// RPCURL is the backend RPC endpoint.
	RPCURL string

	// Handshake configures the external wallet exchange.
	Handshake handshake.Config

	// Store persists the session snapshot.
	Store ports.Store

	// Opener launches wallet deep links.
	Opener ports.Opener

	// Events receives session lifecycle events. Optional.
	Events ports.EventPublisher

	// Provisioner ensures server-side account resources. Optional; defaults
	// to the RPC transport.
	Provisioner ports.Provisioner
}

// Client bundles the handshake channel and the session service over a shared
// RPC transport.
type Client struct {
	Channel *handshake.Channel
	Session *service.SessionService
	RPC     *rpc.HTTPCaller
}

// New wires up a Client. The session starts in the bootstrapping state;
// callers run Session.Bootstrap to restore persisted state.
func New(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("walletbridge: RPCURL is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("walletbridge: Store is required")
	}
	if cfg.Opener == nil {
		return nil, errors.New("walletbridge: Opener is required")
	}

	caller := rpc.NewHTTPCaller(cfg.RPCURL)
	channel := handshake.NewChannel(cfg.Handshake, cfg.Opener)

	provisioner := cfg.Provisioner
	if provisioner == nil {
		provisioner = caller
	}

	session := service.NewSessionService(cfg.Store, caller, channel, cfg.Events, provisioner)

	return &Client{
		Channel: channel,
		Session: session,
		RPC:     caller,
	}, nil
}
