package core

import "errors"

var (
	ErrHandshakePending  = errors.New("another handshake request is already pending")
	ErrNoWalletSession   = errors.New("no wallet session established")
	ErrInvalidTransition = errors.New("operation not allowed in current session status")
	ErrWalletMismatch    = errors.New("connected wallet does not match session wallet")
	ErrMalformedCallback = errors.New("malformed handshake callback")
	ErrDecryptionFailed  = errors.New("failed to decrypt handshake payload")
	ErrStoreOperation    = errors.New("session store operation failed")
	ErrSessionExpired    = errors.New("session has expired")
)
