package ports

import "context"

// Opener asks the platform to open a URL in the external wallet application.
// An error means the launch itself failed; a successful launch says nothing
// about whether the wallet will ever call back.
type Opener interface {
	OpenURL(ctx context.Context, rawURL string) error
}
