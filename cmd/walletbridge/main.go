package main

import (
	"context"
	"log"
	"os"
	"os/exec"
	"runtime"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/walletbridge"
	"github.com/layer-3/walletbridge/adapters/events"
	"github.com/layer-3/walletbridge/adapters/store"
	"github.com/layer-3/walletbridge/handshake"
	"github.com/layer-3/walletbridge/service"
	transport "github.com/layer-3/walletbridge/transport/http"
)

func main() {
	ctx := context.Background()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	rpcURL := os.Getenv("RPC_URL")
	if rpcURL == "" {
		rpcURL = "http://localhost:9000/"
	}
	callbackAddr := os.Getenv("CALLBACK_ADDR")
	if callbackAddr == "" {
		callbackAddr = ":9100"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}
	redisClient := redis.NewClient(opts)

	logger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}

	client, err := walletbridge.New(walletbridge.Config{
		RPCURL: rpcURL,
		Handshake: handshake.Config{
			WalletBaseURL:      "https://phantom.app/ul/v1",
			AppURL:             "https://app.layer3.io",
			ConnectRedirectURL: "http://localhost" + callbackAddr + "/onconnect",
			SignRedirectURL:    "http://localhost" + callbackAddr + "/onsign",
		},
		Store:  store.NewRedisStore(redisClient),
		Opener: systemOpener{},
		Events: events.NewWatermillPublisher(publisher),
	})
	if err != nil {
		log.Fatalf("Failed to build client: %v", err)
	}

	client.Session.Bootstrap(ctx)
	go client.Session.RunAutoRefresh(ctx, service.DefaultRefreshInterval)

	// Serve the wallet redirect callbacks
	router := transport.SetupRouter(client.Channel)
	if err := router.Run(callbackAddr); err != nil {
		log.Fatalf("Failed to start callback server: %v", err)
	}
}

// systemOpener launches deep links with the OS default handler.
type systemOpener struct{}

func (systemOpener) OpenURL(ctx context.Context, rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", rawURL)
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", rawURL)
	}
	return cmd.Start()
}
