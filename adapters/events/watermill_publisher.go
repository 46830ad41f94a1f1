package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/walletbridge/core"
	"github.com/layer-3/walletbridge/ports"
)

const (
	// StatusTopic carries session status transitions.
	StatusTopic = "walletbridge.session.status"
	// LogoutTopic carries explicit user sign-outs.
	LogoutTopic = "walletbridge.session.logout"
)

// StatusEvent represents a session status transition.
type StatusEvent struct {
	Status string `json:"status"`
	Wallet string `json:"wallet,omitempty"`
}

// LogoutEvent represents a user-initiated sign-out.
type LogoutEvent struct {
	Wallet string `json:"wallet,omitempty"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishStatusChange publishes a status transition event.
func (p *WatermillPublisher) PublishStatusChange(ctx context.Context, status core.Status, wallet string) error {
	return p.publish(StatusTopic, StatusEvent{Status: string(status), Wallet: wallet})
}

// PublishLogout publishes a logout event.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, wallet string) error {
	return p.publish(LogoutTopic, LogoutEvent{Wallet: wallet})
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
