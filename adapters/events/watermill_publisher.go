package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/ports"
	"github.com/google/uuid"
)

const (
	// LoginTopic carries session-established events.
	LoginTopic = "auth.login"

	// LogoutTopic carries session-teardown events.
	LogoutTopic = "auth.logout"
)

// SessionEvent is the payload published on both topics.
type SessionEvent struct {
	Address  string        `json:"address"`
	AuthType core.AuthType `json:"authType"`
	At       time.Time     `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using
// Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogin publishes a session-established event.
func (p *WatermillPublisher) PublishLogin(ctx context.Context, address string, authType core.AuthType) error {
	return p.publish(LoginTopic, address, authType)
}

// PublishLogout publishes a session-teardown event.
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, authType core.AuthType) error {
	return p.publish(LogoutTopic, address, authType)
}

func (p *WatermillPublisher) publish(topic, address string, authType core.AuthType) error {
	payload, err := json.Marshal(SessionEvent{
		Address:  address,
		AuthType: authType,
		At:       time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
