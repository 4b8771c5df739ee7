/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus forwards player events to an external broker while
// delivering them to in-process subscribers.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dzero1996/Nebula-KTV/internal/config"
	"github.com/Dzero1996/Nebula-KTV/internal/events"
)

// Bus is what the player publishes to and the control API subscribes on.
type Bus interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

// LocalBus is an in-process only Bus.
type LocalBus struct {
	*events.Bus
}

// NewLocalBus creates a Bus without external forwarding.
func NewLocalBus() *LocalBus {
	return &LocalBus{Bus: events.NewBus()}
}

// Close is a no-op.
func (LocalBus) Close() error { return nil }

// New builds the bus selected by cfg.EventBus.
func New(cfg *config.Config, logger zerolog.Logger) (Bus, error) {
	logger = logger.With().Str("component", "eventbus").Logger()
	nodeID := generateNodeID()

	switch cfg.EventBus {
	case config.EventBusNATS:
		natsCfg := DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		return NewNATSBus(natsCfg, nodeID, logger)
	case config.EventBusRedis:
		redisCfg := DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		return NewRedisBus(redisCfg, nodeID, logger)
	case config.EventBusNone, "":
		return NewLocalBus(), nil
	}
	return nil, fmt.Errorf("unsupported event bus %q", cfg.EventBus)
}

// message is the envelope published to external brokers.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

// natsSubject maps player.ready to ktv.player.ready.
func natsSubject(eventType events.EventType) string {
	return "ktv." + string(eventType)
}

// redisChannel maps player.ready to ktv:player:ready.
func redisChannel(eventType events.EventType) string {
	return "ktv:" + strings.ReplaceAll(string(eventType), ".", ":")
}

func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ktv"
	}
	return host + "-" + uuid.NewString()[:8]
}
