// Geotrace - Real-Time GPS Location Tracking and Sync Engine
// Copyright 2026 Geotrace Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geotraceapp/geotrace

package events

import (
	"context"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/geotraceapp/geotrace/internal/logging"
	"github.com/geotraceapp/geotrace/internal/metrics"
	"github.com/geotraceapp/geotrace/internal/models"
)

// Broadcaster is the slice of the WebSocket hub the relay needs.
type Broadcaster interface {
	BroadcastLocationUpdate(rec *models.LocationRecord)
}

// Relay subscribes to location events and forwards them to the WebSocket
// hub under a global rate limit. With thousands of devices reporting,
// unthrottled fan-out would swamp every connected map client; dropped
// updates are fine because the next position supersedes them.
type Relay struct {
	bus     *Bus
	hub     Broadcaster
	limiter *rate.Limiter
}

// NewRelay creates a relay forwarding at most perSecond updates per
// second, with a burst of the same size. perSecond <= 0 disables
// throttling.
func NewRelay(bus *Bus, hub Broadcaster, perSecond int) *Relay {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return &Relay{bus: bus, hub: hub, limiter: limiter}
}

// Serve implements suture.Service. It consumes location events until the
// context is canceled.
func (r *Relay) Serve(ctx context.Context) error {
	messages, err := r.bus.Subscribe(ctx, TopicLocationUpdated)
	if err != nil {
		return err
	}
	logging.Info().Msg("Starting location broadcast relay")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Location broadcast relay stopping")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return ctx.Err()
			}
			r.handle(msg.Payload)
			msg.Ack()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (r *Relay) String() string {
	return "broadcast-relay"
}

func (r *Relay) handle(payload []byte) {
	if !r.limiter.Allow() {
		metrics.BroadcastsDropped.Inc()
		return
	}

	var rec models.LocationRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		logging.Warn().Err(err).Msg("Failed to unmarshal location event")
		return
	}
	r.hub.BroadcastLocationUpdate(&rec)
}
