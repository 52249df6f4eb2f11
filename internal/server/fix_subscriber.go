// Package server hosts the tracking-side runtime: the NATS fix
// subscriber that feeds the engine pipeline.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/herdguard/herdguard-server/internal/engine"
)

// fixSubject matches tracker.<id>.fix for every tracker.
const fixSubject = "tracker.*.fix"

// FixSubscriber consumes location fixes from NATS and hands them to the
// pipeline. The tracker id in the subject is authoritative; whatever id
// the payload carries is overwritten.
type FixSubscriber struct {
	nc       *nats.Conn
	pipeline *engine.Pipeline
	sub      *nats.Subscription
}

// NewFixSubscriber creates a fix subscriber on the given connection.
func NewFixSubscriber(nc *nats.Conn, pipeline *engine.Pipeline) *FixSubscriber {
	return &FixSubscriber{nc: nc, pipeline: pipeline}
}

// Start subscribes to the fix subject.
func (s *FixSubscriber) Start() error {
	sub, err := s.nc.Subscribe(fixSubject, s.handleFix)
	if err != nil {
		return err
	}
	s.sub = sub

	log.Info().Str("subject", fixSubject).Msg("Fix subscriber started")
	return nil
}

// Stop unsubscribes.
func (s *FixSubscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	return s.sub.Unsubscribe()
}

func (s *FixSubscriber) handleFix(msg *nats.Msg) {
	trackerID, ok := trackerIDFromSubject(msg.Subject)
	if !ok {
		log.Warn().Str("subject", msg.Subject).Msg("Unexpected fix subject")
		return
	}

	var in engine.FixInput
	if err := json.Unmarshal(msg.Data, &in); err != nil {
		log.Warn().Err(err).Str("tracker_id", trackerID).Msg("Malformed fix payload")
		return
	}
	in.TrackerID = trackerID

	if err := s.pipeline.SubmitFix(context.Background(), in); err != nil {
		if errors.Is(err, engine.ErrInvalidFix) {
			log.Warn().Err(err).Str("tracker_id", trackerID).Msg("Rejected fix")
			return
		}
		log.Error().Err(err).Str("tracker_id", trackerID).Msg("Fix ingest failed")
	}
}

func trackerIDFromSubject(subject string) (string, bool) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] != "tracker" || parts[2] != "fix" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
