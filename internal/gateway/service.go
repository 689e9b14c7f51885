// Package gateway provides the HTTP API and service layer for tripassist.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fentz26/tripassist/internal/apperr"
	"github.com/fentz26/tripassist/internal/audit"
	"github.com/fentz26/tripassist/internal/callback"
	"github.com/fentz26/tripassist/internal/config"
	"github.com/fentz26/tripassist/internal/engine"
	"github.com/fentz26/tripassist/internal/itinerary"
	"github.com/fentz26/tripassist/internal/logging"
	"github.com/fentz26/tripassist/internal/metrics"
	"github.com/fentz26/tripassist/internal/models"
	"github.com/fentz26/tripassist/internal/notify"
	"github.com/fentz26/tripassist/internal/sessionstore"
)

// ServiceConfig holds the settings the service needs from configuration.
type ServiceConfig struct {
	// Discipline is config.DisciplineAsync or config.DisciplineSync.
	Discipline string
	// PublicBaseURL is used to build callback addresses in async mode.
	PublicBaseURL string
	// SessionTTL decides when an unknown session id is reported as not found.
	SessionTTL time.Duration
}

// Service provides the delivery core business logic.
type Service struct {
	cfg       ServiceConfig
	store     sessionstore.Store
	notifier  notify.Notifier
	engine    engine.Client
	validator *itinerary.Validator
	pdr       *audit.Recorder
	metrics   *metrics.Metrics
	logger    *logrus.Entry
	now       func() time.Time

	inflight sync.WaitGroup
}

// NewService creates a new service. eng may be nil when no engine URL is
// configured; submissions then fail with a configuration error.
func NewService(cfg ServiceConfig, st sessionstore.Store, n notify.Notifier, eng engine.Client,
	v *itinerary.Validator, pdr *audit.Recorder, m *metrics.Metrics) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = sessionstore.DefaultTTL
	}
	return &Service{
		cfg:       cfg,
		store:     st,
		notifier:  n,
		engine:    eng,
		validator: v,
		pdr:       pdr,
		metrics:   m,
		logger:    logging.NewLogger("gateway"),
		now:       time.Now,
	}
}

// Discipline returns the configured submission discipline.
func (s *Service) Discipline() string {
	return s.cfg.Discipline
}

// --- Submission ---

// Submit validates prefs and hands them to the engine using the configured
// discipline. In async mode the engine is called in the background and the result
// arrives through Callback; in sync mode the itinerary is read from the engine's
// response and no session is created.
func (s *Service) Submit(ctx context.Context, prefs *models.Preferences) (*models.Submission, error) {
	if err := prefs.Validate(); err != nil {
		return nil, err
	}

	var (
		sub *models.Submission
		err error
	)
	switch s.cfg.Discipline {
	case config.DisciplineAsync:
		sub, err = s.submitAsync(ctx, prefs)
	case config.DisciplineSync:
		sub, err = s.submitSync(ctx, prefs)
	default:
		err = apperr.Wrap(ErrUnknownDiscipline, apperr.CodeConfigInvalid,
			fmt.Sprintf("unknown submission discipline %q", s.cfg.Discipline))
	}

	s.metrics.Submissions.WithLabelValues(s.cfg.Discipline, metrics.Outcome(err)).Inc()
	return sub, err
}

func (s *Service) submitAsync(ctx context.Context, prefs *models.Preferences) (*models.Submission, error) {
	// Configuration is checked before any session or network activity.
	base, err := callback.Resolve(s.cfg.PublicBaseURL)
	if err != nil {
		return nil, err
	}
	if s.engine == nil {
		return nil, apperr.ConfigMissing("engine webhook URL")
	}

	id, err := sessionstore.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	if err := s.store.Create(ctx, id); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	req := &engine.Request{
		Preferences: *prefs,
		CallbackURL: callback.URL(base, id),
		SessionID:   id,
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.dispatch(context.WithoutCancel(ctx), req)
	}()

	s.pdr.Record(audit.ActionSubmit, prefs, "accepted", id, "mode=async")
	s.logger.WithFields(logrus.Fields{"session_id": id, "destination": prefs.Destination}).Info("Submitted itinerary request")

	return &models.Submission{Mode: models.SubmissionAsync, SessionID: id}, nil
}

// dispatch makes the single outbound call for an async session. A failed call
// fails the session so that pollers and streams do not wait for a callback that
// will never come, unless the engine's callback has already settled it.
func (s *Service) dispatch(ctx context.Context, req *engine.Request) {
	start := s.now()
	_, err := s.engine.Send(ctx, req)
	s.metrics.EngineDuration.WithLabelValues(config.DisciplineAsync).Observe(s.now().Sub(start).Seconds())
	if err == nil {
		return
	}

	log := s.logger.WithField("session_id", req.SessionID).WithError(err)
	log.Warn("Engine submission failed")

	result := models.FailedResult(models.FailureEngine, apperr.Message(err))
	applied, ferr := s.store.FailPending(ctx, req.SessionID, result.Error, result.Code)
	if ferr != nil {
		log.WithField("store_error", ferr).Error("Failed to record submission failure")
		return
	}
	if !applied {
		log.Info("Session already settled by callback; keeping its result")
		return
	}
	s.publish(ctx, req.SessionID, result)
	s.pdr.Record(audit.ActionSubmit, req.Preferences, "engine_error", req.SessionID, apperr.Message(err))
}

func (s *Service) submitSync(ctx context.Context, prefs *models.Preferences) (*models.Submission, error) {
	if s.engine == nil {
		return nil, apperr.ConfigMissing("engine webhook URL")
	}

	start := s.now()
	resp, err := s.engine.Send(ctx, &engine.Request{Preferences: *prefs})
	s.metrics.EngineDuration.WithLabelValues(config.DisciplineSync).Observe(s.now().Sub(start).Seconds())
	if err != nil {
		s.pdr.Record(audit.ActionSubmit, prefs, "engine_error", "", apperr.Message(err))
		return nil, err
	}

	raw, err := s.validator.ParseEngineResponse(resp.Body, &prefs.Dates)
	if err != nil {
		s.pdr.Record(audit.ActionSubmit, prefs, "invalid_response", "", apperr.Message(err))
		return nil, err
	}

	s.pdr.Record(audit.ActionSubmit, prefs, "completed", "", "mode=sync")
	return &models.Submission{Mode: models.SubmissionSync, Itinerary: raw}, nil
}

// Wait blocks until background engine calls have finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Delivery ---

// Status returns the client-facing state of a session. An unknown id is pending
// unless its embedded creation time is older than the session TTL, in which case
// it is reported as not found.
func (s *Service) Status(ctx context.Context, id string) (models.Result, error) {
	if id == "" {
		return models.Result{}, ErrMissingSessionID
	}
	sess, err := s.store.Read(ctx, id)
	if err != nil {
		return models.Result{}, err
	}
	if sess.Found {
		return sess.Result(), nil
	}
	if created, ok := sessionstore.IDTime(id); ok && s.now().Sub(created) > s.cfg.SessionTTL {
		return models.Result{
			Status: models.SessionStatusNotFound,
			Error:  apperr.NotFound(id).Message,
			Code:   models.FailureNotFound,
		}, nil
	}
	return models.PendingResult(), nil
}

// Subscribe registers a listener for id's result.
func (s *Service) Subscribe(id string) (<-chan models.Result, func()) {
	return s.notifier.Subscribe(id)
}

// --- Callback ---

// Callback records the engine's result for id and wakes listeners. The returned
// result is what was stored; an error means the id was unusable or the store
// write failed.
func (s *Service) Callback(ctx context.Context, id string, body []byte) (models.Result, error) {
	if id == "" {
		return models.Result{}, ErrMissingSessionID
	}
	if err := sessionstore.ValidateID(id); err != nil {
		return models.Result{}, err
	}

	out := s.validator.ParseCallback(body)
	result := out.Result()
	log := s.logger.WithField("session_id", id)

	var err error
	if out.Failed() {
		err = s.store.Fail(ctx, id, out.Message, out.Code)
	} else {
		err = s.store.Complete(ctx, id, out.Itinerary)
	}
	if err != nil {
		log.WithError(err).Error("Failed to store callback result")
		s.metrics.Callbacks.WithLabelValues("store_error").Inc()
		return models.Result{}, fmt.Errorf("store callback result: %w", err)
	}

	outcome := string(models.SessionStatusCompleted)
	if out.Failed() {
		outcome = string(out.Code)
		log.WithField("code", out.Code).Warnf("Callback recorded a failure: %s", out.Message)
	} else {
		log.Info("Callback recorded an itinerary")
	}
	s.metrics.Callbacks.WithLabelValues(outcome).Inc()
	s.pdr.Record(audit.ActionCallback, body, outcome, id, "")

	s.publish(ctx, id, result)
	return result, nil
}

func (s *Service) publish(ctx context.Context, id string, result models.Result) {
	if err := s.notifier.Publish(ctx, id, result); err != nil {
		s.logger.WithError(err).WithField("session_id", id).Warn("Failed to publish result")
	}
}

// --- Health ---

// CheckStore checks the store is reachable with a read.
func (s *Service) CheckStore(ctx context.Context) error {
	_, err := s.store.Read(ctx, "healthcheck")
	return err
}
