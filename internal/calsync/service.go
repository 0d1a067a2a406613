package calsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jw6ventures/lifeos/internal/metrics"
	"github.com/jw6ventures/lifeos/internal/store"
	"github.com/jw6ventures/lifeos/internal/tokenbox"
)

// SyncWindow is how far before and after now events are pulled and pushed.
const SyncWindow = 30 * 24 * time.Hour

// Options configures a Service.
type Options struct {
	// Box seals tokens at rest. Nil stores them as given.
	Box *tokenbox.Box
	// Fallback holds credentials from the environment, keyed by secret name.
	Fallback map[string]string
	// HTTPClient is used for token endpoint calls when set.
	HTTPClient *http.Client
	// Now overrides the clock.
	Now func() time.Time
}

// Service runs the OAuth and sync flows for any Provider.
type Service struct {
	store      *store.Store
	box        *tokenbox.Box
	fallback   map[string]string
	httpClient *http.Client
	now        func() time.Time
}

func NewService(st *store.Store, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      st,
		box:        opts.Box,
		fallback:   opts.Fallback,
		httpClient: opts.HTTPClient,
		now:        now,
	}
}

// Result summarizes one sync run.
type Result struct {
	Provider string
	Pulled   int
	Pushed   int
	Skipped  int
	Failed   int
}

func (r Result) Message() string {
	return fmt.Sprintf("Synced %d events from %s and pushed %d events to %s", r.Pulled, r.Provider, r.Pushed, r.Provider)
}

func (s *Service) oauthContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// AuthURL builds the consent URL. The user id travels in state so the
// callback can be attributed without a server-side session.
func (s *Service) AuthURL(ctx context.Context, p Provider, userID uuid.UUID, redirectURI string) (string, error) {
	creds, err := resolveCredentials(ctx, s.store.Secrets, s.fallback, p)
	if err != nil {
		return "", err
	}
	return p.OAuthConfig(creds, redirectURI).AuthCodeURL(userID.String(), p.AuthCodeOptions()...), nil
}

// ExchangeCode trades an authorization code for tokens and stores them on
// the user's config row for p.
func (s *Service) ExchangeCode(ctx context.Context, p Provider, userID uuid.UUID, code, redirectURI string) error {
	if code == "" {
		return ErrMissingCode
	}
	creds, err := resolveCredentials(ctx, s.store.Secrets, s.fallback, p)
	if err != nil {
		return err
	}

	tok, err := p.OAuthConfig(creds, redirectURI).Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return tokenError(p, err)
	}

	access, err := s.box.Seal(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.box.Seal(tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	_, err = s.store.SyncConfigs.Upsert(ctx, store.CalendarSyncConfig{
		UserID:         userID,
		CalendarID:     p.CalendarID(),
		AccessToken:    access,
		RefreshToken:   refresh,
		TokenExpiresAt: s.expiry(tok),
		SyncEnabled:    true,
	})
	if err != nil {
		return fmt.Errorf("save %s connection: %w", p.Name(), err)
	}
	zerolog.Ctx(ctx).Info().Str("provider", p.Name()).Str("user_id", userID.String()).Msg("calendar connected")
	return nil
}

// Sync reconciles the user's family calendar with p in both directions.
func (s *Service) Sync(ctx context.Context, p Provider, userID uuid.UUID) (result *Result, err error) {
	logger := zerolog.Ctx(ctx).With().Str("provider", p.Name()).Str("user_id", userID.String()).Logger()
	defer func() {
		switch {
		case err == nil:
			metrics.ObserveSyncRun(p.Name(), "success")
		case errors.Is(err, ErrSyncInProgress):
			metrics.ObserveSyncRun(p.Name(), "busy")
		default:
			metrics.ObserveSyncRun(p.Name(), "error")
		}
	}()

	if s.store.Locks != nil {
		release, acquired, err := s.store.Locks.TryLock(ctx, "calendar-sync:"+p.Name()+":"+userID.String())
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, ErrSyncInProgress
		}
		defer release()
	}

	configs, err := s.store.SyncConfigs.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg := SelectConfig(p, configs)
	if cfg == nil {
		return nil, ErrNotConnected
	}

	accessToken, err := s.accessToken(ctx, p, cfg, &logger)
	if err != nil {
		return nil, err
	}

	now := s.now()
	from, to := now.Add(-SyncWindow), now.Add(SyncWindow)

	refs, err := s.store.SyncedEvents.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ledgered := make(map[string]bool)
	pushedLocal := make(map[uuid.UUID]bool)
	for _, ref := range refs {
		ledgered[ref.RemoteEventID] = true
		if p.OwnsLedgerID(ref.RemoteEventID) {
			pushedLocal[ref.LocalEventID] = true
		}
	}

	result = &Result{Provider: p.DisplayName()}

	items, err := p.ListEvents(ctx, accessToken, from, to)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Kind != ItemValid {
			result.Skipped++
			logger.Debug().Str("kind", item.Kind.String()).Str("reason", item.Reason).Str("remote_id", item.Event.ID).Msg("skipping remote event")
			continue
		}
		ledgerID := p.LedgerID(item.Event.ID)
		if ledgered[ledgerID] {
			continue
		}

		created, err := s.store.FamilyEvents.Create(ctx, localEvent(userID, item.Event))
		if err != nil {
			return nil, err
		}
		if err := s.store.SyncedEvents.Upsert(ctx, store.SyncedEventRef{
			UserID:        userID,
			RemoteEventID: ledgerID,
			LocalEventID:  created.ID,
		}); err != nil {
			return nil, err
		}
		ledgered[ledgerID] = true
		pushedLocal[created.ID] = true
		result.Pulled++
	}

	locals, err := s.store.FamilyEvents.ListInWindow(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}
	for _, local := range locals {
		if pushedLocal[local.ID] {
			continue
		}
		remoteID, err := p.CreateEvent(ctx, accessToken, remoteEvent(local))
		if err != nil {
			result.Failed++
			logger.Warn().Err(err).Str("local_event_id", local.ID.String()).Msg("push event failed")
			continue
		}
		if remoteID == "" {
			result.Failed++
			continue
		}
		if err := s.store.SyncedEvents.Upsert(ctx, store.SyncedEventRef{
			UserID:        userID,
			RemoteEventID: p.LedgerID(remoteID),
			LocalEventID:  local.ID,
		}); err != nil {
			return nil, err
		}
		pushedLocal[local.ID] = true
		result.Pushed++
	}

	if err := s.store.SyncConfigs.TouchLastSync(ctx, cfg.ID, now); err != nil {
		return nil, err
	}

	metrics.AddSyncedEvents(p.Name(), "pull", result.Pulled)
	metrics.AddSyncedEvents(p.Name(), "push", result.Pushed)
	logger.Info().Int("pulled", result.Pulled).Int("pushed", result.Pushed).
		Int("skipped", result.Skipped).Int("failed", result.Failed).Msg("calendar sync finished")
	return result, nil
}

// accessToken returns a usable access token, refreshing it when the stored
// expiry has passed or is unknown. A failed refresh falls back to the
// stored token.
func (s *Service) accessToken(ctx context.Context, p Provider, cfg *store.CalendarSyncConfig, logger *zerolog.Logger) (string, error) {
	access, err := s.box.Open(cfg.AccessToken)
	if err != nil {
		return "", fmt.Errorf("open access token: %w", err)
	}
	if cfg.TokenExpiresAt != nil && cfg.TokenExpiresAt.After(s.now()) {
		return access, nil
	}

	refresh, err := s.box.Open(cfg.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("open refresh token: %w", err)
	}
	if refresh == "" {
		logger.Warn().Msg("token expired and no refresh token stored")
		return access, nil
	}

	tok, err := s.refresh(ctx, p, refresh)
	metrics.ObserveTokenRefresh(p.Name(), err)
	if err != nil {
		logger.Warn().Err(err).Msg("token refresh failed; using stored token")
		return access, nil
	}

	sealedAccess, err := s.box.Seal(tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("seal access token: %w", err)
	}
	rotated := ""
	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		if rotated, err = s.box.Seal(tok.RefreshToken); err != nil {
			return "", fmt.Errorf("seal refresh token: %w", err)
		}
	}
	expiresAt := s.now().Add(time.Hour)
	if exp := s.expiry(tok); exp != nil {
		expiresAt = *exp
	}
	if err := s.store.SyncConfigs.UpdateTokens(ctx, cfg.ID, sealedAccess, rotated, expiresAt); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (s *Service) refresh(ctx context.Context, p Provider, refreshToken string) (*oauth2.Token, error) {
	creds, err := resolveCredentials(ctx, s.store.Secrets, s.fallback, p)
	if err != nil {
		return nil, err
	}
	src := p.OAuthConfig(creds, "").TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError(p, err)
	}
	return tok, nil
}

// expiry is now + expires_in, or the library's computed expiry when the
// response did not carry expires_in.
func (s *Service) expiry(tok *oauth2.Token) *time.Time {
	var at time.Time
	switch secs := expiresIn(tok); {
	case secs > 0:
		at = s.now().Add(time.Duration(secs) * time.Second)
	case !tok.Expiry.IsZero():
		at = tok.Expiry
	default:
		return nil
	}
	return &at
}

func expiresIn(tok *oauth2.Token) int64 {
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn
	}
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func tokenError(p Provider, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = string(re.Body)
		}
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &ProviderError{Provider: p.Name(), Status: status, Message: msg}
	}
	return fmt.Errorf("%s token request: %w", p.Name(), err)
}

func localEvent(userID uuid.UUID, ev Event) store.FamilyEvent {
	out := store.FamilyEvent{
		UserID:    userID,
		Title:     ev.Title,
		EventType: store.EventTypeAppointment,
		StartsAt:  ev.Start,
		EndsAt:    ev.End,
		AllDay:    ev.AllDay,
	}
	if ev.Description != "" {
		d := ev.Description
		out.Description = &d
	}
	if ev.Location != "" {
		l := ev.Location
		out.Location = &l
	}
	return out
}

func remoteEvent(ev store.FamilyEvent) Event {
	out := Event{
		Title:  titleOrDefault(ev.Title),
		Start:  ev.StartsAt,
		End:    ev.EndsAt,
		AllDay: ev.AllDay,
	}
	if ev.Description != nil {
		out.Description = *ev.Description
	}
	if ev.Location != nil {
		out.Location = *ev.Location
	}
	return out
}
