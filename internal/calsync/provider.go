// Package calsync synchronizes the family calendar with Google Calendar and
// Microsoft Outlook calendars.
//
// Both providers share the calendar_sync_config and synced_calendar_events
// tables. Microsoft rows are told apart only by the "outlook_" prefix on
// calendar_id and on ledger ids.
package calsync

import (
	"context"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/jw6ventures/lifeos/internal/store"
)

// MicrosoftPrefix marks Microsoft config rows and ledger ids.
const MicrosoftPrefix = "outlook_"

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// Event is a calendar entry in provider-neutral form.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         *time.Time
	AllDay      bool
}

// ItemKind tags the outcome of decoding one remote calendar item.
type ItemKind int

const (
	ItemValid ItemKind = iota
	ItemMalformed
	ItemCancelled
)

func (k ItemKind) String() string {
	switch k {
	case ItemValid:
		return "valid"
	case ItemMalformed:
		return "malformed"
	case ItemCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// RemoteItem is a decoded remote event. Event is only meaningful when Kind
// is ItemValid; Reason explains any other kind.
type RemoteItem struct {
	Kind   ItemKind
	Event  Event
	Reason string
}

func valid(ev Event) RemoteItem          { return RemoteItem{Kind: ItemValid, Event: ev} }
func malformed(reason string) RemoteItem { return RemoteItem{Kind: ItemMalformed, Reason: reason} }
func cancelled(id string) RemoteItem {
	return RemoteItem{Kind: ItemCancelled, Event: Event{ID: id}, Reason: "cancelled"}
}

// Credentials are the OAuth client id and secret for one provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Provider is one remote calendar service.
type Provider interface {
	// Name is the short identifier used in metrics and lock keys.
	Name() string
	// DisplayName appears in the sync result message.
	DisplayName() string
	// CalendarID is written to calendar_sync_config.calendar_id.
	CalendarID() string
	// OwnsConfig reports whether a config row belongs to this provider.
	OwnsConfig(calendarID string) bool
	// LedgerID maps a remote event id to the id stored in the ledger.
	LedgerID(remoteID string) string
	// OwnsLedgerID reports whether a ledger id was written by this provider.
	OwnsLedgerID(ledgerID string) bool
	// SecretNames are the app_secrets rows holding the client id and secret.
	SecretNames() (clientID, clientSecret string)
	// OAuthConfig builds the authorization-code configuration.
	OAuthConfig(creds Credentials, redirectURI string) *oauth2.Config
	// AuthCodeOptions are extra parameters for the consent URL.
	AuthCodeOptions() []oauth2.AuthCodeOption
	// ListEvents returns every item starting in [from, to], following pagination.
	ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]RemoteItem, error)
	// CreateEvent creates ev remotely and returns the provider's id, which
	// may be empty when the response carried none.
	CreateEvent(ctx context.Context, accessToken string, ev Event) (string, error)
}

// SelectConfig returns the provider's row from all of a user's rows.
func SelectConfig(p Provider, configs []store.CalendarSyncConfig) *store.CalendarSyncConfig {
	for i := range configs {
		if p.OwnsConfig(configs[i].CalendarID) {
			return &configs[i]
		}
	}
	return nil
}

func isMicrosoftID(id string) bool {
	return strings.HasPrefix(id, MicrosoftPrefix)
}

// endpointFor applies URL overrides to a provider's default endpoint.
// Client credentials always go in the request body: with AuthStyleUnknown
// x/oauth2 repeats a failed token request in the other style.
func endpointFor(def oauth2.Endpoint, authURL, tokenURL string) oauth2.Endpoint {
	ep := def
	ep.AuthStyle = oauth2.AuthStyleInParams
	if authURL != "" {
		ep.AuthURL = authURL
	}
	if tokenURL != "" {
		ep.TokenURL = tokenURL
	}
	return ep
}

// maxPages bounds pagination through remote listings.
const maxPages = 20

func defaultEnd(ev Event) time.Time {
	if ev.End != nil && ev.End.After(ev.Start) {
		return *ev.End
	}
	if ev.AllDay {
		return ev.Start.AddDate(0, 0, 1)
	}
	return ev.Start.Add(time.Hour)
}

func titleOrDefault(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return "Untitled event"
}
