package calsync

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var googleScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/calendar.events",
}

// Google talks to Google Calendar API v3 on the user's primary calendar.
type Google struct {
	api      *resty.Client
	authURL  string
	tokenURL string
}

// NewGoogle returns a Google provider. Empty auth and token URLs use
// Google's public endpoints.
func NewGoogle(apiBaseURL, authURL, tokenURL string) *Google {
	api := resty.New().
		SetBaseURL(strings.TrimRight(apiBaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(30 * time.Second)
	return &Google{api: api, authURL: authURL, tokenURL: tokenURL}
}

func (g *Google) Name() string                      { return ProviderGoogle }
func (g *Google) DisplayName() string               { return "Google Calendar" }
func (g *Google) CalendarID() string                { return "primary" }
func (g *Google) OwnsConfig(calendarID string) bool { return !isMicrosoftID(calendarID) }
func (g *Google) LedgerID(remoteID string) string   { return remoteID }
func (g *Google) OwnsLedgerID(ledgerID string) bool { return !isMicrosoftID(ledgerID) }

func (g *Google) SecretNames() (string, string) {
	return "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"
}

func (g *Google) OAuthConfig(creds Credentials, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     endpointFor(endpoints.Google, g.authURL, g.tokenURL),
		RedirectURL:  redirectURI,
		Scopes:       googleScopes,
	}
}

func (g *Google) AuthCodeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}
}

type googleEventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type googleEvent struct {
	ID          string           `json:"id,omitempty"`
	Status      string           `json:"status,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Description string           `json:"description,omitempty"`
	Location    string           `json:"location,omitempty"`
	Start       *googleEventTime `json:"start,omitempty"`
	End         *googleEventTime `json:"end,omitempty"`
}

type googleEventList struct {
	Items         []googleEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken"`
}

type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Google) ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]RemoteItem, error) {
	var items []RemoteItem
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		req := g.api.R().
			SetContext(ctx).
			SetAuthToken(accessToken).
			SetQueryParams(map[string]string{
				"timeMin":      from.UTC().Format(time.RFC3339),
				"timeMax":      to.UTC().Format(time.RFC3339),
				"singleEvents": "true",
				"orderBy":      "startTime",
				"maxResults":   "250",
			}).
			SetPathParam("calendarId", g.CalendarID()).
			SetResult(&googleEventList{}).
			SetError(&googleErrorBody{})
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}

		resp, err := req.Get("/calendars/{calendarId}/events")
		if err != nil {
			return nil, fmt.Errorf("list google events: %w", err)
		}
		if resp.IsError() {
			return nil, googleError(resp)
		}

		list := resp.Result().(*googleEventList)
		for _, ev := range list.Items {
			items = append(items, decodeGoogleEvent(ev))
		}
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}
	return items, nil
}

func (g *Google) CreateEvent(ctx context.Context, accessToken string, ev Event) (string, error) {
	resp, err := g.api.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParam("calendarId", g.CalendarID()).
		SetBody(encodeGoogleEvent(ev)).
		SetResult(&googleEvent{}).
		SetError(&googleErrorBody{}).
		Post("/calendars/{calendarId}/events")
	if err != nil {
		return "", fmt.Errorf("create google event: %w", err)
	}
	if resp.IsError() {
		return "", googleError(resp)
	}
	return resp.Result().(*googleEvent).ID, nil
}

func decodeGoogleEvent(ev googleEvent) RemoteItem {
	if ev.Status == "cancelled" {
		return cancelled(ev.ID)
	}
	if ev.ID == "" {
		return malformed("missing id")
	}
	start, allDay, err := parseGoogleTime(ev.Start)
	if err != nil {
		return malformed("start: " + err.Error())
	}
	out := Event{
		ID:          ev.ID,
		Title:       titleOrDefault(ev.Summary),
		Description: ev.Description,
		Location:    ev.Location,
		Start:       start,
		AllDay:      allDay,
	}
	if end, _, err := parseGoogleTime(ev.End); err == nil {
		out.End = &end
	}
	return valid(out)
}

func parseGoogleTime(t *googleEventTime) (time.Time, bool, error) {
	switch {
	case t == nil:
		return time.Time{}, false, fmt.Errorf("missing")
	case t.DateTime != "":
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v, false, err
	case t.Date != "":
		v, err := time.Parse(time.DateOnly, t.Date)
		return v, true, err
	default:
		return time.Time{}, false, fmt.Errorf("empty")
	}
}

// encodeGoogleEvent uses date fields for all-day events, whose end date is
// exclusive.
func encodeGoogleEvent(ev Event) googleEvent {
	end := defaultEnd(ev)
	out := googleEvent{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
	}
	if ev.AllDay {
		startDay := ev.Start.UTC().Format(time.DateOnly)
		endDay := end.UTC().Format(time.DateOnly)
		if endDay <= startDay {
			endDay = ev.Start.UTC().AddDate(0, 0, 1).Format(time.DateOnly)
		}
		out.Start = &googleEventTime{Date: startDay}
		out.End = &googleEventTime{Date: endDay}
		return out
	}
	out.Start = &googleEventTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"}
	out.End = &googleEventTime{DateTime: end.UTC().Format(time.RFC3339), TimeZone: "UTC"}
	return out
}

func googleError(resp *resty.Response) error {
	msg := http.StatusText(resp.StatusCode())
	if body, ok := resp.Error().(*googleErrorBody); ok && body.Error.Message != "" {
		msg = body.Error.Message
	}
	return &ProviderError{Provider: ProviderGoogle, Status: resp.StatusCode(), Message: msg}
}
