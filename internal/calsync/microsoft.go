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

var microsoftScopes = []string{"offline_access", "Calendars.ReadWrite", "User.Read"}

// graphTimeLayout is how Graph renders dateTime under outlook.timezone="UTC".
const graphTimeLayout = "2006-01-02T15:04:05.9999999"

// Microsoft talks to Microsoft Graph v1.0 on the signed-in user's calendar.
type Microsoft struct {
	api      *resty.Client
	tenant   string
	authURL  string
	tokenURL string
}

// NewMicrosoft returns a Microsoft provider. Empty auth and token URLs use
// the Azure AD endpoints for tenant.
func NewMicrosoft(apiBaseURL, tenant, authURL, tokenURL string) *Microsoft {
	if tenant == "" {
		tenant = "common"
	}
	api := resty.New().
		SetBaseURL(strings.TrimRight(apiBaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Prefer", `outlook.timezone="UTC"`).
		SetTimeout(30 * time.Second)
	return &Microsoft{api: api, tenant: tenant, authURL: authURL, tokenURL: tokenURL}
}

func (m *Microsoft) Name() string                      { return ProviderMicrosoft }
func (m *Microsoft) DisplayName() string               { return "Outlook" }
func (m *Microsoft) CalendarID() string                { return MicrosoftPrefix + "primary" }
func (m *Microsoft) OwnsConfig(calendarID string) bool { return isMicrosoftID(calendarID) }
func (m *Microsoft) LedgerID(remoteID string) string   { return MicrosoftPrefix + remoteID }
func (m *Microsoft) OwnsLedgerID(ledgerID string) bool { return isMicrosoftID(ledgerID) }

func (m *Microsoft) SecretNames() (string, string) {
	return "MICROSOFT_CLIENT_ID", "MICROSOFT_CLIENT_SECRET"
}

func (m *Microsoft) OAuthConfig(creds Credentials, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     endpointFor(endpoints.AzureAD(m.tenant), m.authURL, m.tokenURL),
		RedirectURL:  redirectURI,
		Scopes:       microsoftScopes,
	}
}

func (m *Microsoft) AuthCodeOptions() []oauth2.AuthCodeOption { return nil }

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphEvent struct {
	ID          string         `json:"id,omitempty"`
	Subject     string         `json:"subject,omitempty"`
	BodyPreview string         `json:"bodyPreview,omitempty"`
	Body        *graphBody     `json:"body,omitempty"`
	Location    *graphLocation `json:"location,omitempty"`
	Start       *graphDateTime `json:"start,omitempty"`
	End         *graphDateTime `json:"end,omitempty"`
	IsAllDay    bool           `json:"isAllDay"`
	IsCancelled bool           `json:"isCancelled,omitempty"`
}

type graphEventList struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

type graphErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (m *Microsoft) ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]RemoteItem, error) {
	var items []RemoteItem
	req := m.api.R().
		SetQueryParams(map[string]string{
			"startDateTime": from.UTC().Format(time.RFC3339),
			"endDateTime":   to.UTC().Format(time.RFC3339),
			"$top":          "100",
		})
	url := "/me/calendarView"

	for page := 0; page < maxPages; page++ {
		resp, err := req.
			SetContext(ctx).
			SetAuthToken(accessToken).
			SetResult(&graphEventList{}).
			SetError(&graphErrorBody{}).
			Get(url)
		if err != nil {
			return nil, fmt.Errorf("list outlook events: %w", err)
		}
		if resp.IsError() {
			return nil, graphError(resp)
		}

		list := resp.Result().(*graphEventList)
		for _, ev := range list.Value {
			items = append(items, decodeGraphEvent(ev))
		}
		if list.NextLink == "" {
			break
		}
		// nextLink is absolute and already carries every query parameter.
		url = list.NextLink
		req = m.api.R()
	}
	return items, nil
}

func (m *Microsoft) CreateEvent(ctx context.Context, accessToken string, ev Event) (string, error) {
	resp, err := m.api.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetBody(encodeGraphEvent(ev)).
		SetResult(&graphEvent{}).
		SetError(&graphErrorBody{}).
		Post("/me/events")
	if err != nil {
		return "", fmt.Errorf("create outlook event: %w", err)
	}
	if resp.IsError() {
		return "", graphError(resp)
	}
	return resp.Result().(*graphEvent).ID, nil
}

func decodeGraphEvent(ev graphEvent) RemoteItem {
	if ev.IsCancelled {
		return cancelled(ev.ID)
	}
	if ev.ID == "" {
		return malformed("missing id")
	}
	start, err := parseGraphTime(ev.Start)
	if err != nil {
		return malformed("start: " + err.Error())
	}
	out := Event{
		ID:     ev.ID,
		Title:  titleOrDefault(ev.Subject),
		Start:  start,
		AllDay: ev.IsAllDay,
	}
	if ev.Body != nil && strings.EqualFold(ev.Body.ContentType, "text") {
		out.Description = ev.Body.Content
	} else {
		out.Description = ev.BodyPreview
	}
	if ev.Location != nil {
		out.Location = ev.Location.DisplayName
	}
	if end, err := parseGraphTime(ev.End); err == nil {
		out.End = &end
	}
	return valid(out)
}

func parseGraphTime(t *graphDateTime) (time.Time, error) {
	if t == nil || t.DateTime == "" {
		return time.Time{}, fmt.Errorf("missing")
	}
	loc := time.UTC
	if t.TimeZone != "" && !strings.EqualFold(t.TimeZone, "UTC") {
		if l, err := time.LoadLocation(t.TimeZone); err == nil {
			loc = l
		}
	}
	return time.ParseInLocation(graphTimeLayout, t.DateTime, loc)
}

// encodeGraphEvent writes times in UTC. All-day events must start and end
// at midnight.
func encodeGraphEvent(ev Event) graphEvent {
	start := ev.Start.UTC()
	end := defaultEnd(ev).UTC()
	if ev.AllDay {
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
		if !endDay.After(start) {
			endDay = start.AddDate(0, 0, 1)
		}
		end = endDay
	}
	out := graphEvent{
		Subject:  ev.Title,
		Start:    &graphDateTime{DateTime: start.Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		End:      &graphDateTime{DateTime: end.Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		IsAllDay: ev.AllDay,
	}
	if ev.Description != "" {
		out.Body = &graphBody{ContentType: "text", Content: ev.Description}
	}
	if ev.Location != "" {
		out.Location = &graphLocation{DisplayName: ev.Location}
	}
	return out
}

func graphError(resp *resty.Response) error {
	msg := http.StatusText(resp.StatusCode())
	if body, ok := resp.Error().(*graphErrorBody); ok && body.Error.Message != "" {
		msg = body.Error.Message
	}
	return &ProviderError{Provider: ProviderMicrosoft, Status: resp.StatusCode(), Message: msg}
}
