package google

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	drive "google.golang.org/api/drive/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/toolbridge/internal/authcore"
)

// HTTPClient returns an HTTP client that sends the access token as a
// bearer token. The client forces HTTP/1.1 to avoid HTTP/2 protocol
// errors some Google endpoints produce on long-lived streams.
func HTTPClient(ctx context.Context, creds *authcore.Credentials) *http.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: creds.AccessToken,
		TokenType:   "Bearer",
		Expiry:      creds.ExpiresAt,
	})
	client := oauth2.NewClient(ctx, ts)
	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{ForceAttemptHTTP2: false}
	}
	return client
}

// NewCalendarService builds a Calendar API client from credentials.
func NewCalendarService(ctx context.Context, creds *authcore.Credentials) (*calendar.Service, error) {
	return calendar.NewService(ctx, option.WithHTTPClient(HTTPClient(ctx, creds)))
}

// NewGmailService builds a Gmail API client from credentials.
func NewGmailService(ctx context.Context, creds *authcore.Credentials) (*gmail.Service, error) {
	return gmail.NewService(ctx, option.WithHTTPClient(HTTPClient(ctx, creds)))
}

// NewDriveService builds a Drive API client from credentials.
func NewDriveService(ctx context.Context, creds *authcore.Credentials) (*drive.Service, error) {
	return drive.NewService(ctx, option.WithHTTPClient(HTTPClient(ctx, creds)))
}
