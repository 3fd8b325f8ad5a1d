package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender sends invites through the Gmail API
type GmailSender struct {
	service *gmail.Service
	from    string
	appURL  string
}

// NewGmailSender creates a sender from an OAuth client credentials file and
// a previously authorized token file
func NewGmailSender(ctx context.Context, credentialsPath, tokenPath, from, appURL string) (*GmailSender, error) {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return nil, err
	}

	tok, err := tokenFromFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read token file %s (run with -gmail-auth first): %w", tokenPath, err)
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}

	return &GmailSender{service: srv, from: from, appURL: appURL}, nil
}

// Authorize runs the interactive OAuth consent flow and saves the token
func Authorize(ctx context.Context, credentialsPath, tokenPath string, in io.Reader, out io.Writer) error {
	config, err := loadOAuthConfig(credentialsPath)
	if err != nil {
		return err
	}

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser then type the authorization code: \n%v\n", authURL)

	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return fmt.Errorf("unable to read authorization code: %w", err)
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("unable to retrieve token from web: %w", err)
	}
	return saveToken(tokenPath, tok)
}

func loadOAuthConfig(credentialsPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return config, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Notify implements Notifier
func (gs *GmailSender) Notify(ctx context.Context, inv Invite) error {
	if inv.AppURL == "" {
		inv.AppURL = gs.appURL
	}

	msg := &gmail.Message{Raw: encodeMessage(gs.from, inv)}
	if _, err := gs.service.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to send session code to %s: %w", inv.Email, err)
	}
	return nil
}

// encodeMessage builds the base64url RFC 2822 message the Gmail API expects
func encodeMessage(from string, inv Invite) string {
	var sb strings.Builder
	if from != "" {
		sb.WriteString(fmt.Sprintf("From: \"Interview Agent\" <%s>\r\n", from))
	}
	sb.WriteString(fmt.Sprintf("To: %s\r\n", inv.Email))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", Subject(inv)))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	sb.WriteString(Body(inv))
	return base64.URLEncoding.EncodeToString([]byte(sb.String()))
}
