package ingestion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSource is the provenance label of CVs harvested from Gmail
const GmailSource = "Gmail"

const gmailUser = "me"

// GmailMailbox reads messages and attachments through the Gmail API
type GmailMailbox struct {
	service *gmail.Service
}

// NewGmailMailbox creates a mailbox backed by an authorized HTTP client.
// Extra options, such as option.WithEndpoint, are passed to the Gmail client.
func NewGmailMailbox(ctx context.Context, client *http.Client, opts ...option.ClientOption) (*GmailMailbox, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail client: %w", err)
	}

	return &GmailMailbox{service: srv}, nil
}

// Search lists the ids of messages matching a Gmail query
func (gm *GmailMailbox) Search(ctx context.Context, query string, limit int64) ([]string, error) {
	r, err := gm.service.Users.Messages.List(gmailUser).Q(query).MaxResults(limit).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %w", err)
	}

	ids := make([]string, 0, len(r.Messages))
	for _, msg := range r.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// Message fetches one message with its full part tree
func (gm *GmailMailbox) Message(ctx context.Context, id string) (*models.MailMessage, error) {
	message, err := gm.service.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message %s: %w", id, err)
	}

	msg := &models.MailMessage{
		ID:      message.Id,
		Headers: make(map[string]string),
	}
	if message.InternalDate > 0 {
		msg.Received = time.UnixMilli(message.InternalDate).UTC()
	}

	if message.Payload != nil {
		for _, header := range message.Payload.Headers {
			key := strings.ToLower(header.Name)
			if _, ok := msg.Headers[key]; !ok {
				msg.Headers[key] = header.Value
			}
		}
		msg.Payload = convertPart(message.Payload)
	}

	return msg, nil
}

// Attachment downloads and decodes one attachment body
func (gm *GmailMailbox) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	attachment, err := gm.service.Users.Messages.Attachments.Get(gmailUser, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve attachment: %w", err)
	}

	data, err := decodeAttachment(attachment.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode attachment: %w", err)
	}
	return data, nil
}

// decodeAttachment accepts base64url with or without padding
func decodeAttachment(data string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

func convertPart(part *gmail.MessagePart) models.MessagePart {
	out := models.MessagePart{
		PartID:   part.PartId,
		Filename: part.Filename,
		MimeType: part.MimeType,
	}
	if part.Body != nil {
		out.AttachmentID = part.Body.AttachmentId
	}

	for _, child := range part.Parts {
		if child != nil {
			out.Parts = append(out.Parts, convertPart(child))
		}
	}
	return out
}

// OAuthConfigFromFile reads a Google client secret file for read-only Gmail access
func OAuthConfigFromFile(path string) (*oauth2.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}
	return cfg, nil
}

// TokenFromFile retrieves a token from a local file
func TokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("unable to parse token file: %w", err)
	}
	return tok, nil
}

// SaveToken saves a token to a file path
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}
