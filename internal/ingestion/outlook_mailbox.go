package ingestion

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fmuoria/cv-inbox-screener/internal/models"
)

// OutlookSource is the provenance label of CVs harvested from Outlook
const OutlookSource = "Outlook"

// GraphBaseURL is the Microsoft Graph endpoint used by default
const GraphBaseURL = "https://graph.microsoft.com/v1.0"

const fileAttachmentType = "#microsoft.graph.fileAttachment"

// OutlookMailbox reads messages and attachments through Microsoft Graph.
// Graph has no keyword search over attachments, so only the newer_than part
// of a query is honoured and every query selects messages with attachments.
type OutlookMailbox struct {
	client  *http.Client
	baseURL string
	now     func() time.Time
}

// NewOutlookMailbox creates a mailbox backed by an authorized HTTP client.
// An empty baseURL selects GraphBaseURL.
func NewOutlookMailbox(client *http.Client, baseURL string) *OutlookMailbox {
	if baseURL == "" {
		baseURL = GraphBaseURL
	}
	return &OutlookMailbox{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

type graphEmailAddress struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphMessage struct {
	ID               string             `json:"id"`
	ReceivedDateTime time.Time          `json:"receivedDateTime"`
	From             *graphEmailAddress `json:"from"`
}

type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search lists the ids of messages with attachments inside the query's
// newer_than window
func (om *OutlookMailbox) Search(ctx context.Context, query string, limit int64) ([]string, error) {
	filter := "hasAttachments eq true"
	if m := newerThan.FindStringSubmatch(query); m != nil {
		days, _ := strconv.Atoi(m[1])
		cutoff := om.now().UTC().AddDate(0, 0, -days)
		filter += " and receivedDateTime ge " + cutoff.Format(time.RFC3339)
	}

	params := url.Values{
		"$filter": {filter},
		"$select": {"id"},
		"$top":    {strconv.FormatInt(limit, 10)},
	}

	var page struct {
		Value []graphMessage `json:"value"`
	}
	if err := om.get(ctx, "/me/messages?"+params.Encode(), &page); err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %w", err)
	}

	ids := make([]string, 0, len(page.Value))
	for _, msg := range page.Value {
		ids = append(ids, msg.ID)
	}
	return ids, nil
}

// Message fetches the sender of one message and lists its file attachments
// as children of a multipart payload
func (om *OutlookMailbox) Message(ctx context.Context, id string) (*models.MailMessage, error) {
	base := "/me/messages/" + url.PathEscape(id)

	var message graphMessage
	if err := om.get(ctx, base+"?"+url.Values{"$select": {"id,from,receivedDateTime"}}.Encode(), &message); err != nil {
		return nil, fmt.Errorf("unable to retrieve message %s: %w", id, err)
	}

	var attachments struct {
		Value []graphAttachment `json:"value"`
	}
	if err := om.get(ctx, base+"/attachments?"+url.Values{"$select": {"id,name,contentType"}}.Encode(), &attachments); err != nil {
		return nil, fmt.Errorf("unable to list attachments of %s: %w", id, err)
	}

	msg := &models.MailMessage{
		ID:       message.ID,
		Headers:  make(map[string]string),
		Received: message.ReceivedDateTime,
		Payload:  models.MessagePart{MimeType: "multipart/mixed"},
	}
	if msg.ID == "" {
		msg.ID = id
	}
	if message.From != nil && message.From.EmailAddress.Address != "" {
		msg.Headers["from"] = message.From.EmailAddress.Address
	}

	for i, att := range attachments.Value {
		// Item and reference attachments carry no bytes.
		if att.ODataType != "" && att.ODataType != fileAttachmentType {
			continue
		}
		msg.Payload.Parts = append(msg.Payload.Parts, models.MessagePart{
			PartID:       strconv.Itoa(i),
			Filename:     att.Name,
			MimeType:     att.ContentType,
			AttachmentID: att.ID,
		})
	}

	return msg, nil
}

// Attachment downloads one file attachment and decodes its content
func (om *OutlookMailbox) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	path := "/me/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(attachmentID)

	var att graphAttachment
	if err := om.get(ctx, path, &att); err != nil {
		return nil, fmt.Errorf("unable to retrieve attachment: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return nil, fmt.Errorf("unable to decode attachment: %w", err)
	}
	return data, nil
}

func (om *OutlookMailbox) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, om.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := om.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ge graphError
		if json.Unmarshal(body, &ge) == nil && ge.Error.Code != "" {
			return fmt.Errorf("graph returned %d: %s: %s", resp.StatusCode, ge.Error.Code, ge.Error.Message)
		}
		return fmt.Errorf("graph returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("unable to decode graph response: %w", err)
	}
	return nil
}
