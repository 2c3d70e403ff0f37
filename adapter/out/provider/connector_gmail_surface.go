package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/rish231294/pipeshub-ai/core/domain"
	"github.com/rish231294/pipeshub-ai/core/port/out"
)

// =============================================================================
// Gmail Surface
// =============================================================================

// gmailSurface implements out.MailSurface for one impersonated mailbox.
type gmailSurface struct {
	svc   *gmail.Service
	email string
	call  *apiCall
}

func newGmailSurface(svc *gmail.Service, email string, call *apiCall) *gmailSurface {
	return &gmailSurface{svc: svc, email: email, call: call}
}

var _ out.MailSurface = (*gmailSurface)(nil)

// ListThreads lists one page of thread stubs.
func (s *gmailSurface) ListThreads(ctx context.Context, pageToken string, max int64) (*out.ProviderThreadPage, error) {
	if max <= 0 {
		max = domain.MailBatchSize
	}

	var resp *gmail.ListThreadsResponse
	err := s.call.run(ctx, s.email, "list threads", func() error {
		req := s.svc.Users.Threads.List("me").MaxResults(max)
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}
		var apiErr error
		resp, apiErr = req.Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	page := &out.ProviderThreadPage{NextPageToken: resp.NextPageToken}
	for _, t := range resp.Threads {
		page.Threads = append(page.Threads, &out.ProviderThread{
			ID:        t.Id,
			HistoryID: strconv.FormatUint(t.HistoryId, 10),
			Snippet:   t.Snippet,
		})
	}
	return page, nil
}

// ListMessages fetches every message of a thread in full format.
func (s *gmailSurface) ListMessages(ctx context.Context, threadID string) ([]*out.ProviderMessage, error) {
	var thread *gmail.Thread
	err := s.call.run(ctx, s.email, "get thread", func() error {
		var apiErr error
		thread, apiErr = s.svc.Users.Threads.Get("me", threadID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	messages := make([]*out.ProviderMessage, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		messages = append(messages, convertGmailMessage(s.email, msg))
	}
	return messages, nil
}

// GetMessage fetches a single message in full format.
func (s *gmailSurface) GetMessage(ctx context.Context, id string) (*out.ProviderMessage, error) {
	var msg *gmail.Message
	err := s.call.run(ctx, s.email, "get message", func() error {
		var apiErr error
		msg, apiErr = s.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}
	return convertGmailMessage(s.email, msg), nil
}

// ListAttachments returns the attachment stubs parsed from a fetched message.
// Payload parts carry everything needed, so no further API call is made.
func (s *gmailSurface) ListAttachments(ctx context.Context, msg *out.ProviderMessage) ([]*out.ProviderAttachment, error) {
	if msg == nil {
		return nil, nil
	}
	return msg.Attachments, nil
}

// CreateWatch registers mailbox push notifications on the given topic.
func (s *gmailSurface) CreateWatch(ctx context.Context, topic string) (*out.ProviderMailWatch, error) {
	watchReq := &gmail.WatchRequest{
		TopicName: topic,
		LabelIds:  []string{"INBOX"},
	}

	var resp *gmail.WatchResponse
	err := s.call.run(ctx, s.email, "create watch", func() error {
		var apiErr error
		resp, apiErr = s.svc.Users.Watch("me", watchReq).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	return &out.ProviderMailWatch{
		HistoryID: strconv.FormatUint(resp.HistoryId, 10),
		Expiry:    resp.Expiration,
	}, nil
}

// GetChanges queries the history delta since the given cursor. Added message
// ids are deduplicated across history records. A 404 means the cursor fell
// out of the provider's history window and only a full sync can recover.
func (s *gmailSurface) GetChanges(ctx context.Context, historyID string) (*out.ProviderMailChanges, error) {
	start, parseErr := strconv.ParseUint(historyID, 10, 64)
	if parseErr != nil {
		return nil, out.NewProviderError("gmail", out.ProviderErrSyncRequired, "Full sync required", parseErr, false)
	}

	seen := make(map[string]bool)
	var messageIDs []string
	var newHistoryID uint64
	pageToken := ""

	for {
		var resp *gmail.ListHistoryResponse
		err := s.call.run(ctx, s.email, "list history", func() error {
			req := s.svc.Users.History.List("me").
				StartHistoryId(start).
				MaxResults(domain.GenericPageLimit)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var apiErr error
			resp, apiErr = req.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			if perr, ok := err.(*out.ProviderError); ok && perr.Code == out.ProviderErrNotFound {
				return nil, out.NewProviderError("gmail", out.ProviderErrSyncRequired, "Full sync required", perr.Err, false)
			}
			return nil, err
		}

		if resp.HistoryId > newHistoryID {
			newHistoryID = resp.HistoryId
		}
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				messageIDs = append(messageIDs, added.Message.Id)
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	changes := &out.ProviderMailChanges{
		NewHistoryID: historyID,
		MessageIDs:   messageIDs,
	}
	if newHistoryID > 0 {
		changes.NewHistoryID = strconv.FormatUint(newHistoryID, 10)
	}
	return changes, nil
}

// =============================================================================
// Converters
// =============================================================================

func convertGmailMessage(email string, msg *gmail.Message) *out.ProviderMessage {
	m := &out.ProviderMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		LabelIDs:     msg.LabelIds,
		InternalDate: msg.InternalDate,
		HistoryID:    strconv.FormatUint(msg.HistoryId, 10),
		WebURL:       fmt.Sprintf("https://mail.google.com/mail?authuser=%s#all/%s", email, msg.Id),
	}

	if msg.Payload == nil {
		return m
	}

	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "Subject":
			m.Subject = h.Value
		case "Date":
			m.Date = h.Value
		case "From":
			m.From = parseAddress(h.Value)
		case "To":
			m.To = parseAddressList(h.Value)
		case "Cc":
			m.CC = parseAddressList(h.Value)
		case "Bcc":
			m.BCC = parseAddressList(h.Value)
		case "Message-ID":
			m.MessageIDHeader = h.Value
		}
	}

	m.Body = extractBodyText(msg.Payload)
	m.Attachments = extractMessageAttachments(msg.Id, msg.Payload)
	return m
}

// extractBodyText prefers the text/plain part and falls back to text/html.
func extractBodyText(part *gmail.MessagePart) string {
	if text := findBodyByMime(part, "text/plain"); text != "" {
		return text
	}
	return findBodyByMime(part, "text/html")
}

func findBodyByMime(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}

	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
			return string(data)
		}
	}

	for _, p := range part.Parts {
		if text := findBodyByMime(p, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func extractMessageAttachments(messageID string, part *gmail.MessagePart) []*out.ProviderAttachment {
	if part == nil {
		return nil
	}

	var attachments []*out.ProviderAttachment
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		attachments = append(attachments, &out.ProviderAttachment{
			ID:        part.Body.AttachmentId,
			MessageID: messageID,
			Filename:  part.Filename,
			MimeType:  part.MimeType,
			Size:      part.Body.Size,
		})
	}

	for _, p := range part.Parts {
		attachments = append(attachments, extractMessageAttachments(messageID, p)...)
	}
	return attachments
}

func parseAddress(s string) string {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return s
	}
	return addr.Address
}

func parseAddressList(s string) []string {
	list, err := mail.ParseAddressList(s)
	if err != nil {
		if s == "" {
			return nil
		}
		parts := strings.Split(s, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}

	result := make([]string, len(list))
	for i, addr := range list {
		result[i] = addr.Address
	}
	return result
}
