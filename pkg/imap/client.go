package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
)

const fetchChunkSize = 50

// Config for the live mailbox connection.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Folders  []string
}

// Client imports messages from a live IMAP mailbox. Each Fetch call opens a
// fresh connection and closes it when done.
type Client struct {
	cfg Config
	log *logrus.Logger
}

// NewClient creates an IMAP import source (does not connect immediately).
func NewClient(cfg Config, log *logrus.Logger) *Client {
	if len(cfg.Folders) == 0 {
		cfg.Folders = []string{"INBOX", "Sent"}
	}
	return &Client{cfg: cfg, log: log}
}

// Name identifies this import source.
func (c *Client) Name() string { return domain.SourceIMAP }

// Fetch pulls messages newer than since from every configured folder and
// hands the normalized records to fn. A connection failure is returned to
// the caller; messages already delivered to fn stay valid.
func (c *Client) Fetch(ctx context.Context, since time.Time, fn func(*domain.Message) error) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)

	cl, err := client.DialTLS(addr, &tls.Config{
		ServerName: c.cfg.Host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("connect to mail server: %w", err)
	}
	defer cl.Logout() //nolint:errcheck

	if err := cl.Login(c.cfg.Username, c.cfg.Password); err != nil {
		return fmt.Errorf("mail server login: %w", err)
	}
	c.log.WithField("host", c.cfg.Host).Info("connected to IMAP server")

	for _, folder := range c.cfg.Folders {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.fetchFolder(ctx, cl, folder, since, fn); err != nil {
			return fmt.Errorf("folder %s: %w", folder, err)
		}
	}
	return nil
}

func (c *Client) fetchFolder(ctx context.Context, cl *client.Client, folder string, since time.Time, fn func(*domain.Message) error) error {
	if _, err := cl.Select(folder, true); err != nil {
		return fmt.Errorf("select: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}
	ids, err := cl.Search(criteria)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	c.log.WithFields(logrus.Fields{"folder": folder, "count": len(ids)}).Info("fetching messages")

	sent := isSentFolder(folder)

	for start := 0; start < len(ids); start += fetchChunkSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + fetchChunkSize
		if end > len(ids) {
			end = len(ids)
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(ids[start:end]...)

		section := &imap.BodySectionName{Peek: true}
		items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}

		messages := make(chan *imap.Message, fetchChunkSize)
		done := make(chan error, 1)
		go func() {
			done <- cl.Fetch(seqset, items, messages)
		}()

		for raw := range messages {
			msg := c.normalize(raw, section, folder, sent)
			if msg == nil {
				continue
			}
			if err := fn(msg); err != nil {
				// Drain so the fetch goroutine can finish.
				for range messages {
				}
				<-done
				return err
			}
		}
		if err := <-done; err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
	}
	return nil
}

// normalize converts one fetched IMAP message into the uniform record.
// Messages with no envelope are dropped; missing subject or body become
// empty defaults.
func (c *Client) normalize(raw *imap.Message, section *imap.BodySectionName, folder string, sent bool) *domain.Message {
	if raw == nil || raw.Envelope == nil {
		return nil
	}

	msg := &domain.Message{
		Subject:   raw.Envelope.Subject,
		Date:      raw.Envelope.Date.UTC(),
		Folder:    folder,
		Source:    domain.SourceIMAP,
		Direction: domain.DirectionReceived,
		MessageID: strings.Trim(raw.Envelope.MessageId, "<>"),
	}
	if strings.Trim(raw.Envelope.InReplyTo, "<>") != "" {
		msg.ConversationID = strings.Trim(raw.Envelope.InReplyTo, "<>")
	}

	if len(raw.Envelope.From) > 0 {
		from := raw.Envelope.From[0]
		msg.Sender = strings.ToLower(from.Address())
		msg.SenderName = from.PersonalName
	}
	for _, to := range raw.Envelope.To {
		msg.To = append(msg.To, strings.ToLower(to.Address()))
	}
	for _, cc := range raw.Envelope.Cc {
		msg.Cc = append(msg.Cc, strings.ToLower(cc.Address()))
	}

	if sent || msg.Sender == strings.ToLower(c.cfg.Username) {
		msg.Direction = domain.DirectionSent
	}

	for _, flag := range raw.Flags {
		switch flag {
		case imap.SeenFlag:
			msg.IsRead = true
		case imap.AnsweredFlag:
			msg.IsReplied = true
		case imap.FlaggedFlag:
			msg.IsFlagged = true
		}
	}
	// Sent mail is by definition read.
	if msg.Direction == domain.DirectionSent {
		msg.IsRead = true
	}

	if body := raw.GetBody(section); body != nil {
		env, err := enmime.ReadEnvelope(body)
		if err != nil {
			c.log.WithError(err).WithField("message_id", msg.MessageID).Warn("could not decode message body")
		} else {
			msg.Body = strings.TrimSpace(env.Text)
			msg.HasAttachments = len(env.Attachments) > 0

			// Envelope headers beat the IMAP summary for threading.
			if refs := strings.Fields(env.GetHeader("References")); len(refs) > 0 {
				msg.ConversationID = strings.Trim(refs[0], "<>")
			}
		}
	}

	return msg
}

func isSentFolder(folder string) bool {
	f := strings.ToLower(folder)
	return strings.Contains(f, "sent")
}
