package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"github.com/jcason-sudo/AIEmailSummary/internal/mail/domain"
)

// Reader imports messages from local .eml archive files. Directories are
// walked recursively; files that fail to parse are skipped with a warning.
type Reader struct {
	paths []string
	owner string // owner address, used to classify sent mail
	log   *logrus.Logger
}

// NewReader creates an archive reader over the given files or directories.
func NewReader(paths []string, owner string, log *logrus.Logger) *Reader {
	return &Reader{paths: paths, owner: strings.ToLower(owner), log: log}
}

// Name identifies this import source.
func (r *Reader) Name() string { return domain.SourceArchive }

// Fetch parses every .eml under the configured paths and hands messages
// dated at or after since to fn.
func (r *Reader) Fetch(ctx context.Context, since time.Time, fn func(*domain.Message) error) error {
	for _, root := range r.paths {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("archive path %s: %w", root, err)
		}

		if !info.IsDir() {
			if err := r.handleFile(ctx, root, since, fn); err != nil {
				return err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".eml") {
				return nil
			}
			return r.handleFile(ctx, path, since, fn)
		})
		if err != nil {
			return fmt.Errorf("walk archive %s: %w", root, err)
		}
	}
	return nil
}

func (r *Reader) handleFile(ctx context.Context, path string, since time.Time, fn func(*domain.Message) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	msg, err := r.Parse(f)
	if err != nil {
		r.log.WithError(err).WithField("file", path).Warn("skipping unparseable archive file")
		return nil
	}

	if !since.IsZero() && !msg.Date.IsZero() && msg.Date.Before(since) {
		return nil
	}
	return fn(msg)
}

// Parse decodes a single RFC 5322 message into the normalized form. Missing
// subject or body yields empty defaults, never an error.
func (r *Reader) Parse(src io.Reader) (*domain.Message, error) {
	mr, err := mail.CreateReader(src)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}

	header := mr.Header
	msg := &domain.Message{
		Source: domain.SourceArchive,
		// Archived mail has already been handled.
		IsRead:    true,
		Direction: domain.DirectionReceived,
	}

	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	}
	if date, err := header.Date(); err == nil {
		msg.Date = date.UTC()
	}
	if id, err := header.MessageID(); err == nil {
		msg.MessageID = id
	}

	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		msg.Sender = strings.ToLower(from[0].Address)
		msg.SenderName = from[0].Name
	}
	if to, err := header.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, strings.ToLower(addr.Address))
		}
	}
	if cc, err := header.AddressList("Cc"); err == nil {
		for _, addr := range cc {
			msg.Cc = append(msg.Cc, strings.ToLower(addr.Address))
		}
	}

	msg.ConversationID = conversationID(header)

	if r.owner != "" && msg.Sender == r.owner {
		msg.Direction = domain.DirectionSent
		msg.IsReplied = false
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever parsed so far.
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if msg.Body == "" && strings.HasPrefix(contentType, "text/plain") {
				if body, err := io.ReadAll(part.Body); err == nil {
					msg.Body = strings.TrimSpace(string(body))
				}
			}
		case *mail.AttachmentHeader:
			msg.HasAttachments = true
		}
	}

	return msg, nil
}

// conversationID derives the thread key: the root of the References chain,
// else the In-Reply-To id, else empty for a standalone message.
func conversationID(header mail.Header) string {
	if refs, err := header.MsgIDList("References"); err == nil && len(refs) > 0 {
		return refs[0]
	}
	if replyTo, err := header.MsgIDList("In-Reply-To"); err == nil && len(replyTo) > 0 {
		return replyTo[0]
	}
	return ""
}
