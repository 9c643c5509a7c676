// Package notify renders price drop emails and delivers them over SMTP.
package notify

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"time"
)

// Message is a rendered email with plain text and HTML alternatives.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Bytes encodes the message as RFC 5322 multipart/alternative with the given
// sender. Parts are quoted-printable so non-ASCII currency symbols survive.
func (m *Message) Bytes(from mail.Address, now time.Time) ([]byte, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	for _, part := range []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", m.Text},
		{"text/html; charset=UTF-8", m.HTML},
	} {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", part.contentType)
		header.Set("Content-Transfer-Encoding", "quoted-printable")

		pw, err := w.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("failed to create mime part: %w", err)
		}
		qp := quotedprintable.NewWriter(pw)
		if _, err := qp.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("failed to write mime part: %w", err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("failed to close mime part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	to := mail.Address{Name: m.ToName, Address: m.To}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from.String())
	fmt.Fprintf(&msg, "To: %s\r\n", to.String())
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", m.Subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", now.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n", w.Boundary())
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}
