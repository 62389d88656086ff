package notification

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Attachment is an inline file carried by a notification.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Sender delivers a notification to a single recipient. Implementations
// must be safe for concurrent use.
type Sender interface {
	Send(to, subject, body string, attachments []Attachment) error
}

// Noop drops every notification. Useful in tests and when SMTP is not
// configured.
type Noop struct{}

func (Noop) Send(string, string, string, []Attachment) error { return nil }

// EmailSender sends multipart MIME mail over plain SMTP.
type EmailSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (e *EmailSender) Send(to, subject, body string, attachments []Attachment) error {
	msg := buildMessage(e.From, to, subject, body, attachments)

	addr := fmt.Sprintf("%s:%d", e.Host, e.Port)
	var auth smtp.Auth
	if e.Username != "" {
		auth = smtp.PlainAuth("", e.Username, e.Password, e.Host)
	}
	if err := smtp.SendMail(addr, auth, e.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string, attachments []Attachment) []byte {
	const boundary = "mixed-a1b2c3d4"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(attachments) == 0 {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(body)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	for _, a := range attachments {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s\r\n", a.ContentType)
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", a.Filename)
		b.WriteString(wrap76(base64.StdEncoding.EncodeToString(a.Data)))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

func wrap76(s string) string {
	var b strings.Builder
	for len(s) > 76 {
		b.WriteString(s[:76])
		b.WriteString("\r\n")
		s = s[76:]
	}
	b.WriteString(s)
	return b.String()
}

// OrderQR renders a PNG QR code encoding the order id, attached to the
// buyer's confirmation mail so the venue can scan it at the door.
func OrderQR(orderID string) (Attachment, error) {
	png, err := qrcode.Encode(orderID, qrcode.Medium, 256)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to render order QR: %w", err)
	}
	return Attachment{
		Filename:    "order-" + orderID + ".png",
		ContentType: "image/png",
		Data:        png,
	}, nil
}
