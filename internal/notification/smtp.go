package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailChannel sends plain text mail over SMTP with STARTTLS when offered
type EmailChannel struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewEmailChannel creates an SMTP email channel
func NewEmailChannel(host string, port int, username, password, from string) *EmailChannel {
	if port == 0 {
		port = 587
	}
	if from == "" {
		from = username
	}
	return &EmailChannel{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
	}
}

func (e *EmailChannel) Name() string {
	return "email"
}

func (e *EmailChannel) Recipient(target Target) string {
	return strings.TrimSpace(target.Email)
}

func (e *EmailChannel) Send(ctx context.Context, recipient string, message *Message) error {
	addr := net.JoinHostPort(e.host, strconv.Itoa(e.port))

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	// net/smtp has no context support; the deadline bounds the whole exchange
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	client, err := smtp.NewClient(conn, e.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: e.host}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}

	if e.username != "" && e.password != "" {
		if err := client.Auth(smtp.PlainAuth("", e.username, e.password, e.host)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}

	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp RCPT TO failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(buildEmail(e.from, recipient, message)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write email: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return client.Quit()
}

// buildEmail renders a multipart/alternative message with text and html bodies
func buildEmail(from, to string, message *Message) []byte {
	const boundary = "sentinel-alert-boundary"

	var b strings.Builder
	fmt.Fprintf(&b, "From: \"Camera Alert System\" <%s>\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", encodeHeader(message.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(message.Body + "\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "<p>%s</p>\r\n", html.EscapeString(message.Body))

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// encodeHeader folds line breaks out of a header value and RFC 2047 encodes
// anything outside printable ASCII
func encodeHeader(v string) string {
	return mime.QEncoding.Encode("utf-8", headerBreaks.Replace(v))
}
