package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// SMTPConfig configures SMTPTransport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// StartTLS requires the relay to offer STARTTLS.
	StartTLS bool
	// HeloName defaults to "localhost".
	HeloName string
	// RatePerMinute caps outbound sends; 0 disables pacing.
	RatePerMinute int
	DialTimeout   time.Duration
}

// SMTPTransport delivers mail through an SMTP relay.
type SMTPTransport struct {
	cfg     SMTPConfig
	limiter *rate.Limiter
	signer  *DKIMSigner
	dialer  *net.Dialer
	tlsConf *tls.Config
}

// NewSMTPTransport creates an SMTPTransport. signer may be nil.
func NewSMTPTransport(cfg SMTPConfig, signer *DKIMSigner) *SMTPTransport {
	if cfg.HeloName == "" {
		cfg.HeloName = "localhost"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	t := &SMTPTransport{
		cfg:     cfg,
		signer:  signer,
		dialer:  &net.Dialer{Timeout: cfg.DialTimeout},
		tlsConf: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
	if cfg.RatePerMinute > 0 {
		t.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}
	return t
}

var _ Transport = (*SMTPTransport)(nil)

// Send renders, signs and delivers msg. The connection is closed as soon as
// ctx is done.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("smtp rate limit: %w", err)
		}
	}

	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	if data, err = t.signer.Sign(data, msg.From); err != nil {
		return err
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if err := client.Hello(t.cfg.HeloName); err != nil {
		return fmt.Errorf("helo: %w", err)
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(t.tlsConf); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	} else if t.cfg.StartTLS {
		return fmt.Errorf("starttls: not offered by %s", addr)
	}

	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to: %w", err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data start: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("data write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data close: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("quit: %w", err)
	}
	return nil
}
