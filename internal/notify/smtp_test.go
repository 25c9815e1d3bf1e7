package notify

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSMTPServer accepts one session and returns the DATA payload on the channel.
func fakeSMTPServer(t *testing.T, offerStartTLS bool) (port int, dataCh chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	dataCh = make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		br := bufio.NewReader(conn)
		bw := bufio.NewWriter(conn)
		reply := func(s string) {
			fmt.Fprint(bw, s+"\r\n")
			bw.Flush()
		}

		reply("220 test ESMTP")
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimRight(line, "\r\n"))
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				if offerStartTLS {
					reply("250-test")
					reply("250 STARTTLS")
				} else {
					reply("250 test")
				}
			case strings.HasPrefix(cmd, "MAIL FROM:"), strings.HasPrefix(cmd, "RCPT TO:"):
				reply("250 OK")
			case cmd == "DATA":
				reply("354 End data with <CR><LF>.<CR><LF>")
				var lines []string
				for {
					l, err := br.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					lines = append(lines, l)
				}
				dataCh <- strings.Join(lines, "")
				reply("250 OK")
			case cmd == "QUIT":
				reply("221 Bye")
				return
			default:
				reply("502 unsupported")
			}
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, dataCh
}

func testMessage() Message {
	return Message{
		From:    "noreply@portfolio.example",
		To:      []string{"owner@portfolio.example"},
		Subject: "Portfolio Contact: Compilers",
		Text:    FormatBody(sampleRecord()),
		HTML:    FormatHTML(sampleRecord()),
	}
}

func TestSMTPTransport_Send(t *testing.T) {
	port, dataCh := fakeSMTPServer(t, false)
	tr := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: port}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, tr.Send(ctx, testMessage()))

	select {
	case body := <-dataCh:
		require.Contains(t, body, "Subject: Portfolio Contact: Compilers")
		require.Contains(t, body, "Name: Grace Hopper")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SMTP data")
	}
}

func TestSMTPTransport_RequiresStartTLS(t *testing.T) {
	port, _ := fakeSMTPServer(t, false)
	tr := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: port, StartTLS: true}, nil)

	err := tr.Send(context.Background(), testMessage())
	require.ErrorContains(t, err, "starttls")
}

func TestSMTPTransport_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	tr := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: port, DialTimeout: time.Second}, nil)
	require.ErrorContains(t, tr.Send(context.Background(), testMessage()), "dial")
}

func TestSMTPTransport_RateLimitHonoursContext(t *testing.T) {
	port, _ := fakeSMTPServer(t, false)
	tr := NewSMTPTransport(SMTPConfig{Host: "127.0.0.1", Port: port, RatePerMinute: 1}, nil)
	require.NoError(t, tr.Send(context.Background(), testMessage()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorContains(t, tr.Send(ctx, testMessage()), "rate limit")
}
