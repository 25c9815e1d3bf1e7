package notify

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	msgauthdkim "github.com/emersion/go-msgauth/dkim"
)

// DKIMConfig selects the signing identity for notification mail. The key is
// taken from PrivateKey (inline PEM) when set, otherwise from KeyPath.
type DKIMConfig struct {
	Selector   string
	Domain     string
	KeyPath    string
	PrivateKey string
}

func (c DKIMConfig) enabled() bool {
	return c.Selector != "" || c.Domain != "" || c.KeyPath != "" || c.PrivateKey != ""
}

// signedHeaders are the headers Message.Bytes always writes.
var signedHeaders = []string{"From", "To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type"}

// DKIMSigner prepends a DKIM-Signature header to rendered messages. A nil
// *DKIMSigner leaves messages untouched.
type DKIMSigner struct {
	selector string
	domain   string
	key      crypto.Signer
}

// LoadDKIMSigner builds a signer from cfg. DKIM is off (nil, nil) when cfg is
// entirely empty.
func LoadDKIMSigner(cfg DKIMConfig) (*DKIMSigner, error) {
	cfg.Selector = strings.TrimSpace(cfg.Selector)
	cfg.Domain = strings.TrimSpace(cfg.Domain)
	cfg.KeyPath = strings.TrimSpace(cfg.KeyPath)
	cfg.PrivateKey = strings.TrimSpace(cfg.PrivateKey)
	if !cfg.enabled() {
		return nil, nil
	}
	if cfg.Selector == "" {
		return nil, errors.New("dkim: SMTP_DKIM_SELECTOR must be set to sign mail")
	}

	pemData, err := cfg.keyPEM()
	if err != nil {
		return nil, err
	}
	key, err := parseSigningKey(pemData)
	if err != nil {
		return nil, fmt.Errorf("dkim: %w", err)
	}
	return NewDKIMSigner(cfg.Selector, cfg.Domain, key), nil
}

func (c DKIMConfig) keyPEM() ([]byte, error) {
	if c.PrivateKey != "" {
		// Env files commonly carry the PEM on one line with escaped newlines.
		return []byte(strings.ReplaceAll(c.PrivateKey, `\n`, "\n")), nil
	}
	if c.KeyPath == "" {
		return nil, errors.New("dkim: set SMTP_DKIM_PRIVATE_KEY or SMTP_DKIM_KEY_PATH")
	}
	data, err := os.ReadFile(c.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("dkim: load key file: %w", err)
	}
	return data, nil
}

// NewDKIMSigner creates a signer for an already parsed key. An empty domain
// signs with the domain of each message's sender.
func NewDKIMSigner(selector, domain string, key crypto.Signer) *DKIMSigner {
	return &DKIMSigner{selector: selector, domain: domain, key: key}
}

// Sign returns message with a relaxed/relaxed DKIM signature prepended.
func (s *DKIMSigner) Sign(message []byte, from string) ([]byte, error) {
	if s == nil {
		return message, nil
	}
	domain := s.domain
	if domain == "" {
		domain = domainOf(from)
	}
	if domain == "" || domain == "localhost" {
		return nil, fmt.Errorf("dkim: no signing domain for sender %q", from)
	}

	var out bytes.Buffer
	err := msgauthdkim.Sign(&out, bytes.NewReader(message), &msgauthdkim.SignOptions{
		Domain:                 domain,
		Selector:               s.selector,
		Signer:                 s.key,
		HeaderCanonicalization: msgauthdkim.CanonicalizationRelaxed,
		BodyCanonicalization:   msgauthdkim.CanonicalizationRelaxed,
		HeaderKeys:             signedHeaders,
	})
	if err != nil {
		return nil, fmt.Errorf("dkim: sign message: %w", err)
	}
	return out.Bytes(), nil
}

// parseSigningKey accepts the first private key block in pemData, either
// PKCS#8 (RSA or Ed25519) or PKCS#1 RSA.
func parseSigningKey(pemData []byte) (crypto.Signer, error) {
	for rest := pemData; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("no private key block in PEM data")
		}
		if !strings.HasSuffix(block.Type, "PRIVATE KEY") {
			continue
		}

		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			signer, ok := key.(crypto.Signer)
			if !ok {
				return nil, fmt.Errorf("unsupported key type %T", key)
			}
			return signer, nil
		}
		rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", strings.ToLower(block.Type), err)
		}
		return rsaKey, nil
	}
}
