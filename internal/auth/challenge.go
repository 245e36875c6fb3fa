// Package auth issues and confirms one-time tokens delivered over SMS.
package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"text/template"
	"time"

	"github.com/allclear/allclear/backend/go-services/internal/apperr"
	"github.com/allclear/allclear/backend/go-services/internal/config"
	"github.com/allclear/allclear/backend/go-services/internal/kv"
	"github.com/allclear/allclear/backend/go-services/internal/sms"
	"github.com/allclear/allclear/backend/go-services/pkg/metrics"
)

const (
	keyPrefix = "authentication:"

	AuthTTL  = 5 * time.Minute
	AlertTTL = 24 * time.Hour

	DefaultMaxOutstanding = 3
	DefaultTokenLength    = 10

	scanStep = 100
)

// ErrConfirmationFailed is the only failure Confirm reports for a missing pair.
var ErrConfirmationFailed = apperr.NotAuthenticated("Confirmation failed.")

// AuthKey returns the store key of a (phone, token) pair.
func AuthKey(phone, token string) string {
	return keyPrefix + phone + ":" + token
}

// NormalizePhone is the form a phone number is stored and looked up in.
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// checkPhone normalizes phone and rejects values that cannot be a key segment.
func checkPhone(phone string) (string, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return "", apperr.Invalid("phone", "Please supply a phone number.")
	}
	if strings.Contains(phone, ":") {
		return "", apperr.Invalid("phone", "The phone number may not contain ':'.")
	}
	return phone, nil
}

func outstandingPattern(phone string) string {
	return keyPrefix + kv.EscapeGlob(phone) + ":*"
}

// messageData is the template input. Phone, Token and LastAlertedAt are query-escaped.
type messageData struct {
	BaseURL       string
	Phone         string
	Token         string
	LastAlertedAt string
}

// Challenge owns the "authentication:" keyspace.
//
// The outstanding-token cap is a count followed by a write, so two requests
// for the same phone racing each other can both pass the check.
type Challenge struct {
	kv             kv.Store
	sender         sms.Sender
	baseURL        string
	authFrom       string
	alertFrom      string
	authMsg        *template.Template
	alertMsg       *template.Template
	maxOutstanding int
	tokenLength    int
	newToken       func(n int) (string, error)
}

type Option func(*Challenge)

// WithTokenSource replaces the random token generator.
func WithTokenSource(f func(n int) (string, error)) Option {
	return func(c *Challenge) { c.newToken = f }
}

// NewChallenge parses the message templates from cfg and returns a ready Challenge.
func NewChallenge(store kv.Store, sender sms.Sender, cfg config.AuthConfig, opts ...Option) (*Challenge, error) {
	authMsg, err := template.New("auth").Option("missingkey=error").Parse(cfg.AuthMessage)
	if err != nil {
		return nil, fmt.Errorf("auth message template: %w", err)
	}
	alertMsg, err := template.New("alert").Option("missingkey=error").Parse(cfg.AlertMessage)
	if err != nil {
		return nil, fmt.Errorf("alert message template: %w", err)
	}
	c := &Challenge{
		kv:             store,
		sender:         sender,
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		authFrom:       cfg.AuthSender,
		alertFrom:      cfg.AlertSender,
		authMsg:        authMsg,
		alertMsg:       alertMsg,
		maxOutstanding: cfg.MaxOutstanding,
		tokenLength:    cfg.TokenLength,
		newToken:       numericToken,
	}
	if c.maxOutstanding <= 0 {
		c.maxOutstanding = DefaultMaxOutstanding
	}
	if c.tokenLength <= 0 {
		c.tokenLength = DefaultTokenLength
	}
	if c.alertFrom == "" {
		c.alertFrom = c.authFrom
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// IssueAuthToken sends a login token to phone and records it for AuthTTL.
// Once MaxOutstanding unconfirmed tokens exist for the phone it fails with
// apperr.ErrRateLimited and sends nothing.
func (c *Challenge) IssueAuthToken(ctx context.Context, phone string) (string, error) {
	phone, err := checkPhone(phone)
	if err != nil {
		return "", err
	}
	n, err := c.CountOutstanding(ctx, phone)
	if err != nil {
		return "", err
	}
	if n >= c.maxOutstanding {
		metrics.TokensRateLimited.Inc()
		return "", &apperr.ValidationError{
			Field:   "phone",
			Message: "Please confirm existing tokens before requesting another.",
			Err:     apperr.ErrRateLimited,
		}
	}
	return c.issue(ctx, "auth", phone, c.authFrom, c.authMsg, messageData{}, AuthTTL)
}

// IssueAlertToken sends an exposure alert carrying a token valid for AlertTTL.
// It is meant for server-side jobs and is not capped.
func (c *Challenge) IssueAlertToken(ctx context.Context, phone string, lastAlertedAt time.Time) (string, error) {
	phone, err := checkPhone(phone)
	if err != nil {
		return "", err
	}
	data := messageData{LastAlertedAt: url.QueryEscape(lastAlertedAt.UTC().Format(time.RFC3339))}
	return c.issue(ctx, "alert", phone, c.alertFrom, c.alertMsg, data, AlertTTL)
}

func (c *Challenge) issue(ctx context.Context, kind, phone, from string, tmpl *template.Template, data messageData, ttl time.Duration) (string, error) {
	token, err := c.newToken(c.tokenLength)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token = strings.ToUpper(token)

	data.BaseURL = c.baseURL
	data.Phone = url.QueryEscape(phone)
	data.Token = url.QueryEscape(token)
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("render %s message: %w", kind, err)
	}

	if err := c.sender.Send(ctx, sms.Message{From: from, Body: body.String(), To: phone}); err != nil {
		return "", apperr.Unavailable("sms send "+kind, err)
	}
	if err := c.kv.SetWithExpiry(ctx, AuthKey(phone, token), phone, ttl); err != nil {
		return "", err
	}
	metrics.TokensIssued.WithLabelValues(kind).Inc()
	return token, nil
}

// Confirm consumes a (phone, token) pair. Unknown, expired and already used
// pairs all fail with ErrConfirmationFailed.
func (c *Challenge) Confirm(ctx context.Context, phone, token string) error {
	token = strings.ToUpper(strings.TrimSpace(token))
	phone, err := checkPhone(phone)
	if err != nil || token == "" {
		metrics.TokenConfirmations.WithLabelValues("failed").Inc()
		return ErrConfirmationFailed
	}
	ok, err := c.kv.Take(ctx, AuthKey(phone, token))
	if err != nil {
		return err
	}
	if !ok {
		metrics.TokenConfirmations.WithLabelValues("failed").Inc()
		return ErrConfirmationFailed
	}
	metrics.TokenConfirmations.WithLabelValues("confirmed").Inc()
	return nil
}

// CountOutstanding returns the number of unconfirmed, unexpired tokens for phone.
func (c *Challenge) CountOutstanding(ctx context.Context, phone string) (int, error) {
	phone, err := checkPhone(phone)
	if err != nil {
		return 0, err
	}
	return kv.Count(ctx, c.kv, outstandingPattern(phone), scanStep)
}

var ten = big.NewInt(10)

func numericToken(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}
