package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/studiopos/api/internal/services"
)

// sendGridAPI is the slice of the SendGrid client the sender needs, kept
// narrow so tests can fake delivery.
type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridReceiptSender delivers transaction receipts through SendGrid.
type SendGridReceiptSender struct {
	client      sendGridAPI
	defaultFrom string
	defaultName string
	currency    string
	logger      *zap.Logger
}

var _ services.ReceiptSender = (*SendGridReceiptSender)(nil)

// SendGridConfig configures the receipt sender.
type SendGridConfig struct {
	APIKey          string
	DefaultFrom     string
	DefaultFromName string
	CurrencyCode    string
	Logger          *zap.Logger

	// Client overrides the real SendGrid client, primarily for tests.
	Client sendGridAPI
}

// NewSendGridReceiptSender constructs a receipt sender backed by SendGrid.
func NewSendGridReceiptSender(cfg SendGridConfig) (*SendGridReceiptSender, error) {
	client := cfg.Client
	if client == nil {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("sendgrid receipt sender: api key is required")
		}
		client = sendgrid.NewSendClient(cfg.APIKey)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	currency := strings.ToUpper(strings.TrimSpace(cfg.CurrencyCode))
	if currency == "" {
		currency = "USD"
	}

	return &SendGridReceiptSender{
		client:      client,
		defaultFrom: strings.TrimSpace(cfg.DefaultFrom),
		defaultName: strings.TrimSpace(cfg.DefaultFromName),
		currency:    currency,
		logger:      logger,
	}, nil
}

// SendReceipt renders and delivers the receipt email for a finalized transaction.
func (s *SendGridReceiptSender) SendReceipt(ctx context.Context, req services.ReceiptRequest) error {
	to := strings.TrimSpace(req.To)
	if to == "" {
		return errors.New("sendgrid receipt sender: recipient address is required")
	}

	from := strings.TrimSpace(req.FromAddress)
	if from == "" {
		from = s.defaultFrom
	}
	if from == "" {
		return errors.New("sendgrid receipt sender: from address is required")
	}

	fromName := strings.TrimSpace(req.OrgName)
	if fromName == "" {
		fromName = s.defaultName
	}

	currency := strings.ToUpper(strings.TrimSpace(req.CurrencyCode))
	if currency == "" {
		currency = s.currency
	}

	subject := fmt.Sprintf("Your receipt from %s", fromName)
	if fromName == "" {
		subject = "Your receipt"
	}

	plain, html := renderReceipt(req, currency)

	message := mail.NewSingleEmail(
		mail.NewEmail(fromName, from),
		subject,
		mail.NewEmail(req.CustomerName, to),
		plain,
		html,
	)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp != nil && resp.StatusCode >= 400 {
		s.logger.Warn("sendgrid rejected receipt",
			zap.Int("status", resp.StatusCode),
			zap.String("transaction_id", req.Transaction.ID),
		)
		return fmt.Errorf("sendgrid send failed: status=%d", resp.StatusCode)
	}
	return nil
}
