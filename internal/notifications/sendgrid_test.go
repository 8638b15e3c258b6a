package notifications

import (
	"context"
	"strings"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/studiopos/api/internal/domain"
	"github.com/studiopos/api/internal/services"
)

type fakeSendGrid struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = 202
	}
	return &rest.Response{StatusCode: status}, nil
}

func receiptRequest() services.ReceiptRequest {
	return services.ReceiptRequest{
		To:           "member@example.com",
		CustomerName: "Dana Lee",
		OrgName:      "Eastside Climbing",
		CurrencyCode: "usd",
		Transaction: domain.Transaction{
			ID:       "txn_01HYZ",
			Subtotal: 10000,
			Tax:      945,
			Total:    10395,
			Adjustments: domain.CartAdjustments{
				Discounts: domain.AdjustmentLedger{
					Items: []domain.AdjustmentItem{{RuleID: "rule-1", Name: "Member 10%", Amount: 1050}},
					Total: 1050,
				},
				Surcharges: domain.AdjustmentLedger{
					Items: []domain.AdjustmentItem{{RuleID: "rule-2", Name: "Weekend surcharge", Amount: 500}},
					Total: 500,
				},
			},
			Lines: []domain.TransactionLine{
				{Name: "Day pass", Quantity: 2, Total: 10395},
			},
		},
	}
}

func TestSendReceiptDeliversEmail(t *testing.T) {
	client := &fakeSendGrid{}
	sender, err := NewSendGridReceiptSender(SendGridConfig{
		Client:      client,
		DefaultFrom: "receipts@studiopos.example",
	})
	if err != nil {
		t.Fatalf("NewSendGridReceiptSender returned error: %v", err)
	}

	if err := sender.SendReceipt(context.Background(), receiptRequest()); err != nil {
		t.Fatalf("SendReceipt returned error: %v", err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(client.sent))
	}
	email := client.sent[0]
	if email.Subject != "Your receipt from Eastside Climbing" {
		t.Errorf("unexpected subject %q", email.Subject)
	}
	if len(email.Personalizations) != 1 || len(email.Personalizations[0].To) != 1 {
		t.Fatalf("expected single recipient")
	}
	if got := email.Personalizations[0].To[0].Address; got != "member@example.com" {
		t.Errorf("unexpected recipient %s", got)
	}
	if email.From.Address != "receipts@studiopos.example" {
		t.Errorf("unexpected from address %s", email.From.Address)
	}

	var plain string
	for _, content := range email.Content {
		if content.Type == "text/plain" {
			plain = content.Value
		}
	}
	if !strings.Contains(plain, "Total: $103.95") {
		t.Errorf("expected total in body, got:\n%s", plain)
	}
	if !strings.Contains(plain, "Member 10%: -$10.50") {
		t.Errorf("expected discount line in body, got:\n%s", plain)
	}
	if !strings.Contains(plain, "Weekend surcharge: $5.00") {
		t.Errorf("expected surcharge line in body, got:\n%s", plain)
	}
}

func TestSendReceiptRejectedStatus(t *testing.T) {
	client := &fakeSendGrid{status: 401}
	sender, err := NewSendGridReceiptSender(SendGridConfig{Client: client, DefaultFrom: "receipts@studiopos.example"})
	if err != nil {
		t.Fatalf("NewSendGridReceiptSender returned error: %v", err)
	}

	if err := sender.SendReceipt(context.Background(), receiptRequest()); err == nil {
		t.Fatal("expected error for rejected send")
	}
}

func TestSendReceiptRequiresRecipient(t *testing.T) {
	sender, err := NewSendGridReceiptSender(SendGridConfig{Client: &fakeSendGrid{}, DefaultFrom: "receipts@studiopos.example"})
	if err != nil {
		t.Fatalf("NewSendGridReceiptSender returned error: %v", err)
	}

	req := receiptRequest()
	req.To = "  "
	if err := sender.SendReceipt(context.Background(), req); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		cents    int64
		currency string
		want     string
	}{
		{10395, "USD", "$103.95"},
		{500, "USD", "$5.00"},
		{0, "USD", "$0.00"},
		{1039500, "USD", "$10,395.00"},
		{500, "eur", "€5.00"},
	}
	for _, tc := range cases {
		if got := formatAmount(tc.cents, tc.currency); got != tc.want {
			t.Errorf("formatAmount(%d, %s) = %q, want %q", tc.cents, tc.currency, got, tc.want)
		}
	}
}
