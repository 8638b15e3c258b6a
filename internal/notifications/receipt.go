package notifications

import (
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/studiopos/api/internal/services"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"AUD": "$",
	"CAD": "$",
	"NZD": "$",
	"GBP": "£",
	"EUR": "€",
	"JPY": "¥",
}

var printer = message.NewPrinter(language.English)

// formatAmount renders an integer cent amount as a currency string with digit
// grouping, e.g. 1039500 with "USD" becomes "$10,395.00". Unknown codes fall
// back to an ISO prefix.
func formatAmount(cents int64, currencyCode string) string {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if unit, err := currency.ParseISO(code); err == nil {
		code = unit.String()
	} else {
		code = "USD"
	}

	number := printer.Sprintf("%.2f", float64(cents)/100)
	if symbol, ok := currencySymbols[code]; ok {
		return symbol + number
	}
	return code + " " + number
}

// renderReceipt produces the plain-text and HTML bodies for a receipt email.
func renderReceipt(req services.ReceiptRequest, currencyCode string) (string, string) {
	txn := req.Transaction

	var b strings.Builder
	if name := strings.TrimSpace(req.CustomerName); name != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", name)
	}
	b.WriteString("Thanks for your purchase. Here is your receipt.\n\n")

	for _, line := range txn.Lines {
		fmt.Fprintf(&b, "%dx %s  %s\n", line.Quantity, line.Name, formatAmount(line.Total, currencyCode))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Subtotal: %s\n", formatAmount(txn.Subtotal, currencyCode))

	for _, item := range txn.Adjustments.Surcharges.Items {
		fmt.Fprintf(&b, "%s: %s\n", item.Name, formatAmount(item.Amount, currencyCode))
	}
	for _, item := range txn.Adjustments.Discounts.Items {
		fmt.Fprintf(&b, "%s: -%s\n", item.Name, formatAmount(item.Amount, currencyCode))
	}
	if txn.Adjustments.Credits > 0 {
		fmt.Fprintf(&b, "Account credit: -%s\n", formatAmount(txn.Adjustments.Credits, currencyCode))
	}

	fmt.Fprintf(&b, "Tax: %s\n", formatAmount(txn.Tax, currencyCode))
	fmt.Fprintf(&b, "Total: %s\n", formatAmount(txn.Total, currencyCode))

	plain := b.String()
	htmlBody := fmt.Sprintf("<pre>%s</pre>", html.EscapeString(plain))
	return plain, htmlBody
}
