package notionsync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/pocketbook/internal/domain"
)

// Database property names.
const (
	PropTitle         = "Place"
	PropTransactionID = "Transaction ID"
	PropRevision      = "Revision"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropCategory      = "Category"
	PropPayment       = "Payment"
	PropMemo          = "Memo"
	PropAuto          = "Auto"
	PropRefunded      = "Refunded"
)

func text(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// Revision is a short content hash of tx. A page whose stored revision
// differs from the transaction's is rewritten.
func Revision(tx domain.Transaction) string {
	data, err := json.Marshal(tx)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:6])
}

// TransactionToNotionProperties maps a document transaction to the
// properties of its Notion page. Time of day is folded into the date.
func TransactionToNotionProperties(tx domain.Transaction) notionapi.Properties {
	title := tx.Place
	if title == "" {
		title = tx.Category
	}
	amount, _ := tx.Amount.Float64()

	props := notionapi.Properties{
		PropTitle: notionapi.TitleProperty{
			Title: text(title),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: text(tx.ID),
		},
		PropRevision: notionapi.RichTextProperty{
			RichText: text(Revision(tx)),
		},
		PropAmount: notionapi.NumberProperty{
			Number: amount,
		},
		PropCategory: notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Category},
		},
		PropAuto: notionapi.CheckboxProperty{
			Checkbox: tx.Auto,
		},
		PropRefunded: notionapi.CheckboxProperty{
			Checkbox: tx.Refunded,
		},
	}

	if d, ok := transactionDate(tx); ok {
		props[PropDate] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &d},
		}
	}

	if tx.Payment != "" {
		props[PropPayment] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: tx.Payment},
		}
	}

	if tx.Memo != "" {
		props[PropMemo] = notionapi.RichTextProperty{
			RichText: text(tx.Memo),
		}
	}

	return props
}

func transactionDate(tx domain.Transaction) (notionapi.Date, bool) {
	layout, value := "2006-01-02", tx.Date
	if tx.Time != "" {
		layout, value = "2006-01-02 15:04", tx.Date+" "+tx.Time
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return notionapi.Date{}, false
	}
	return notionapi.Date(t), true
}

// richTextValue reads the plain text of a rich-text property.
// Returns empty string if not found.
func richTextValue(page notionapi.Page, name string) string {
	prop, ok := page.Properties[name]
	if !ok {
		return ""
	}
	var rt []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.RichTextProperty:
		rt = p.RichText
	case notionapi.RichTextProperty:
		rt = p.RichText
	default:
		return ""
	}
	if len(rt) == 0 {
		return ""
	}
	if rt[0].PlainText != "" {
		return rt[0].PlainText
	}
	if rt[0].Text != nil {
		return rt[0].Text.Content
	}
	return ""
}
