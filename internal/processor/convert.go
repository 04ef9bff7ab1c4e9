package processor

import (
	"time"

	"github.com/stripe/stripe-go/v78"
)

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func accountFromStripe(a *stripe.Account) *Account {
	return &Account{
		ID:               a.ID,
		Email:            a.Email,
		DetailsSubmitted: a.DetailsSubmitted,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		Deleted:          a.Deleted,
		Metadata:         a.Metadata,
	}
}

func customerFromStripe(c *stripe.Customer) *Customer {
	out := &Customer{
		ID:       c.ID,
		Email:    c.Email,
		Deleted:  c.Deleted,
		Metadata: c.Metadata,
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		out.DefaultPaymentMethodID = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return out
}

func priceFromStripe(p *stripe.Price) Price {
	out := Price{
		ID:                p.ID,
		Nickname:          p.Nickname,
		UnitAmount:        p.UnitAmount,
		UnitAmountDecimal: p.UnitAmountDecimal,
	}
	// A null unit_amount arrives as zero; tiered prices never carry one.
	out.HasUnitAmount = p.BillingScheme != stripe.PriceBillingSchemeTiered &&
		(p.UnitAmount > 0 || p.UnitAmountDecimal > 0)
	if p.Recurring != nil {
		out.Recurring = true
		out.Interval = string(p.Recurring.Interval)
		out.IntervalCount = p.Recurring.IntervalCount
	}
	if p.Product != nil {
		out.ProductID = p.Product.ID
		out.ProductName = p.Product.Name
	}
	return out
}

// SubscriptionFromStripe copies the consumed fields of a stripe subscription.
func SubscriptionFromStripe(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                 s.ID,
		Status:             string(s.Status),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		StartDate:          unixTime(s.StartDate),
		CurrentPeriodStart: unixTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unixTime(s.CurrentPeriodEnd),
		CanceledAt:         unixTime(s.CanceledAt),
		Metadata:           s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, it := range s.Items.Data {
			if it == nil {
				continue
			}
			item := SubscriptionItem{ID: it.ID, Quantity: it.Quantity}
			if it.Price != nil {
				item.Price = priceFromStripe(it.Price)
			}
			out.Items = append(out.Items, item)
		}
	}
	return out
}

// InvoiceFromStripe copies the consumed fields of a stripe invoice.
func InvoiceFromStripe(in *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:            in.ID,
		Number:        in.Number,
		BillingReason: string(in.BillingReason),
		Status:        string(in.Status),
		Created:       unixTime(in.Created),
		DueDate:       unixTime(in.DueDate),
		Currency:      string(in.Currency),
		Subtotal:      in.Subtotal,
		Total:         in.Total,
		AmountPaid:    in.AmountPaid,
		AmountDue:     in.AmountDue,
		Metadata:      in.Metadata,
	}
	if in.Customer != nil {
		out.CustomerID = in.Customer.ID
	}
	if in.Subscription != nil {
		out.SubscriptionID = in.Subscription.ID
	}
	if in.PaymentIntent != nil {
		out.PaymentIntentID = in.PaymentIntent.ID
	}
	if in.StatusTransitions != nil {
		out.PaidAt = unixTime(in.StatusTransitions.PaidAt)
	}
	for _, t := range in.TotalTaxAmounts {
		if t != nil {
			out.Tax += t.Amount
		}
	}
	if in.Lines != nil {
		for _, l := range in.Lines.Data {
			if l == nil {
				continue
			}
			line := InvoiceLine{
				ID:          l.ID,
				Description: l.Description,
				Quantity:    l.Quantity,
				Amount:      l.Amount,
			}
			if l.Price != nil {
				p := priceFromStripe(l.Price)
				line.Price = &p
			}
			out.Lines = append(out.Lines, line)
		}
	}
	return out
}
