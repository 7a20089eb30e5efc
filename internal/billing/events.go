package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/stripe/stripe-go/v79"
)

// ParseEvent converts a verified Stripe event into a SubscriptionEvent.
// Unhandled event types are returned with only ID, Type and Created set so
// the caller can acknowledge them.
func ParseEvent(event stripe.Event) (domain.SubscriptionEvent, error) {
	ev := domain.SubscriptionEvent{
		ID:   event.ID,
		Type: domain.EventType(event.Type),
	}
	if event.Created > 0 {
		ev.Created = time.Unix(event.Created, 0).UTC()
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		if ev.Type.IsHandled() {
			return ev, fmt.Errorf("parse %s event %s: empty payload", event.Type, event.ID)
		}
		return ev, nil
	}

	switch ev.Type {
	case domain.EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return ev, fmt.Errorf("parse checkout session: %w", err)
		}
		ev.UserRef = sess.ClientReferenceID
		if ev.UserRef == "" {
			ev.UserRef = sess.Metadata[MetadataUserID]
		}
		if sess.Subscription != nil {
			ev.SubscriptionRef = sess.Subscription.ID
		}
		if sess.Customer != nil {
			ev.CustomerRef = sess.Customer.ID
		}
		ev.PaymentConfirmed = sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			sess.Status == stripe.CheckoutSessionStatusComplete

	case domain.EventInvoicePaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return ev, fmt.Errorf("parse invoice: %w", err)
		}
		if inv.SubscriptionDetails != nil {
			ev.UserRef = inv.SubscriptionDetails.Metadata[MetadataUserID]
		}
		if inv.Subscription != nil {
			ev.SubscriptionRef = inv.Subscription.ID
		}
		if inv.Customer != nil {
			ev.CustomerRef = inv.Customer.ID
		}

	case domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return ev, fmt.Errorf("parse subscription: %w", err)
		}
		ev.UserRef = sub.Metadata[MetadataUserID]
		ev.SubscriptionRef = sub.ID
		ev.Status = string(sub.Status)
		if sub.Customer != nil {
			ev.CustomerRef = sub.Customer.ID
		}
		if ev.Type == domain.EventSubscriptionDeleted && ev.Status == "" {
			ev.Status = domain.ProviderStatusCanceled
		}
	}

	return ev, nil
}
