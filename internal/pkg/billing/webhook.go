package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ShahriarSojib/MarketHub/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"gorm.io/gorm"
)

// ErrInvalidSignature is returned when the webhook payload fails signature
// verification. The HTTP layer answers with a client error and nothing else
// happens.
var ErrInvalidSignature = errors.New("webhook signature verification failed")

// Dispatcher verifies inbound processor events and routes them to the
// reconciler. After a payload passes signature verification every handler
// failure is logged and recorded but still acknowledged: Stripe re-delivers
// unacked events forever, and a permanently failing event must not turn
// into a retry storm against our own bug.
type Dispatcher struct {
	repo   Repository
	rec    *Reconciler
	client ProcessorClient
	secret string
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(repo Repository, rec *Reconciler, client ProcessorClient, webhookSecret string) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		rec:    rec,
		client: client,
		secret: webhookSecret,
	}
}

// Handle processes one raw webhook delivery. rawPayload must be the exact
// request body bytes; signature verification fails on any transformation.
// The returned error is ErrInvalidSignature for forged/garbled payloads and
// a storage error if the event record could not be written; both mean "do
// not ack". A nil return means the event was accepted (including duplicate
// deliveries and events whose handler failed, which are logged and marked).
func (d *Dispatcher) Handle(ctx context.Context, rawPayload []byte, signatureHeader string) error {
	// The account's webhook API version rarely matches the SDK pin; the
	// handlers only read fields that are stable across versions.
	event, err := webhook.ConstructEventWithOptions(rawPayload, signatureHeader, d.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Warnf("[Webhook] signature verification failed: %v", err)
		return ErrInvalidSignature
	}

	record := &models.WebhookEvent{
		EventID:        event.ID,
		EventType:      string(event.Type),
		PayloadJSON:    string(rawPayload),
		SignatureValid: true,
	}
	created, stored, err := d.repo.CreateWebhookEventIfNotExists(record)
	if err != nil {
		return fmt.Errorf("webhook event persist failed: %w", err)
	}
	if !created {
		log.Infof("[Webhook] duplicate delivery of event %s (%s), ignoring", event.ID, event.Type)
		return nil
	}

	procErr := d.dispatch(ctx, event)
	if procErr != nil {
		log.Errorf("[Webhook] handling event %s (%s) failed: %v", event.ID, event.Type, procErr)
	}
	errMsg := ""
	if procErr != nil {
		errMsg = procErr.Error()
	}
	if err := d.repo.MarkWebhookProcessed(stored.ID, errMsg); err != nil {
		log.Errorf("[Webhook] marking event %s processed failed: %v", event.ID, err)
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return d.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		return d.handleSubscriptionUpserted(ctx, event)
	case "customer.subscription.deleted":
		return d.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded", "invoice.payment_failed":
		return d.handleInvoiceEvent(ctx, event)
	default:
		log.Infof("[Webhook] unhandled event type %s, ignoring", event.Type)
		return nil
	}
}

func (d *Dispatcher) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("checkout session payload invalid: %w", err)
	}

	userID := sess.Metadata["userId"]
	if userID == "" {
		log.Warnf("[Webhook] checkout session %s has no userId metadata, skipping", sess.ID)
		return nil
	}
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		log.Warnf("[Webhook] checkout session %s has no subscription, skipping", sess.ID)
		return nil
	}

	// The session payload carries no billing details; fetch the full
	// subscription before reconciling.
	remote, err := d.client.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s for checkout session %s: %w", sess.Subscription.ID, sess.ID, err)
	}
	if remote.Metadata == nil {
		remote.Metadata = map[string]string{}
	}
	if remote.Metadata["userId"] == "" {
		remote.Metadata["userId"] = userID
	}

	res, err := d.rec.Reconcile(ctx, remote)
	if err != nil {
		return err
	}
	log.Infof("[Webhook] checkout completed for user %s: subscription %s is %s", userID, remote.ID, res.NewStatus)
	return nil
}

func (d *Dispatcher) handleSubscriptionUpserted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("subscription payload invalid: %w", err)
	}

	// The webhook payload already carries the full subscription state, no
	// extra remote fetch needed.
	res, err := d.rec.Reconcile(ctx, SnapshotFromStripe(&sub))
	if err != nil {
		if errors.Is(err, ErrNoUserMapping) {
			log.Warnf("[Webhook] subscription %s has no userId metadata and no local row, skipping", sub.ID)
			return nil
		}
		return err
	}
	if res.Changed {
		log.Infof("[Webhook] subscription %s reconciled: %s -> %s", sub.ID, res.PreviousStatus, res.NewStatus)
	}
	return nil
}

func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("subscription payload invalid: %w", err)
	}

	local, err := d.repo.GetSubscriptionByExternalID(sub.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Webhook] deleted subscription %s is unknown locally, skipping", sub.ID)
			return nil
		}
		return err
	}

	// Terminal transition, no mapping ambiguity.
	_, err = d.rec.ForceCancel(ctx, local)
	if err == nil {
		log.Infof("[Webhook] subscription %s deleted, local row cancelled", sub.ID)
	}
	return err
}

func (d *Dispatcher) handleInvoiceEvent(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("invoice payload invalid: %w", err)
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return nil
	}

	// Invoices do not carry full subscription state; re-fetch and
	// reconcile. For payment_succeeded this extends the period, for
	// payment_failed the re-fetched past_due/unpaid status maps to
	// INACTIVE and drops pro membership immediately.
	remote, err := d.client.GetSubscription(ctx, inv.Subscription.ID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s for invoice %s: %w", inv.Subscription.ID, inv.ID, err)
	}

	res, err := d.rec.Reconcile(ctx, remote)
	if err != nil {
		if errors.Is(err, ErrNoUserMapping) {
			log.Warnf("[Webhook] invoice %s references unknown subscription %s without user mapping, skipping", inv.ID, remote.ID)
			return nil
		}
		return err
	}
	if res.Changed {
		log.Infof("[Webhook] invoice %s reconciled subscription %s: %s -> %s", inv.ID, remote.ID, res.PreviousStatus, res.NewStatus)
	}
	return nil
}
