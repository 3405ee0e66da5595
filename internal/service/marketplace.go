package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shinyyama/safedeal/internal/model"
	"github.com/shinyyama/safedeal/internal/realtime"
	"github.com/shinyyama/safedeal/internal/reqctx"
)

// EventPublisher pushes realtime events to conversation participants.
type EventPublisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

// Marketplace is the entry point for the HTTP layer. It composes the
// conversation registry, the message ledger and the deal state machine, and
// reports failures with the service error taxonomy.
type Marketplace struct {
	convs  ConversationService
	msgs   MessageService
	deals  DealService
	notify NotificationService
	events EventPublisher
	logger zerolog.Logger
}

func NewMarketplace(convs ConversationService, msgs MessageService, deals DealService, notify NotificationService, events EventPublisher, logger zerolog.Logger) *Marketplace {
	return &Marketplace{
		convs:  convs,
		msgs:   msgs,
		deals:  deals,
		notify: notify,
		events: events,
		logger: logger.With().Str("service", "marketplace").Logger(),
	}
}

// ContactSeller opens (or reopens) the buyer's thread with a seller about a listing.
func (m *Marketplace) ContactSeller(ctx context.Context, actorID, listingID, sellerID string) (*model.Conversation, error) {
	cv, err := m.convs.Start(ctx, listingID, actorID, sellerID)
	return cv, m.translate(ctx, "contact seller", err)
}

func (m *Marketplace) InitiateDeal(ctx context.Context, actorID string, in InitiateDealInput) (*model.SafeDeal, error) {
	in.BuyerID = actorID
	d, err := m.deals.Initiate(ctx, in)
	if err != nil {
		return nil, m.translate(ctx, "initiate deal", err)
	}
	m.notifyDeal(ctx, *d, d.SellerID, model.NotificationDealCreated, "New safe deal", fmt.Sprintf("A buyer opened a safe deal for %s %s.", d.Amount.String(), d.Currency))
	m.publishDeal(ctx, *d, actorID)
	return d, nil
}

func (m *Marketplace) TransitionDeal(ctx context.Context, actorID, dealID string, t Transition) (*model.SafeDeal, error) {
	d, err := m.deals.Apply(ctx, dealID, actorID, t)
	if err != nil {
		return nil, m.translate(ctx, "transition deal", err)
	}
	counterpart := d.SellerID
	if actorID == d.SellerID {
		counterpart = d.BuyerID
	}
	m.notifyDeal(ctx, *d, counterpart, model.NotificationDealStatus(d.Status), "Safe deal updated", fmt.Sprintf("The deal is now %s.", d.Status))
	m.publishDeal(ctx, *d, actorID)
	return d, nil
}

func (m *Marketplace) GetDeal(ctx context.Context, actorID, dealID string) (*model.SafeDeal, error) {
	d, err := m.deals.Get(ctx, dealID, actorID)
	if err != nil {
		return nil, m.translate(ctx, "get deal", err)
	}
	if m.notify != nil {
		m.sideEffect(ctx, "mark deal notifications", func(ctx context.Context) error {
			return m.notify.MarkByDeal(ctx, actorID, d.ID)
		})
	}
	return d, nil
}

// ListDeals lists the actor's deals as buyer or as seller, newest first.
func (m *Marketplace) ListDeals(ctx context.Context, actorID string, role Role, page Page) ([]model.SafeDeal, error) {
	var (
		list []model.SafeDeal
		err  error
	)
	switch role {
	case RoleBuyer:
		list, err = m.deals.ListByBuyer(ctx, actorID, page)
	case RoleSeller:
		list, err = m.deals.ListBySeller(ctx, actorID, page)
	default:
		return nil, invalidArgument("role must be buyer or seller")
	}
	return list, m.translate(ctx, "list deals", err)
}

func (m *Marketplace) ListConversations(ctx context.Context, actorID string, page Page) ([]ConversationSummary, error) {
	list, err := m.convs.List(ctx, actorID, page)
	return list, m.translate(ctx, "list conversations", err)
}

func (m *Marketplace) GetConversation(ctx context.Context, actorID, convID string) (*model.Conversation, error) {
	cv, err := m.convs.Get(ctx, convID, actorID)
	return cv, m.translate(ctx, "get conversation", err)
}

func (m *Marketplace) SendMessage(ctx context.Context, actorID, convID, content string) (*model.Message, error) {
	msg, err := m.msgs.Append(ctx, convID, actorID, content)
	if err != nil {
		return nil, m.translate(ctx, "send message", err)
	}
	m.publish(ctx, realtime.EventMessageCreated, convID, actorID, realtime.MessagePayload{
		ID:        msg.ID,
		Seq:       msg.Seq,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	})
	m.notifyRecipient(ctx, actorID, convID, msg)
	return msg, nil
}

func (m *Marketplace) notifyRecipient(ctx context.Context, actorID, convID string, msg *model.Message) {
	if m.notify == nil {
		return
	}
	m.sideEffect(ctx, "notify recipient", func(ctx context.Context) error {
		cv, err := m.convs.Get(ctx, convID, actorID)
		if err != nil {
			return err
		}
		recipient := cv.SellerID
		if actorID == cv.SellerID {
			recipient = cv.BuyerID
		}
		m.notify.Notify(ctx, model.Notification{
			UserUID:        recipient,
			Type:           model.NotificationMessageCreated,
			Title:          "New message",
			Body:           preview(msg.Content),
			ConversationID: strPtr(convID),
		})
		return nil
	})
}

func (m *Marketplace) ListMessages(ctx context.Context, actorID, convID string, page Page) ([]model.Message, error) {
	list, err := m.msgs.List(ctx, convID, actorID, page)
	return list, m.translate(ctx, "list messages", err)
}

func (m *Marketplace) MarkRead(ctx context.Context, actorID, convID string) (int64, error) {
	n, err := m.msgs.MarkRead(ctx, convID, actorID)
	if err != nil {
		return 0, m.translate(ctx, "mark read", err)
	}
	if m.notify != nil {
		m.sideEffect(ctx, "mark conversation notifications", func(ctx context.Context) error {
			return m.notify.MarkByConversation(ctx, actorID, convID)
		})
	}
	return n, nil
}

// PublishTyping relays a typing indicator from a participant.
func (m *Marketplace) PublishTyping(ctx context.Context, actorID, convID string) {
	m.publish(ctx, realtime.EventTyping, convID, actorID, nil)
}

// DealExpired reports an expiry cancellation to both parties.
func (m *Marketplace) DealExpired(ctx context.Context, d model.SafeDeal) {
	for _, uid := range []string{d.BuyerID, d.SellerID} {
		m.notifyDeal(ctx, d, uid, model.NotificationDealStatus(d.Status), "Safe deal expired", "The deal was cancelled because it was not shipped in time.")
	}
	m.publishDeal(ctx, d, "")
}

func (m *Marketplace) notifyDeal(ctx context.Context, d model.SafeDeal, uid, typ, title, body string) {
	if m.notify == nil {
		return
	}
	m.notify.Notify(ctx, model.Notification{
		UserUID: uid,
		Type:    typ,
		Title:   title,
		Body:    body,
		DealID:  strPtr(d.ID),
	})
}

// publishDeal posts the deal update into the matching conversation stream,
// if the parties have one.
func (m *Marketplace) publishDeal(ctx context.Context, d model.SafeDeal, actorID string) {
	if m.events == nil {
		return
	}
	sctx, cancel := withShortDeadline(ctx)
	defer cancel()
	cv, err := m.convs.Find(sctx, d.ListingID, d.BuyerID, d.SellerID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn().Err(err).Str("deal_id", d.ID).Msg("lookup conversation for deal event failed")
		}
		return
	}
	m.publish(ctx, realtime.EventDealUpdated, cv.ID, actorID, realtime.DealPayload{ID: d.ID, Status: string(d.Status)})
}

func (m *Marketplace) publish(ctx context.Context, typ, convID, actorID string, data interface{}) {
	if m.events == nil {
		return
	}
	ev, err := realtime.NewEvent(typ, convID, actorID, data)
	if err != nil {
		m.logger.Warn().Err(err).Str("type", typ).Msg("build event failed")
		return
	}
	m.sideEffect(ctx, "publish "+typ, func(ctx context.Context) error {
		return m.events.Publish(ctx, ev)
	})
}

// sideEffect runs a best-effort follow-up that must not change the result of
// the operation that triggered it.
func (m *Marketplace) sideEffect(ctx context.Context, name string, fn func(context.Context) error) {
	sctx, cancel := withShortDeadline(ctx)
	defer cancel()
	if err := fn(sctx); err != nil {
		m.logger.Warn().Err(err).Str("step", name).Str("request_id", reqctx.RequestID(ctx)).Msg("side effect failed")
	}
}

// translate passes taxonomy errors through and wraps anything else as
// ErrInternal after logging it.
func (m *Marketplace) translate(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	m.logger.Error().Err(err).Str("op", op).Str("request_id", reqctx.RequestID(ctx)).Msg("unexpected failure")
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

func preview(content string) string {
	const max = 80
	r := []rune(content)
	if len(r) <= max {
		return content
	}
	return string(r[:max]) + "…"
}
