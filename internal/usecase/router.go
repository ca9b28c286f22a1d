package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"petstore-assistant/internal/domain"
	"petstore-assistant/internal/sessioncodec"
	"petstore-assistant/internal/state"
)

// Fixed replies.
const (
	WelcomeMessage = "Hello and welcome to the Azure Pet Store, you can ask me questions about our products, your shopping cart and your order, you can also ask me for information about pet animals. How can I help you?"

	needSessionForCartMessage = "Once I get your session information, I will be able to update your shopping cart."
	viewCartMessage           = "Once I get your session information, I will be able to display your shopping cart."
	placeOrderMessage         = "Once I get your session information, I will be able to place your order."

	debugCommand = "debug"
)

type Classifier interface {
	Classify(ctx context.Context, text string) (domain.DPResponse, error)
}

type Responder interface {
	Complete(ctx context.Context, text string, c domain.Classification) (domain.DPResponse, error)
	UpdateCart(ctx context.Context, session domain.SessionInfo, productID string) (domain.DPResponse, error)
}

// SessionStore opens the per-turn view of a conversation's state.
type SessionStore interface {
	Begin(ctx context.Context, conversationID string) (*state.Turn, error)
}

// Replier delivers outbound text for the turn being processed. Greeting
// fan-out calls it from several goroutines.
type Replier interface {
	SendText(ctx context.Context, text string) error
}

// Router turns inbound activities into at most one reply each.
type Router struct {
	classifier Classifier
	responder  Responder
	store      SessionStore
}

func NewRouter(c Classifier, r Responder, s SessionStore) (*Router, error) {
	if c == nil {
		return nil, errors.New("usecase: classifier must not be nil")
	}
	if r == nil {
		return nil, errors.New("usecase: responder must not be nil")
	}
	if s == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	return &Router{classifier: c, responder: r, store: s}, nil
}

// storedSession is the session state read at the start of a turn.
type storedSession struct {
	sessionID    string
	csrfToken    string
	hasSessionID bool
	hasCSRFToken bool
}

// established is true only when both values are stored. A lone value is
// treated as no session.
func (s storedSession) established() bool {
	return s.hasSessionID && s.hasCSRFToken && s.sessionID != "" && s.csrfToken != ""
}

// OnMessage routes one message turn.
func (r *Router) OnMessage(ctx context.Context, turn domain.Turn, reply Replier) error {
	convID := strings.TrimSpace(turn.ConversationID)
	if convID == "" {
		return newError(ErrorInvalidInput, "missing_conversation_id", nil)
	}
	st, err := r.store.Begin(ctx, convID)
	if err != nil {
		return newError(ErrorInternal, "state_read_error", err)
	}
	stored := loadSession(st)

	// The marker is read from the raw text so identifiers keep their case.
	text := turn.Text
	var session *domain.SessionInfo
	decoded, found := sessioncodec.Decode(turn.Text)
	switch {
	case found && !stored.established():
		return r.bootstrap(ctx, st, convID, decoded, reply)
	case found:
		text = strings.ToLower(decoded.Text)
		slog.Warn("session marker ignored on established conversation", "conversation_id", convID)
	case stored.established():
		text = strings.ToLower(text)
		session = &domain.SessionInfo{SessionID: stored.sessionID, CSRFToken: stored.csrfToken, Text: text}
	default:
		text = strings.ToLower(text)
	}

	if text == debugCommand {
		return r.send(ctx, reply, debugText(stored))
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	resp, err := r.classifier.Classify(ctx, text)
	if err != nil {
		return asError(err, ErrorUpstream, "classification_error")
	}

	switch resp.Classification {
	case domain.UpdateShoppingCart:
		if session == nil {
			resp.ResponseText = needSessionForCartMessage
			break
		}
		resp, err = r.updateCart(ctx, *session, text)
		if err != nil {
			return err
		}
	case domain.ViewShoppingCart:
		resp.ResponseText = viewCartMessage
	case domain.PlaceOrder:
		resp.ResponseText = placeOrderMessage
	case domain.SearchForProducts:
		resp, err = r.responder.Complete(ctx, text, resp.Classification)
		if err != nil {
			return asError(err, ErrorUpstream, "completion_error")
		}
	case domain.SomethingElse:
		resp, err = r.responder.Complete(ctx, text, resp.Classification)
		if err != nil {
			return asError(err, ErrorUpstream, "completion_error")
		}
	default:
		return newError(ErrorInternal, "unknown_classification", fmt.Errorf("classification %q", resp.Classification))
	}

	slog.Info("turn routed",
		"conversation_id", convID,
		"classification", string(resp.Classification),
		"session", session != nil,
	)
	return r.send(ctx, reply, resp.ResponseText)
}

// updateCart finds the single product the text refers to and adds it to the
// cart. Without exactly one match the lookup reply is returned unchanged.
func (r *Router) updateCart(ctx context.Context, session domain.SessionInfo, text string) (domain.DPResponse, error) {
	lookup, err := r.responder.Complete(ctx, productLookupText(text), domain.SearchForProducts)
	if err != nil {
		return domain.DPResponse{}, asError(err, ErrorUpstream, "product_lookup_error")
	}
	if len(lookup.ProductIDs) != 1 {
		if strings.TrimSpace(lookup.ResponseText) == "" {
			return domain.DPResponse{}, newError(ErrorUpstream, "product_lookup_empty", nil)
		}
		return lookup, nil
	}
	resp, err := r.responder.UpdateCart(ctx, session, lookup.ProductIDs[0])
	if err != nil {
		return domain.DPResponse{}, asError(err, ErrorUpstream, "cart_update_error")
	}
	return resp, nil
}

func (r *Router) bootstrap(ctx context.Context, st *state.Turn, convID string, decoded domain.SessionInfo, reply Replier) error {
	st.Set(state.KeySessionID, decoded.SessionID)
	st.Set(state.KeyCSRFToken, decoded.CSRFToken)
	if err := st.Commit(ctx); err != nil {
		st.Discard()
		return newError(ErrorInternal, "state_commit_error", err)
	}
	slog.Info("session established", "conversation_id", convID, "session_id", decoded.SessionID)
	return r.send(ctx, reply, WelcomeMessage)
}

func loadSession(st *state.Turn) storedSession {
	var s storedSession
	s.sessionID, s.hasSessionID = st.Get(state.KeySessionID)
	s.csrfToken, s.hasCSRFToken = st.Get(state.KeyCSRFToken)
	return s
}

func debugText(s storedSession) string {
	sid, csrf := "null", "null"
	if s.hasSessionID {
		sid = s.sessionID
	}
	if s.hasCSRFToken {
		csrf = s.csrfToken
	}
	return "your session id is " + sid + " and your csrf token is " + csrf
}

func (r *Router) send(ctx context.Context, reply Replier, text string) error {
	if err := reply.SendText(ctx, text); err != nil {
		return newError(ErrorInternal, "reply_send_error", err)
	}
	return nil
}

// OnMembersAdded sends one empty activity to every added member other than
// the bot. Sends run concurrently; the first error is returned once all of
// them have finished.
func (r *Router) OnMembersAdded(ctx context.Context, turn domain.Turn, reply Replier) error {
	var g errgroup.Group
	for _, member := range turn.MembersAdded {
		if member.ID == turn.Recipient.ID {
			continue
		}
		g.Go(func() error {
			return reply.SendText(ctx, "")
		})
	}
	if err := g.Wait(); err != nil {
		return newError(ErrorInternal, "greeting_send_error", err)
	}
	return nil
}
