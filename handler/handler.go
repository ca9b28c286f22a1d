package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"petstore-assistant/internal/domain"
	"petstore-assistant/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	maxBodyBytes      = 1 << 20
)

type TurnRouter interface {
	OnMessage(ctx context.Context, turn domain.Turn, reply usecase.Replier) error
	OnMembersAdded(ctx context.Context, turn domain.Turn, reply usecase.Replier) error
}

type Handler struct {
	router TurnRouter
	now    func() time.Time
}

type repliesResponse struct {
	Activities []domain.Activity `json:"activities"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(router TurnRouter) (*Handler, error) {
	if router == nil {
		return nil, errors.New("handler: router must not be nil")
	}
	return &Handler{router: router, now: time.Now}, nil
}

// Serve runs one turn for the activity in body and returns the replies
// addressed back to its sender. A failed turn returns no replies.
func (h *Handler) Serve(ctx context.Context, body []byte) ([]domain.Activity, error) {
	var in domain.Activity
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_activity", Err: err}
	}

	out := &collector{inbound: in, now: h.now}
	turn := domain.TurnFromActivity(in)

	var err error
	switch in.Type {
	case domain.ActivityMessage:
		err = h.router.OnMessage(ctx, turn, out)
	case domain.ActivityConversationUpdate:
		if len(in.MembersAdded) > 0 {
			err = h.router.OnMembersAdded(ctx, turn, out)
		}
	default:
		slog.Debug("ignoring activity", "type", in.Type, "conversation_id", in.Conversation.ID)
	}
	if err != nil {
		return nil, err
	}
	return out.activities(), nil
}

// Handle is the API Gateway proxy entry point.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(req.Headers)
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			status, payload := h.errorPayload(correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_body_encoding", Err: err})
			return apiResponse(status, payload, correlationID), nil
		}
		body = decoded
	}
	status, payload := h.respond(ctx, body, correlationID)
	return apiResponse(status, payload, correlationID), nil
}

// ServeHTTP serves the Bot Framework messaging endpoint for local runs.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get(correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(correlationHeader, correlationID)

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		status, payload := h.errorPayload(correlationID, &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "read_body_error", Err: err})
		w.WriteHeader(status)
		_, _ = w.Write(payload)
		return
	}
	status, payload := h.respond(r.Context(), body, correlationID)
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func (h *Handler) respond(ctx context.Context, body []byte, correlationID string) (int, []byte) {
	replies, err := h.Serve(ctx, body)
	if err != nil {
		return h.errorPayload(correlationID, err)
	}
	if replies == nil {
		replies = []domain.Activity{}
	}
	payload, err := json.Marshal(repliesResponse{Activities: replies})
	if err != nil {
		return h.errorPayload(correlationID, fmt.Errorf("handler: encode replies: %w", err))
	}
	return http.StatusOK, payload
}

func (h *Handler) errorPayload(correlationID string, err error) (int, []byte) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("turn failed", "err", err, "code", code, "correlation_id", correlationID)
	} else {
		slog.Warn("turn rejected", "err", err, "code", code, "correlation_id", correlationID)
	}
	payload, _ := json.Marshal(errorResponse{Error: code})
	return status, payload
}

func statusFor(err error) (int, string) {
	var usecaseErr *usecase.Error
	if !errors.As(err, &usecaseErr) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
	switch usecaseErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, string(usecaseErr.Code)
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests, string(usecaseErr.Code)
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(usecaseErr.Code)
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
}

func apiResponse(status int, body []byte, correlationID string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(body),
	}
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// collector is the Replier for one turn. Sends may come from several
// goroutines during greeting fan-out.
type collector struct {
	inbound domain.Activity
	now     func() time.Time

	mu      sync.Mutex
	replies []domain.Activity
}

func (c *collector) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	reply := domain.Activity{
		Type:         domain.ActivityMessage,
		ID:           uuid.NewString(),
		Timestamp:    c.now().UTC().Format(time.RFC3339Nano),
		ChannelID:    c.inbound.ChannelID,
		ServiceURL:   c.inbound.ServiceURL,
		From:         c.inbound.Recipient,
		Recipient:    c.inbound.From,
		Conversation: c.inbound.Conversation,
		Text:         text,
		ReplyToID:    c.inbound.ID,
	}
	c.mu.Lock()
	c.replies = append(c.replies, reply)
	c.mu.Unlock()
	return nil
}

func (c *collector) activities() []domain.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Activity(nil), c.replies...)
}
