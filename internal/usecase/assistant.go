package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"petstore-assistant/internal/domain"
)

type ParamGetter interface {
	GetParameters(ctx context.Context, names ...string) (map[string]string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type CartClient interface {
	UpdateCart(ctx context.Context, session domain.SessionInfo, productID string) (domain.CartUpdate, error)
}

// AssistantService is the classifier and responder used by the Router. It
// classifies and answers through a chat model and mutates carts through
// the pet store.
type AssistantService struct {
	params      ParamGetter
	llm         LLMClient
	cart        CartClient
	paramPrefix string

	cacheMu     sync.RWMutex
	cacheLoaded bool
	openaiModel string
	catalog     string
}

func NewAssistantService(p ParamGetter, llm LLMClient, cart CartClient, paramPrefix string) (*AssistantService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if cart == nil {
		return nil, errors.New("usecase: cart client must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &AssistantService{
		params:      p,
		llm:         llm,
		cart:        cart,
		paramPrefix: paramPrefix,
	}, nil
}

// Classify maps text to a classification. Labels the model invents become
// SOMETHING_ELSE.
func (s *AssistantService) Classify(ctx context.Context, text string) (domain.DPResponse, error) {
	if err := s.ensureConfig(ctx); err != nil {
		return domain.DPResponse{}, newError(ErrorInternal, "ssm_load_error", err)
	}
	raw, err := s.llm.Chat(ctx, s.openaiModel, buildClassificationMessages(text))
	if err != nil {
		return domain.DPResponse{}, upstreamError("openai", err)
	}
	payload, err := parseDPResponse(raw)
	if err != nil {
		return domain.DPResponse{}, newError(ErrorUpstream, "openai_malformed_response", err)
	}
	return domain.DPResponse{
		Classification: domain.ParseClassification(payload.Classification),
		ResponseText:   payload.Response,
		ProductIDs:     payload.ProductIDs,
	}, nil
}

// Complete answers text for the given classification. For product searches
// the reply lists the ids of the matched catalog products.
func (s *AssistantService) Complete(ctx context.Context, text string, c domain.Classification) (domain.DPResponse, error) {
	if err := s.ensureConfig(ctx); err != nil {
		return domain.DPResponse{}, newError(ErrorInternal, "ssm_load_error", err)
	}
	raw, err := s.llm.Chat(ctx, s.openaiModel, buildCompletionMessages(text, c, s.catalog))
	if err != nil {
		return domain.DPResponse{}, upstreamError("openai", err)
	}
	payload, err := parseDPResponse(raw)
	if err != nil {
		return domain.DPResponse{}, newError(ErrorUpstream, "openai_malformed_response", err)
	}
	resp := domain.DPResponse{Classification: c, ResponseText: payload.Response}
	if c == domain.SearchForProducts {
		resp.ProductIDs = payload.ProductIDs
	}
	// Matched products are enough to act on without any text.
	if strings.TrimSpace(resp.ResponseText) == "" && len(resp.ProductIDs) == 0 {
		return domain.DPResponse{}, newError(ErrorUpstream, "openai_empty_response", nil)
	}
	return resp, nil
}

// UpdateCart adds productID to the shopper's cart.
func (s *AssistantService) UpdateCart(ctx context.Context, session domain.SessionInfo, productID string) (domain.DPResponse, error) {
	if !session.Valid() {
		return domain.DPResponse{}, newError(ErrorInvalidInput, "missing_session", nil)
	}
	update, err := s.cart.UpdateCart(ctx, session, productID)
	if err != nil {
		return domain.DPResponse{}, upstreamError("petstore", err)
	}
	return domain.DPResponse{
		Classification: domain.UpdateShoppingCart,
		ResponseText:   cartUpdateText(update),
		ProductIDs:     []string{update.ProductID},
	}, nil
}

func cartUpdateText(u domain.CartUpdate) string {
	name := strings.TrimSpace(u.ProductName)
	if name == "" {
		return fmt.Sprintf("I just added product %s to your shopping cart.", u.ProductID)
	}
	if u.Quantity > 1 {
		return fmt.Sprintf("I just added the %s to your shopping cart, you now have %d of them.", name, u.Quantity)
	}
	return fmt.Sprintf("I just added the %s to your shopping cart.", name)
}

func (s *AssistantService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	modelName := s.paramPrefix + "/config/openai_model"
	catalogName := s.paramPrefix + "/product_catalog"
	values, err := s.params.GetParameters(ctx, modelName, catalogName)
	if err != nil {
		return fmt.Errorf("usecase: load assistant config: %w", err)
	}
	model := strings.TrimSpace(values[modelName])
	if model == "" {
		return errors.New("usecase: openai model parameter is empty")
	}

	s.openaiModel = model
	s.catalog = values[catalogName]
	s.cacheLoaded = true
	return nil
}
