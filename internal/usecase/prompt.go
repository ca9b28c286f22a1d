package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"petstore-assistant/internal/domain"
)

type dpResponsePayload struct {
	Classification string   `json:"classification"`
	Response       string   `json:"response"`
	ProductIDs     []string `json:"product_ids"`
}

func buildClassificationMessages(text string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildClassificationPrompt()},
		{Role: "user", Content: text},
	}
}

func buildClassificationPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You classify messages sent by shoppers to the Azure Pet Store assistant.",
		"",
		"Categories:",
		categoryList(),
		"",
		"Output Contract:",
		"Return JSON only with keys classification (one category name), response (\"\") and product_ids ([]).",
		"Use SOMETHING_ELSE when no other category clearly applies.",
	}, "\n")
}

func categoryList() string {
	descriptions := map[domain.Classification]string{
		domain.UpdateShoppingCart: "the shopper wants to add a product to, or change, their shopping cart",
		domain.ViewShoppingCart:   "the shopper wants to see what is in their shopping cart",
		domain.PlaceOrder:         "the shopper wants to check out or place their order",
		domain.SearchForProducts:  "the shopper is looking for products the store sells",
		domain.SomethingElse:      "anything else, including general questions about pets",
	}
	lines := make([]string, 0, len(domain.Classifications))
	for _, c := range domain.Classifications {
		lines = append(lines, fmt.Sprintf("- %s: %s", c, descriptions[c]))
	}
	return strings.Join(lines, "\n")
}

func buildCompletionMessages(text string, c domain.Classification, catalog string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: "system", Content: buildCompletionPrompt(c, catalog)},
		{Role: "user", Content: text},
	}
}

func buildCompletionPrompt(c domain.Classification, catalog string) string {
	lines := []string{
		"Role:",
		"You are the friendly assistant of the Azure Pet Store. Keep answers short and helpful.",
		"",
	}
	switch c {
	case domain.SearchForProducts:
		lines = append(lines,
			"Task:",
			"Find the products from the catalog below that match the shopper's request.",
			"Mention each matching product by name and list its id in product_ids.",
			"Only use products from the catalog. If nothing matches, say so and return product_ids [].",
			"",
			"Catalog:",
			normalizeCatalog(catalog),
		)
	default:
		lines = append(lines,
			"Task:",
			"Answer the shopper's question. Questions about pets and pet care are welcome.",
			"Return product_ids [].",
		)
	}
	lines = append(lines,
		"",
		"Output Contract:",
		fmt.Sprintf("Return JSON only with keys classification (%q), response (the reply to the shopper) and product_ids (array of strings).", c),
	)
	return strings.Join(lines, "\n")
}

// productLookupText is the question sent to the completion engine to find
// the product a cart update refers to.
func productLookupText(text string) string {
	return "find the product that is associated with the following text: '" + text + "'"
}

func normalizeCatalog(s string) string {
	rows := strings.Split(strings.TrimSpace(s), "\n")
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		r = strings.Join(strings.Fields(r), " ")
		if r != "" {
			out = append(out, r)
		}
	}
	return strings.Join(out, "\n")
}

func parseDPResponse(raw string) (dpResponsePayload, error) {
	var out dpResponsePayload
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return dpResponsePayload{}, fmt.Errorf("usecase: decode dp response: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return dpResponsePayload{}, errors.New("usecase: decode dp response: multiple JSON values")
		}
		return dpResponsePayload{}, fmt.Errorf("usecase: decode dp response trailing data: %w", err)
	}
	out.ProductIDs = cleanProductIDs(out.ProductIDs)
	return out, nil
}

// cleanProductIDs trims ids and drops blanks and repeats, keeping order.
func cleanProductIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
