package document

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement/internal/model"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const extractPrompt = `You read proforma invoices. Reply with a single JSON object and nothing else:
{"vendor": string, "currency": string, "total": number|null,
 "line_items": [{"description": string, "quantity": number, "unit_price": number, "total": number}],
 "confidence": number between 0 and 1}`

const receiptPrompt = `You compare a purchase receipt against an approved purchase order. Reply with a single
JSON object and nothing else:
{"vendor_match": bool, "amount_match": bool, "items_match": bool,
 "discrepancies": [string], "confidence": number between 0 and 1}`

// OpenAIAnalyzer implements Extractor and ReceiptValidator with chat completions.
type OpenAIAnalyzer struct {
	client openai.Client
	model  string
	now    func() time.Time
}

func NewOpenAIAnalyzer(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAIAnalyzer {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}
	clientOpts = append(clientOpts, opts...)
	return &OpenAIAnalyzer{
		client: openai.NewClient(clientOpts...),
		model:  model,
		now:    time.Now,
	}
}

func (a *OpenAIAnalyzer) Extract(ctx context.Context, doc Document) (*model.ProformaExtraction, error) {
	var out model.ProformaExtraction
	if err := a.ask(ctx, extractPrompt, "Extract the proforma.", doc, &out); err != nil {
		return nil, err
	}
	out.ExtractedAt = a.now().UTC()
	return &out, nil
}

func (a *OpenAIAnalyzer) ValidateReceipt(ctx context.Context, doc Document, want ReceiptExpectation) (*model.ReceiptValidation, error) {
	expected, err := json.Marshal(want)
	if err != nil {
		return nil, err
	}
	var out model.ReceiptValidation
	instruction := "Purchase order:\n" + string(expected) + "\nCheck the attached receipt against it."
	if err := a.ask(ctx, receiptPrompt, instruction, doc, &out); err != nil {
		return nil, err
	}
	out.ValidatedAt = a.now().UTC()
	return &out, nil
}

func (a *OpenAIAnalyzer) ask(ctx context.Context, system, instruction string, doc Document, dst interface{}) error {
	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(instruction),
				attachment(doc),
			}),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return fmt.Errorf("failed to get AI response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("no response from AI")
	}
	return decodeAnswer(resp.Choices[0].Message.Content, dst)
}

func attachment(doc Document) openai.ChatCompletionContentPartUnionParam {
	dataURL := "data:" + doc.ContentType + ";base64," + base64.StdEncoding.EncodeToString(doc.Data)
	if strings.HasPrefix(doc.ContentType, "image/") {
		return openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL})
	}
	return openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
		FileData: openai.String(dataURL),
		Filename: openai.String(doc.Filename),
	})
}

// decodeAnswer parses a JSON answer, tolerating a surrounding markdown code fence or prose.
func decodeAnswer(raw string, dst interface{}) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("failed to parse AI answer: %w", err)
	}
	return nil
}
