package generator

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jjudge-oj/problemgen/config"
	"google.golang.org/genai"
)

// TextClient sends one rendered prompt to a model and returns its raw text.
// Implementations return *Error values classified as ErrProvider or
// ErrProviderBlocked.
type TextClient interface {
	GenerateText(ctx context.Context, prompt Prompt) (string, error)
}

// GeminiClient is a TextClient backed by the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient builds the process-wide Gemini client. httpClient may be
// nil to use the default transport.
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig, httpClient *http.Client) (*GeminiClient, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    cfg.BaseURL,
			APIVersion: cfg.APIVersion,
		},
	}
	if cfg.Timeout > 0 {
		timeout := cfg.Timeout
		clientCfg.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, &Error{
			Class:   ErrProvider,
			Code:    CodeInvalidAPIKey,
			Message: "failed to create Gemini client",
			Err:     err,
		}
	}
	return &GeminiClient{client: client, model: cfg.Model}, nil
}

func (c *GeminiClient) Model() string {
	return c.model
}

func (c *GeminiClient) GenerateText(ctx context.Context, prompt Prompt) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: prompt.Params.MaxOutputTokens,
	}
	if prompt.Params.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(prompt.Params.Temperature)
	}
	if prompt.Params.TopP > 0 {
		genCfg.TopP = genai.Ptr(prompt.Params.TopP)
	}
	if prompt.Params.TopK > 0 {
		genCfg.TopK = genai.Ptr(prompt.Params.TopK)
	}
	if prompt.System != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt.Text), genCfg)
	if err != nil {
		return "", classifyProviderError(err)
	}
	if resp == nil {
		return "", parseError(CodeEmptyResponse, "no response generated", nil)
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		msg := "prompt blocked: " + string(fb.BlockReason)
		if fb.BlockReasonMessage != "" {
			msg += ": " + fb.BlockReasonMessage
		}
		return "", &Error{Class: ErrProviderBlocked, Code: CodeBlocked, Message: msg}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		switch reason := resp.Candidates[0].FinishReason; reason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
			return "", &Error{Class: ErrProviderBlocked, Code: CodeBlocked, Message: "response blocked: " + string(reason)}
		}
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", parseError(CodeEmptyResponse, "empty response generated", nil)
	}
	return text, nil
}

func classifyProviderError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Class: ErrProvider, Code: CodeTimeout, Message: "provider call timed out", Err: err}
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		code := CodeServiceDown
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			code = CodeRateLimit
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			code = CodeInvalidAPIKey
		case apiErr.Code == http.StatusGatewayTimeout:
			code = CodeTimeout
		}
		return &Error{Class: ErrProvider, Code: code, Message: "provider returned an error", Err: err}
	}

	return &Error{Class: ErrProvider, Code: CodeServiceDown, Message: "provider call failed", Err: err}
}
