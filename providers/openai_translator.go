package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const (
	chatCompletionUri = `https://api.openai.com/v1/chat/completions`
	translationModel  = "gpt-3.5-turbo"

	// Low temperature keeps the output close to a literal translation.
	translationTemperature = 0.3
)

// OpenAITranslator implements Translator with the OpenAI chat completion API.
type OpenAITranslator struct {
	client *http.Client
	apiKey string
}

func NewOpenAITranslator(client *http.Client, apiKey string) *OpenAITranslator {
	return &OpenAITranslator{
		client: client,
		apiKey: apiKey,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (t *OpenAITranslator) Translate(ctx context.Context, text string, targetLanguageCode string) (string, error) {
	payload := chatCompletionRequest{
		Model: translationModel,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: fmt.Sprintf("You are a professional translator. Translate the following text to %s. Maintain the original meaning and tone. Only respond with the translation, no explanations.", targetLanguageCode),
			},
			{
				Role:    "user",
				Content: text,
			},
		},
		Temperature: translationTemperature,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", chatCompletionUri, bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fail to request translation")
	}
	defer res.Body.Close()

	body, err := ioutil.ReadAll(res.Body)
	if err != nil {
		return "", errors.Wrap(err, "fail to read translation response")
	}

	parsed := &chatCompletionResponse{}
	if err := json.Unmarshal(body, parsed); err != nil {
		return "", errors.Wrap(err, "fail to parse translation response")
	}
	if parsed.Error != nil {
		return "", errors.Errorf("translation provider error: %s", parsed.Error.Message)
	}
	if res.StatusCode != http.StatusOK {
		return "", errors.Errorf("unexpected status %d from translation provider", res.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no translation received")
	}

	translation := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if translation == "" {
		return "", errors.New("empty translation received")
	}
	return translation, nil
}
