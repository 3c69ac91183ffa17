package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yomogy/kikitori/internal/logger"
)

// ErrNoAPIKey is returned when no API key has been configured
var ErrNoAPIKey = errors.New("API key not configured")

// Transcriber is the interface for turning recordings into text
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	FormatText(ctx context.Context, text string, words map[string]string) (string, error)
}

// Config holds transcription client configuration
type Config struct {
	APIKey         string
	BaseURL        string        // Default: https://api.openai.com
	Model          string        // Default: "gpt-4o-mini-transcribe"
	FormatModel    string        // Default: "gpt-4o-mini"
	Timeout        time.Duration // Whole-request timeout
	ConnectTimeout time.Duration
	MaxRetries     int           // Total attempts for transient failures
	RetryBaseDelay time.Duration // Backoff base, doubled per attempt
}

// DefaultConfig returns the default transcription configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://api.openai.com",
		Model:          "gpt-4o-mini-transcribe",
		FormatModel:    "gpt-4o-mini",
		Timeout:        120 * time.Second,
		ConnectTimeout: 30 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
	}
}

// maxRetryDelay caps the exponential backoff
const maxRetryDelay = 30 * time.Second

const formatSystemPrompt = "You are a transcription proofreader. " +
	"Maintain the original language of the input text. Never translate. " +
	"Output the corrected text directly without any meta-commentary."

// Client implements Transcriber against an OpenAI-compatible API
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger

	mu     sync.RWMutex
	apiKey string
}

var _ Transcriber = (*Client)(nil)

// NewClient creates a transcription client
func NewClient(cfg Config, log *logger.Logger) *Client {
	return &Client{
		cfg:    cfg,
		apiKey: cfg.APIKey,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
			},
		},
		log: log,
	}
}

// SetAPIKey replaces the API key used for subsequent requests
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

func (c *Client) getAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe posts the WAV file to the transcription endpoint. Transient
// failures (5xx, rate limits, timeouts, connection errors) are retried
// with exponential backoff; other API errors fail immediately.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if c.getAPIKey() == "" {
		return "", ErrNoAPIKey
	}

	c.log.Info("Transcribing audio file: %s", audioPath)

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBaseDelay << (attempt - 1)
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			c.log.Warn("Retrying transcription in %v...", delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		c.log.Info("Sending transcription request (attempt %d/%d)", attempt+1, c.cfg.MaxRetries)

		text, retryable, err := c.postAudio(ctx, audioPath, data)
		if err == nil {
			c.log.Info("Transcription successful")
			return text, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("transcription failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

// postAudio performs one transcription request. The second return value
// reports whether the failure is worth retrying.
func (c *Client) postAudio(ctx context.Context, audioPath string, data []byte) (string, bool, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(audioPath))))
	h.Set("Content-Type", "audio/wav")
	part, err := w.CreatePart(h)
	if err != nil {
		return "", false, fmt.Errorf("failed to create multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", false, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := w.WriteField("model", c.cfg.Model); err != nil {
		return "", false, fmt.Errorf("failed to write model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", false, fmt.Errorf("failed to finish multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.getAPIKey())
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("Transcription request failed: %v", err)
		return "", isRetryableNetworkError(err), fmt.Errorf("failed to send API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 32*1024))
		c.log.Error("Transcription API error %d: %s", resp.StatusCode, string(body))
		retryable := resp.StatusCode >= 500 ||
			resp.StatusCode == http.StatusTooManyRequests ||
			strings.Contains(string(body), "rate limit") ||
			strings.Contains(string(body), "timeout")
		return "", retryable, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		c.log.Error("Failed to parse API response: %v", err)
		return "", true, fmt.Errorf("failed to parse API response: %w", err)
	}

	return tr.Text, false, nil
}

type chatResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// FormatText cleans up a transcript through the chat completions endpoint,
// embedding the user dictionary in the prompt so replacements survive the
// rewrite. Empty input returns empty output without a request.
func (c *Client) FormatText(ctx context.Context, text string, words map[string]string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if c.getAPIKey() == "" {
		return "", ErrNoAPIKey
	}

	c.log.Info("Formatting transcript (%d dictionary words)", len(words))

	body, err := json.Marshal(map[string]interface{}{
		"model": c.cfg.FormatModel,
		"messages": []map[string]string{
			{"role": "system", "content": formatSystemPrompt},
			{"role": "user", "content": buildFormatPrompt(text, words)},
		},
		"temperature": 0.5,
		"max_tokens":  1000,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.getAPIKey())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send API request: %w", err)
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}

	if cr.Error != nil {
		c.log.Error("Formatting API error: %s", cr.Error.Message)
		return "", fmt.Errorf("API error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("API response contained no choices")
	}

	c.log.Info("Transcript formatting complete")
	return cr.Choices[0].Message.Content, nil
}

// buildFormatPrompt embeds the dictionary into the cleanup instructions.
// Words are sorted so the prompt is deterministic.
func buildFormatPrompt(text string, words map[string]string) string {
	var sb strings.Builder

	sb.WriteString("Enhance this transcribed text while preserving the original language:\n")
	sb.WriteString("- Keep the text in its original language - do not translate\n")
	sb.WriteString("- Remove excessive filler words (like えー, あの) only if they are overly frequent\n")
	sb.WriteString("- Preserve casual speech patterns and tone\n")
	sb.WriteString("- Keep the original writing style and expressions\n")
	sb.WriteString("- Add line breaks and paragraph separations only where necessary\n")
	sb.WriteString("- Add bullet points or lists where contextually appropriate\n")

	if len(words) > 0 {
		keys := make([]string, 0, len(words))
		for k := range words {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString("When the following words or expressions appear, make sure to modify them exactly as specified:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- Replace %q with %q\n", k, words[k])
		}
		sb.WriteString("\nEnsure to apply these word replacements exactly as specified while maintaining the word usage context.\n\n")
	}

	sb.WriteString("Input text: ")
	sb.WriteString(text)

	return sb.String()
}

// isRetryableNetworkError reports whether a transport-level failure is
// transient: timeouts and connection errors are worth retrying, anything
// else (including caller cancellation) is not
func isRetryableNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
