package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Server posts recordings to a whisper.cpp server's /inference endpoint.
type Server struct {
	client   *resty.Client
	language string
}

// NewServer returns a transcriber for the server at baseURL.
func NewServer(baseURL, language string, timeout time.Duration) (*Server, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("whisper server: url must not be empty")
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Server{client: client, language: language}, nil
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe implements Transcriber.
func (s *Server) Transcribe(ctx context.Context, path string) (string, error) {
	form := map[string]string{
		"response_format": "json",
		"temperature":     "0.0",
	}
	if s.language != "" {
		form["language"] = s.language
	}

	var result inferenceResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetFormData(form).
		SetResult(&result).
		SetError(&result).
		Post("/inference")
	if err != nil {
		return "", fmt.Errorf("whisper server: request: %w", err)
	}
	if resp.IsError() {
		if result.Error != "" {
			return "", fmt.Errorf("whisper server: %s: %s", resp.Status(), result.Error)
		}
		return "", fmt.Errorf("whisper server: %s", resp.Status())
	}
	return strings.TrimSpace(result.Text), nil
}
