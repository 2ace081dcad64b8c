package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/onellm/onechat/config"
)

var ErrOCRKeyNotConfigured = errors.New("ocr api key is not configured")

// OCRUsecase extracts text from user-attached images through the OCR proxy.
// Unlike search, failures here are surfaced: the user must know their image
// was not read.
type OCRUsecase struct {
	cfg    config.OCR
	client *http.Client
}

func NewOCRUsecase(cfg config.OCR) *OCRUsecase {
	return &OCRUsecase{
		cfg:    cfg,
		client: &http.Client{},
	}
}

// ExtractText uploads the image and returns the parsed text.
func (o *OCRUsecase) ExtractText(ctx context.Context, fileName string, file io.Reader) (string, error) {
	if o.cfg.APIKey == "" {
		return "", ErrOCRKeyNotConfigured
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err = io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	_ = form.WriteField("apikey", o.cfg.APIKey)
	_ = form.WriteField("language", o.cfg.Language)
	_ = form.WriteField("isOverlayRequired", "false")
	if err = form.Close(); err != nil {
		return "", fmt.Errorf("failed to finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.URL, body)
	if err != nil {
		return "", fmt.Errorf("failed to build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr request failed: HTTP %d", resp.StatusCode)
	}

	var payload struct {
		IsErroredOnProcessing bool     `json:"IsErroredOnProcessing"`
		ErrorMessage          []string `json:"ErrorMessage"`
		ParsedResults         []struct {
			ParsedText string `json:"ParsedText"`
		} `json:"ParsedResults"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode ocr response: %w", err)
	}
	if payload.IsErroredOnProcessing {
		if len(payload.ErrorMessage) > 0 {
			return "", fmt.Errorf("ocr processing failed: %s", payload.ErrorMessage[0])
		}
		return "", errors.New("ocr processing failed")
	}
	if len(payload.ParsedResults) == 0 {
		return "", nil
	}
	return strings.TrimSpace(payload.ParsedResults[0].ParsedText), nil
}
