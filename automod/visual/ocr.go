package visual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/mentionmod/mentionmod/util"

	"github.com/carlmjohnson/versioninfo"
)

// Client for a self-hosted OCR service (eg, a small tesseract or PaddleOCR wrapper). The image is uploaded as the multipart form file "file" to "<Host>/ocr", and the service responds with JSON: {"text": "..."}.
type OCRClient struct {
	Client  *http.Client
	Host    string
	Token   string
	Fetcher *ImageFetcher
}

var _ Extractor = (*OCRClient)(nil)

type OCRResp struct {
	Text string `json:"text"`
}

func NewOCRClient(host, token string, fetcher *ImageFetcher) *OCRClient {
	return &OCRClient{
		Client:  util.RobustHTTPClient(),
		Host:    host,
		Token:   token,
		Fetcher: fetcher,
	}
}

func (oc *OCRClient) Name() string {
	return "ocr"
}

func (oc *OCRClient) Extract(ctx context.Context, imageURL string) (string, error) {
	return observe(ctx, oc.Name(), func(ctx context.Context) (string, error) {
		img, err := oc.Fetcher.Fetch(ctx, imageURL)
		if err != nil {
			return "", err
		}
		return oc.recognize(ctx, img)
	})
}

func (oc *OCRClient) recognize(ctx context.Context, img *Image) (string, error) {
	// generic HTTP form file upload, then parse the response JSON
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(oc.Host, "/")+"/ocr", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "mentionmod/"+versioninfo.Short())
	if oc.Token != "" {
		req.Header.Set("Authorization", "Bearer "+oc.Token)
	}

	client := oc.Client
	if client == nil {
		client = util.RobustHTTPClient()
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("OCR request failed: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OCR request failed statusCode=%d", res.StatusCode)
	}
	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read OCR resp body: %v", err)
	}
	var respObj OCRResp
	if err := json.Unmarshal(respBytes, &respObj); err != nil {
		return "", fmt.Errorf("failed to parse OCR resp JSON: %v", err)
	}
	return respObj.Text, nil
}
