package cloudinary

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client stores resource files in Cloudinary using their REST API.
type Client struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	now       func() time.Time
}

// New creates a Cloudinary client.
func New(cloudName, apiKey, apiSecret, folder string) *Client {
	return &Client{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   "https://api.cloudinary.com/v1_1",
		HTTP:      &http.Client{Timeout: 60 * time.Second},
		now:       time.Now,
	}
}

// UploadResult holds the response from Cloudinary after a successful upload.
type UploadResult struct {
	PublicID     string `json:"public_id"`
	SecureURL    string `json:"secure_url"`
	URL          string `json:"url"`
	ResourceType string `json:"resource_type"`
	Format       string `json:"format"`
	Bytes        int    `json:"bytes"`
}

// Upload sends raw file bytes. Cloudinary picks the resource type, so PDFs,
// audio and video are accepted alongside images.
func (c *Client) Upload(ctx context.Context, data []byte, filename string) (*UploadResult, error) {
	params := c.signed(map[string]string{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: create form file failed: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("cloudinary: write file failed: %w", err)
	}
	w.Close()

	var result UploadResult
	if err := c.post(ctx, "auto/upload", w.FormDataContentType(), &buf, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Destroy removes a stored file. Cloudinary needs the resource type of the
// file, so each type is tried until one reports the file gone.
func (c *Client) Destroy(ctx context.Context, publicID string) error {
	var lastResult string
	for _, rt := range []string{"image", "raw", "video"} {
		form := url.Values{}
		for k, v := range c.signed(map[string]string{"public_id": publicID}) {
			form.Set(k, v)
		}
		var out struct {
			Result string `json:"result"`
		}
		if err := c.post(ctx, rt+"/destroy", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()), &out); err != nil {
			return err
		}
		if out.Result == "ok" {
			return nil
		}
		lastResult = out.Result
	}
	return fmt.Errorf("cloudinary: destroy %s: %s", publicID, lastResult)
}

// Save implements resource storage.
func (c *Client) Save(ctx context.Context, filename string, data []byte) (string, string, error) {
	res, err := c.Upload(ctx, data, filename)
	if err != nil {
		return "", "", err
	}
	return res.SecureURL, res.PublicID, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.BaseURL, c.CloudName, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("cloudinary: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("cloudinary: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("cloudinary: %s failed (%d): %s", path, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("cloudinary: decode response failed: %w", err)
	}
	return nil
}

// signed adds the timestamp, folder, api key and signature to params.
func (c *Client) signed(params map[string]string) map[string]string {
	params["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)
	params["api_key"] = c.APIKey
	if c.Folder != "" && params["public_id"] == "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)
	return params
}

// sign computes the Cloudinary API signature from the given params.
// api_key, file, resource_type and signature are never signed.
func (c *Client) sign(params map[string]string) string {
	excludeKeys := map[string]bool{"api_key": true, "file": true, "resource_type": true, "signature": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !excludeKeys[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	payload := strings.Join(pairs, "&") + c.APISecret
	h := sha1.New()
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}
