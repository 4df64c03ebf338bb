package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

const cloudflareAPIBase = "https://api.cloudflare.com/client/v4"

type Cloudflare struct {
	accountID   string
	token       string
	accountHash string
	apiBase     string
	client      *http.Client
}

func NewCloudflare(accountID, token, accountHash string) *Cloudflare {
	return &Cloudflare{
		accountID:   accountID,
		token:       token,
		accountHash: accountHash,
		apiBase:     cloudflareAPIBase,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

type cloudflareResponse struct {
	Success bool `json:"success"`
	Result  struct {
		ID       string   `json:"id"`
		Variants []string `json:"variants"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Cloudflare) Upload(ctx context.Context, up Upload) (*Image, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.Filename))
	h.Set("Content-Type", up.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(up.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/accounts/%s/images/v1", c.apiBase, c.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: cloudflare status %d: %s", ErrUpstream, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out cloudflareResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode cloudflare response: %v", ErrUpstream, err)
	}
	if !out.Success || out.Result.ID == "" {
		msg := "unknown error"
		if len(out.Errors) > 0 {
			msg = out.Errors[0].Message
		}
		return nil, fmt.Errorf("%w: cloudflare: %s", ErrUpstream, msg)
	}

	img := &Image{ID: out.Result.ID}
	if len(out.Result.Variants) > 0 {
		img.URL = out.Result.Variants[0]
	} else {
		img.URL = VariantURL(c.accountHash, out.Result.ID, "public")
	}
	return img, nil
}
