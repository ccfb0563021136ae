package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"go.uber.org/zap"

	"plantcare/internal/domain"
	"plantcare/internal/upstream"
	"plantcare/pkg/imaging"
)

const (
	serviceName  = "classifier"
	maxReplySize = 1 << 20
)

type Client struct {
	url        string
	token      string
	httpClient *http.Client
	policy     upstream.Policy
	log        *zap.Logger
}

func NewClient(url, token string, policy upstream.Policy, httpClient *http.Client, log *zap.Logger) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("classifier url is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		url:        url,
		token:      token,
		httpClient: httpClient,
		policy:     policy,
		log:        log,
	}, nil
}

// Classify posts img as multipart field "image" and decodes the reply.
func (c *Client) Classify(ctx context.Context, img *domain.StagedImage) (*domain.RawClassification, error) {
	body, contentType, err := multipartBody(img)
	if err != nil {
		return nil, err
	}

	var raw *domain.RawClassification
	err = upstream.Do(ctx, c.policy, c.log, serviceName, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return upstream.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("post image: %w", err)
		}
		defer resp.Body.Close()

		reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplySize))
		if err != nil {
			return fmt.Errorf("read reply: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &upstream.StatusError{
				Service:    serviceName,
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(reply)),
			}
		}

		raw, err = Decode(reply)
		if err != nil {
			return upstream.Permanent(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("Image classified",
		zap.String("key", img.Filename),
		zap.Stringp("prediction", raw.Prediction),
		zap.Float64p("confidence", raw.Confidence))

	return raw, nil
}

func multipartBody(img *domain.StagedImage) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.Filename))
	h.Set("Content-Type", imaging.ContentType(img.Bytes, img.Ext))

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(img.Bytes); err != nil {
		return nil, "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

type labelScore struct {
	Label string   `json:"label"`
	Score *float64 `json:"score"`
}

// Decode accepts either {prediction, confidence, heatmapUrl} or a
// Hugging Face style [{label, score}, ...] list, of which the best score wins.
func Decode(reply []byte) (*domain.RawClassification, error) {
	trimmed := bytes.TrimSpace(reply)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("decode classification: empty reply")
	}

	if trimmed[0] == '[' {
		var list []labelScore
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode classification list: %w", err)
		}
		raw := &domain.RawClassification{}
		var best *labelScore
		for i := range list {
			if best == nil || score(list[i]) > score(*best) {
				best = &list[i]
			}
		}
		if best != nil {
			if best.Label != "" {
				raw.Prediction = &best.Label
			}
			raw.Confidence = best.Score
		}
		return raw, nil
	}

	var raw domain.RawClassification
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode classification: %w", err)
	}
	return &raw, nil
}

func score(ls labelScore) float64 {
	if ls.Score == nil {
		return -1
	}
	return *ls.Score
}
