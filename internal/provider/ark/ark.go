// Package ark generates frames with Volcengine Ark's Seedream image model.
// Both selfies are sent as reference images and the result is requested as
// base64 so no second download is needed.
package ark

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "doubao-seedream-4-0-250828"

const (
	responseFormatBase64 = "b64_json"
	maxDownloadBytes     = 32 << 20
)

var (
	// ErrMissingAPIKey is returned by New without a key.
	ErrMissingAPIKey = errors.New("ark: API key is required")
	// ErrProvider wraps errors reported in the response body.
	ErrProvider = errors.New("ark: provider error")
)

// imagesClient is the part of *arkruntime.Client used here.
type imagesClient interface {
	GenerateImages(ctx context.Context, req model.GenerateImagesRequest) (model.ImagesResponse, error)
}

// Generator calls GenerateImages once per frame.
type Generator struct {
	client    imagesClient
	model     string
	watermark bool
	fetch     func(ctx context.Context, url string) ([]byte, string, error)
}

// New creates a Generator with an API key.
func New(apiKey, modelName string, watermark bool) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return newWithClient(arkruntime.NewClientWithApiKey(apiKey), modelName, watermark), nil
}

func newWithClient(client imagesClient, modelName string, watermark bool) *Generator {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Generator{client: client, model: modelName, watermark: watermark, fetch: fetchURL}
}

// Generate composes the two portraits into one frame.
func (g *Generator) Generate(ctx context.Context, req job.FrameRequest) (media.Image, error) {
	w, h := req.Options.AspectRatio.Dimensions()
	var sequential model.SequentialImageGeneration = "disabled"

	genReq := model.GenerateImagesRequest{
		Model:                     g.model,
		Prompt:                    req.Prompt,
		Image:                     []string{req.Inputs.Left().DataURI(), req.Inputs.Right().DataURI()},
		Size:                      volcengine.String(fmt.Sprintf("%dx%d", w*2, h*2)),
		Seed:                      volcengine.Int64(req.Seed),
		ResponseFormat:            volcengine.String(responseFormatBase64),
		Watermark:                 volcengine.Bool(g.watermark),
		SequentialImageGeneration: &sequential,
	}

	resp, err := g.client.GenerateImages(ctx, genReq)
	if err != nil {
		return media.Image{}, fmt.Errorf("ark: generate images: %w", err)
	}
	if resp.Error != nil {
		return media.Image{}, fmt.Errorf("%w: %s - %s", ErrProvider, resp.Error.Code, resp.Error.Message)
	}

	for _, item := range resp.Data {
		if item == nil {
			continue
		}
		if item.B64Json != nil && *item.B64Json != "" {
			data, err := base64.StdEncoding.DecodeString(*item.B64Json)
			if err != nil {
				return media.Image{}, fmt.Errorf("ark: decode image: %w", err)
			}
			return media.NewImage("", "", data)
		}
		if item.Url != nil && *item.Url != "" {
			data, declared, err := g.fetch(ctx, *item.Url)
			if err != nil {
				return media.Image{}, err
			}
			return media.NewImage("", declared, data)
		}
	}
	return media.Image{}, nil
}

func fetchURL(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("ark: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("ark: download image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("ark: download image: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
