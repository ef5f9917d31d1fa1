package ark

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"

	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
	"github.com/selfie2snap/selfie2snap/internal/options"
	"github.com/selfie2snap/selfie2snap/internal/testutil"
	"github.com/selfie2snap/selfie2snap/internal/upload"
)

type fakeClient struct {
	got  model.GenerateImagesRequest
	resp model.ImagesResponse
	err  error
}

func (f *fakeClient) GenerateImages(_ context.Context, req model.GenerateImagesRequest) (model.ImagesResponse, error) {
	f.got = req
	return f.resp, f.err
}

func frameRequest() job.FrameRequest {
	return job.FrameRequest{
		JobID:   "job-1",
		Index:   2,
		Attempt: 1,
		Seed:    1234,
		Prompt:  "two friends on a beach",
		Inputs: upload.Inputs{
			{Data: testutil.PNG("left"), MediaType: "image/png"},
			{Data: testutil.JPEG("right"), MediaType: "image/jpeg"},
		},
		Options: options.Options{FrameCount: 4, AspectRatio: options.AspectWide, Scene: options.SceneBeach},
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New("", "", false); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("New without key error = %v, want ErrMissingAPIKey", err)
	}
}

func TestGenerate_BuildsRequest(t *testing.T) {
	out := testutil.PNG("out")
	fc := &fakeClient{resp: model.ImagesResponse{Data: []*model.Image{
		{B64Json: volcengine.String(base64.StdEncoding.EncodeToString(out))},
	}}}
	g := newWithClient(fc, "", true)

	img, err := g.Generate(context.Background(), frameRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if img.MediaType != "image/png" || string(img.Data) != string(out) {
		t.Errorf("unexpected output %q (%d bytes)", img.MediaType, len(img.Data))
	}

	if fc.got.Model != DefaultModel {
		t.Errorf("Model = %q", fc.got.Model)
	}
	if fc.got.Prompt != "two friends on a beach" {
		t.Errorf("Prompt = %q", fc.got.Prompt)
	}
	if *fc.got.Size != "2048x1152" {
		t.Errorf("Size = %q", *fc.got.Size)
	}
	if *fc.got.Seed != 1234 || !*fc.got.Watermark {
		t.Errorf("Seed = %d, Watermark = %v", *fc.got.Seed, *fc.got.Watermark)
	}
	images, ok := fc.got.Image.([]string)
	if !ok || len(images) != 2 {
		t.Fatalf("Image = %#v, want two data URIs", fc.got.Image)
	}
	if !strings.HasPrefix(images[0], "data:image/png;base64,") || !strings.HasPrefix(images[1], "data:image/jpeg;base64,") {
		t.Errorf("reference images not ordered left, right: %.30s / %.30s", images[0], images[1])
	}
}

func TestGenerate_URLResponse(t *testing.T) {
	fc := &fakeClient{resp: model.ImagesResponse{Data: []*model.Image{
		{Url: volcengine.String("https://cdn.example/out.jpg")},
	}}}
	g := newWithClient(fc, "custom-model", false)
	var fetched string
	g.fetch = func(_ context.Context, url string) ([]byte, string, error) {
		fetched = url
		return testutil.JPEG("remote"), "image/jpeg", nil
	}

	img, err := g.Generate(context.Background(), frameRequest())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if fetched != "https://cdn.example/out.jpg" || img.MediaType != "image/jpeg" {
		t.Errorf("fetched %q, media type %q", fetched, img.MediaType)
	}
	if fc.got.Model != "custom-model" {
		t.Errorf("Model = %q", fc.got.Model)
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		client  *fakeClient
		wantErr error
		empty   bool
	}{
		{
			name:   "transport error",
			client: &fakeClient{err: errors.New("connection reset")},
		},
		{
			name:    "error in body",
			client:  &fakeClient{resp: model.ImagesResponse{Error: &model.GenerateImagesError{Code: "InputImageSensitiveContentDetected", Message: "blocked"}}},
			wantErr: ErrProvider,
		},
		{
			name:    "not an image",
			client:  &fakeClient{resp: model.ImagesResponse{Data: []*model.Image{{B64Json: volcengine.String(base64.StdEncoding.EncodeToString(testutil.Text()))}}}},
			wantErr: media.ErrInvalidMediaType,
		},
		{
			name:   "no data",
			client: &fakeClient{resp: model.ImagesResponse{}},
			empty:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := newWithClient(tt.client, "", false).Generate(context.Background(), frameRequest())
			if tt.empty {
				if err != nil || !img.Empty() {
					t.Errorf("got %v, %d bytes; want empty image", err, len(img.Data))
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
