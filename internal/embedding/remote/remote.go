// Package remote computes face encodings with an external embedding server
// exposing POST /embed/face.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
)

const defaultEmbeddingURL = "http://localhost:8000"

// Client computes face encodings using the embedding server
type Client struct {
	baseURL string
	mode    embedding.Mode
	client  *http.Client
}

// NewClient creates a new embedding client
func NewClient(baseURL string, mode embedding.Mode) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		mode:    mode,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// New is the embedding.Factory for the http backend.
func New(cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	return NewClient(cfg.URL, embedding.ModeFor(cfg.GPU)), nil
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage constructs a multipart form with the image data and posts it to the given endpoint.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.WriteField("mode", c.mode.String()); err != nil {
		return nil, fmt.Errorf("failed to write mode field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, img image.Image) (*FaceResponse, error) {
	data, err := embedding.EncodeJPEG(img)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/embed/face", data)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &faceResp, nil
}

func (c *Client) detect(ctx context.Context, img image.Image) ([]embedding.Detection, error) {
	resp, err := c.ComputeFaceEmbeddings(ctx, img)
	if err != nil {
		return nil, err
	}

	detections := make([]embedding.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			return nil, fmt.Errorf("face %d: bbox has %d values", f.FaceIndex, len(f.BBox))
		}
		if len(f.Embedding) == 0 {
			return nil, fmt.Errorf("face %d: empty embedding returned", f.FaceIndex)
		}
		detections = append(detections, embedding.Detection{
			Location: facematch.Location{
				Left:   int(math.Round(f.BBox[0])),
				Top:    int(math.Round(f.BBox[1])),
				Right:  int(math.Round(f.BBox[2])),
				Bottom: int(math.Round(f.BBox[3])),
			},
			Encoding: database.Encoding(f.Embedding),
		})
	}
	return detections, nil
}

// Locate returns the bounding boxes of every face in img.
func (c *Client) Locate(ctx context.Context, img image.Image) ([]facematch.Location, error) {
	detections, err := c.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	locations := make([]facematch.Location, len(detections))
	for i, d := range detections {
		locations[i] = d.Location
	}
	return locations, nil
}

// Encode returns one encoding per location, detecting faces when locations is nil.
func (c *Client) Encode(ctx context.Context, img image.Image, locations []facematch.Location) ([]database.Encoding, error) {
	detections, err := c.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	return embedding.Select(detections, locations)
}

// Close is a no-op; the HTTP client holds no per-embedder resources.
func (c *Client) Close() error {
	return nil
}
