package scanning

import (
	"context"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// maxVisionPDFPages bounds the synchronous file annotation request
const maxVisionPDFPages = 5

// Vision recognizes text with Google Cloud Vision document text detection
type Vision struct {
	client *vision.ImageAnnotatorClient
}

// NewVision creates a Vision engine. Credentials come from GOOGLE_CREDENTIALS
// (inline JSON), then GOOGLE_APPLICATION_CREDENTIALS, then application
// default credentials.
func NewVision(ctx context.Context) (*Vision, error) {
	const op = "NewVision"

	var opts []option.ClientOption
	details := "application default credentials"
	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
		details = "GOOGLE_CREDENTIALS"
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
		details = "GOOGLE_APPLICATION_CREDENTIALS"
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, NewRecognitionError(op, fmt.Errorf("%w: %w", ErrEngineInit, err), details)
	}

	return &Vision{client: client}, nil
}

// VisionFactory returns an EngineFactory that starts a Vision engine
func VisionFactory() EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		return NewVision(ctx)
	}
}

// Recognize runs document text detection on an image or PDF
func (v *Vision) Recognize(ctx context.Context, data []byte, contentType string) (string, error) {
	if contentType == "application/pdf" {
		return v.recognizePDF(ctx, data)
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", fmt.Errorf("no response from vision API")
	}

	imgResp := resp.Responses[0]
	if imgResp.Error != nil {
		return "", fmt.Errorf("vision API error: %s", imgResp.Error.Message)
	}
	if imgResp.FullTextAnnotation == nil {
		return "", ErrEmptyText
	}

	return imgResp.FullTextAnnotation.Text, nil
}

func (v *Vision) recognizePDF(ctx context.Context, data []byte) (string, error) {
	pages := make([]int32, 0, maxVisionPDFPages)
	for i := int32(1); i <= maxVisionPDFPages; i++ {
		pages = append(pages, i)
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  data,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				Pages: pages,
			},
		},
	}

	resp, err := v.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return "", fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", fmt.Errorf("no response from vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return "", fmt.Errorf("vision API error: %s", fileResp.Error.Message)
	}

	var text strings.Builder
	for i, page := range fileResp.Responses {
		if page.Error != nil {
			return "", fmt.Errorf("error processing page %d: %s", i+1, page.Error.Message)
		}
		if page.FullTextAnnotation == nil {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n")
		}
		text.WriteString(page.FullTextAnnotation.Text)
	}

	return text.String(), nil
}

// Close closes the underlying Vision client
func (v *Vision) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
