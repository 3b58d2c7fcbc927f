package intake

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/gen2brain/heic"
	"github.com/sunshineplan/imgconv"

	"github.com/zombor/billscan/internal/logger"
)

// Normalize validates a document against cfg and downsizes raster images.
// Only validation failures are returned as errors; an image that cannot be
// decoded or re-encoded is passed through untouched.
func Normalize(doc RawDocument, cfg ProcessingConfig) (Image, error) {
	size := doc.Size
	if n := int64(len(doc.Data)); n > size {
		size = n
	}
	if cfg.MaxBytes > 0 && size > cfg.MaxBytes {
		return Image{}, NewValidationError("size", size,
			fmt.Sprintf("document exceeds the maximum of %d bytes", cfg.MaxBytes))
	}

	contentType := NormalizeContentType(doc.ContentType)
	if !cfg.Accepts(contentType) {
		return Image{}, NewValidationError("content_type", doc.ContentType, "media type is not accepted")
	}

	original := Image{Data: doc.Data, ContentType: contentType}
	if !strings.HasPrefix(contentType, "image/") {
		return original, nil
	}

	log := logger.WithComponent("intake")

	img, err := decode(doc.Data, contentType)
	if err != nil {
		log.Warn().Err(err).Str("content_type", contentType).Msg("Could not decode image, using original")
		return original, nil
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if scale := scaleFactor(width, height, cfg.MaxWidth, cfg.MaxHeight); scale < 1 {
		newWidth := max(1, int(math.Round(float64(width)*scale)))
		newHeight := max(1, int(math.Round(float64(height)*scale)))
		img = imgconv.Resize(img, &imgconv.ResizeOption{Width: newWidth, Height: newHeight})
		log.Debug().
			Int("width", width).
			Int("height", height).
			Int("new_width", newWidth).
			Int("new_height", newHeight).
			Msg("Downscaled image")
	}

	var buf bytes.Buffer
	err = imgconv.Write(&buf, img, &imgconv.FormatOption{
		Format:       imgconv.JPEG,
		EncodeOption: []imgconv.EncodeOption{imgconv.Quality(cfg.jpegQuality())},
	})
	if err != nil {
		log.Warn().Err(err).Msg("Could not re-encode image, using original")
		return original, nil
	}

	return Image{Data: buf.Bytes(), ContentType: "image/jpeg"}, nil
}

// scaleFactor returns min(1, maxW/w, maxH/h); a non-positive limit is ignored
func scaleFactor(width, height, maxWidth, maxHeight int) float64 {
	scale := 1.0
	if width <= 0 || height <= 0 {
		return scale
	}
	if maxWidth > 0 {
		scale = math.Min(scale, float64(maxWidth)/float64(width))
	}
	if maxHeight > 0 {
		scale = math.Min(scale, float64(maxHeight)/float64(height))
	}
	return scale
}

func decode(data []byte, contentType string) (image.Image, error) {
	if IsHEIC(data, contentType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}
	img, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}
