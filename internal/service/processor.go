package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for image.Decode
	_ "image/png"
	"io"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ImageProcessor normalizes uploaded product photos before they are stored.
type ImageProcessor interface {
	// Process decodes data, shrinks it to fit within maxWidth x maxHeight and
	// re-encodes it. PNG stays PNG so transparency survives; everything else
	// becomes JPEG.
	Process(data io.Reader, maxWidth, maxHeight int) (*ProcessedImage, error)
}

// ProcessedImage is the re-encoded upload.
type ProcessedImage struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// =============================================================================
// Implementation
// =============================================================================

type imagingProcessor struct{}

// NewImagingProcessor returns an ImageProcessor backed by disintegration/imaging.
func NewImagingProcessor() ImageProcessor {
	return &imagingProcessor{}
}

func (p *imagingProcessor) Process(data io.Reader, maxWidth, maxHeight int) (*ProcessedImage, error) {
	img, format, err := image.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	// Fit never enlarges, so small images keep their size.
	b := img.Bounds()
	if b.Dx() > maxWidth || b.Dy() > maxHeight {
		img = imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	out := &ProcessedImage{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}
	if format == "png" {
		err = imaging.Encode(&buf, img, imaging.PNG)
		out.ContentType = "image/png"
	} else {
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(domain.UploadJPEGQuality))
		out.ContentType = "image/jpeg"
	}
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}
