package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type Processor struct {
	log *zap.Logger
}

func NewProcessor(log *zap.Logger) *Processor {
	return &Processor{log: log}
}

// CompressJPEG re-encodes any decodable image as JPEG at quality. The
// original bytes are returned when re-encoding would not shrink them.
func (p *Processor) CompressJPEG(data []byte, quality int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	if format == "jpeg" && buf.Len() >= len(data) {
		p.log.Debug("Compression skipped",
			zap.Int("original", len(data)),
			zap.Int("compressed", buf.Len()))
		return data, nil
	}

	p.log.Info("Image compressed",
		zap.String("format", format),
		zap.Int("quality", quality),
		zap.Int("original", len(data)),
		zap.Int("size", buf.Len()))

	return buf.Bytes(), nil
}

// ContentType sniffs data and falls back to the extension.
func ContentType(data []byte, ext string) string {
	ct := http.DetectContentType(data)
	if ct != "application/octet-stream" {
		return ct
	}
	if byExt := mime.TypeByExtension(strings.ToLower(ext)); byExt != "" {
		return byExt
	}
	return ct
}
