package gateway

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"sync"
)

// Start frames are composed on a fixed 16:9 canvas so every generated
// keyframe shares the same aspect ratio.
const (
	CanvasWidth  = 1280
	CanvasHeight = 720
)

// ImageBlob is raw image data plus its MIME type. It is the currency for
// images between the catalog, the storyboard pipeline and the gateway.
type ImageBlob struct {
	Data     []byte
	MIMEType string
}

// IsZero reports whether the blob holds no image data.
func (b ImageBlob) IsZero() bool {
	return len(b.Data) == 0
}

// DataURL encodes the blob as a base64 data URL for the HTTP API.
func (b ImageBlob) DataURL() string {
	if b.IsZero() {
		return ""
	}
	return "data:" + b.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// ParseDataURL decodes a base64 data URL into an ImageBlob.
func ParseDataURL(s string) (ImageBlob, error) {
	if !strings.HasPrefix(s, "data:") {
		return ImageBlob{}, fmt.Errorf("not a data URL")
	}
	rest := s[len("data:"):]
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return ImageBlob{}, fmt.Errorf("data URL is not base64 encoded")
	}
	mime := rest[:sep]
	if mime == "" {
		return ImageBlob{}, fmt.Errorf("data URL has no MIME type")
	}
	data, err := base64.StdEncoding.DecodeString(rest[sep+len(";base64,"):])
	if err != nil {
		return ImageBlob{}, fmt.Errorf("failed to decode data URL payload: %w", err)
	}
	if len(data) == 0 {
		return ImageBlob{}, fmt.Errorf("data URL payload is empty")
	}
	return ImageBlob{Data: data, MIMEType: mime}, nil
}

var (
	blankOnce   sync.Once
	blankCanvas ImageBlob
)

// BlankCanvasPNG returns a white 1280x720 PNG. It is prepended to the
// reference images of a start-frame request so the image model composes
// onto a clean 16:9 stage instead of extending a reference photo.
func BlankCanvasPNG() ImageBlob {
	blankOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, CanvasWidth, CanvasHeight))
		draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			// Encoding an in-memory RGBA to PNG cannot fail.
			panic(fmt.Sprintf("encode blank canvas: %v", err))
		}
		blankCanvas = ImageBlob{Data: buf.Bytes(), MIMEType: "image/png"}
	})
	return blankCanvas
}
