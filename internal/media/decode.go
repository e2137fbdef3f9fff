package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Kind is the declared media type of an upload.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var ErrUndecodableImage = errors.New("undecodable image")

// ParseKind accepts "image" or "video".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindImage, KindVideo:
		return k, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", s)
	}
}

// KindFromMIME maps image/* to KindImage and everything else to KindVideo.
func KindFromMIME(mime string) Kind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/") {
		return KindImage
	}
	return KindVideo
}

// DecodeImage decodes a still image, applying any EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	return img, nil
}
