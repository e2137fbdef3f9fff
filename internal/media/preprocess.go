package media

import (
	"fmt"
	"image"
	"strings"

	"github.com/Brownie44l1/deepfake-api/internal/model"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// ChannelOrder is the channel layout the spatial model was trained on.
type ChannelOrder string

const (
	ChannelsRGB ChannelOrder = "rgb"
	ChannelsBGR ChannelOrder = "bgr"
)

// ParseChannelOrder accepts "rgb" or "bgr" in any case.
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch o := ChannelOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case ChannelsRGB, ChannelsBGR:
		return o, nil
	case "":
		return ChannelsRGB, nil
	default:
		return "", fmt.Errorf("unknown channel order %q", s)
	}
}

// Preprocessor turns decoded images into model frames of the contract size.
type Preprocessor struct {
	height int
	width  int
	order  ChannelOrder
}

func NewPreprocessor(contract model.ImageContract, order ChannelOrder) *Preprocessor {
	if order == "" {
		order = ChannelsRGB
	}
	return &Preprocessor{height: contract.Height, width: contract.Width, order: order}
}

// Size returns the frame height and width.
func (p *Preprocessor) Size() (height, width int) {
	return p.height, p.width
}

// Preprocess normalizes any color model to 8-bit RGB, resizes to the
// contract size and rescales intensities to [0,1].
func (p *Preprocessor) Preprocess(img image.Image) model.Frame {
	src := imaging.Clone(img)
	resized := resize.Resize(uint(p.width), uint(p.height), src, resize.Bilinear)

	nrgba, ok := resized.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = imaging.Clone(resized)
	}

	r, b := 0, 2
	if p.order == ChannelsBGR {
		r, b = 2, 0
	}

	frame := model.NewFrame(p.height, p.width)
	for y := 0; y < p.height; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < p.width; x++ {
			px := row[x*4 : x*4+3]
			i := (y*p.width + x) * model.Channels
			frame.Pix[i+r] = float32(px[0]) / 255.0
			frame.Pix[i+1] = float32(px[1]) / 255.0
			frame.Pix[i+b] = float32(px[2]) / 255.0
		}
	}
	return frame
}

// Zero returns an all-zero frame of the contract size.
func (p *Preprocessor) Zero() model.Frame {
	return model.NewFrame(p.height, p.width)
}
