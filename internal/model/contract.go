package model

// Fallback frame size used when a spatial model does not declare a usable
// (batch, height, width, channels) signature.
const (
	DefaultFrameHeight = 64
	DefaultFrameWidth  = 64
)

// Sequence model input ranks.
const (
	RankRawFrames = 5 // batch, time, height, width, channels
	RankFeatures  = 3 // batch, time, feature
)

// ImageContract is the detected input contract of the spatial model.
type ImageContract struct {
	Rank     int
	Height   int
	Width    int
	Fallback bool
}

// SequenceContract is the detected input contract of the sequence model.
// Only the rank matters for choosing how sequences are built.
type SequenceContract struct {
	Rank int
}

// DetectImageContract derives the frame size from a declared input
// signature. Anything other than four dimensions with a positive height and
// width yields the default size with Fallback set.
func DetectImageContract(shape []int64, defaultHeight, defaultWidth int) ImageContract {
	if defaultHeight <= 0 {
		defaultHeight = DefaultFrameHeight
	}
	if defaultWidth <= 0 {
		defaultWidth = DefaultFrameWidth
	}

	if len(shape) == 4 && shape[1] > 0 && shape[2] > 0 {
		return ImageContract{
			Rank:   4,
			Height: int(shape[1]),
			Width:  int(shape[2]),
		}
	}

	return ImageContract{
		Rank:     len(shape),
		Height:   defaultHeight,
		Width:    defaultWidth,
		Fallback: true,
	}
}

// DetectSequenceContract records the rank of a sequence model's input.
func DetectSequenceContract(shape []int64) SequenceContract {
	return SequenceContract{Rank: len(shape)}
}

// ExpectsRawFrames reports whether the sequence model consumes frames directly.
func (c SequenceContract) ExpectsRawFrames() bool {
	return c.Rank == RankRawFrames
}
