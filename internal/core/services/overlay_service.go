package services

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"faceview/internal/core/domain"
	apperrors "faceview/pkg/errors"
)

const labelBarHeight = 16

// OverlayRenderer maps detection boxes from source video pixel space into
// display space and rasterizes them. It holds no per-camera state and is safe
// to call on every received batch.
type OverlayRenderer struct {
	knownColor   color.RGBA
	unknownColor color.RGBA
	thickness    int
}

func NewOverlayRenderer() *OverlayRenderer {
	return &OverlayRenderer{
		knownColor:   color.RGBA{R: 34, G: 197, B: 94, A: 255}, // green
		unknownColor: color.RGBA{R: 239, G: 68, B: 68, A: 255}, // red
		thickness:    3,
	}
}

// Compute scales each detection box by displayWidth/sourceWidth and
// displayHeight/sourceHeight and picks the label and styling from the
// detection name. It performs no drawing.
func (r *OverlayRenderer) Compute(batch *domain.DetectionBatch, srcWidth, srcHeight, dstWidth, dstHeight int) (*domain.OverlayFrame, error) {
	if srcWidth <= 0 || srcHeight <= 0 {
		return nil, apperrors.NewInvalidInputError("source video dimensions must be positive")
	}
	if dstWidth <= 0 || dstHeight <= 0 {
		return nil, apperrors.NewInvalidInputError("display dimensions must be positive")
	}

	scaleX := float64(dstWidth) / float64(srcWidth)
	scaleY := float64(dstHeight) / float64(srcHeight)

	frame := &domain.OverlayFrame{
		CameraID: batch.CameraID,
		Width:    dstWidth,
		Height:   dstHeight,
		Boxes:    make([]domain.OverlayBox, 0, len(batch.Faces)),
	}
	for _, face := range batch.Faces {
		box := domain.OverlayBox{
			X:      face.Box.X * scaleX,
			Y:      face.Box.Y * scaleY,
			Width:  face.Box.Width * scaleX,
			Height: face.Box.Height * scaleY,
			Label:  "Unknown",
			Style:  domain.StyleUnknown,
		}
		if face.Known() {
			box.Label = *face.Name
			box.Style = domain.StyleKnown
		}
		frame.Boxes = append(frame.Boxes, box)
	}
	return frame, nil
}

// Draw clears the surface and rasterizes the frame's boxes onto it. The
// previous overlay never accumulates; an empty frame leaves a fully
// transparent surface.
func (r *OverlayRenderer) Draw(frame *domain.OverlayFrame, img *image.RGBA) {
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)

	for _, box := range frame.Boxes {
		col := r.unknownColor
		if box.Style == domain.StyleKnown {
			col = r.knownColor
		}

		x0 := int(math.Round(box.X))
		y0 := int(math.Round(box.Y))
		x1 := int(math.Round(box.X + box.Width))
		y1 := int(math.Round(box.Y + box.Height))

		// Outline.
		r.fillRect(img, image.Rect(x0, y0, x1, y0+r.thickness), col)
		r.fillRect(img, image.Rect(x0, y1-r.thickness, x1, y1), col)
		r.fillRect(img, image.Rect(x0, y0, x0+r.thickness, y1), col)
		r.fillRect(img, image.Rect(x1-r.thickness, y0, x1, y1), col)

		// Label bar above the box, clamped into the surface when the box
		// touches the top edge.
		barTop := y0 - labelBarHeight
		barBottom := y0
		if barTop < 0 {
			barTop = y0
			barBottom = y0 + labelBarHeight
		}
		barWidth := 8*len(box.Label) + 8
		r.fillRect(img, image.Rect(x0, barTop, x0+barWidth, barBottom), col)
	}
}

func (r *OverlayRenderer) fillRect(img *image.RGBA, rect image.Rectangle, col color.RGBA) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	draw.Draw(img, rect, &image.Uniform{C: col}, image.Point{}, draw.Src)
}
