package ports

import (
	"context"
)

// FigureKind names a figure the renderer knows how to draw
type FigureKind string

const (
	FigureKDE     FigureKind = "kde"
	FigureBox     FigureKind = "box"
	FigureQQ      FigureKind = "qq"
	FigureScatter FigureKind = "scatter"
	FigureHeatmap FigureKind = "heatmap"
)

// FigureSpec carries the statistical descriptors and presentation hints a
// renderer needs. The engine computes descriptors only; it never produces
// pixels.
type FigureSpec struct {
	Kind    FigureKind  `json:"kind"`
	Title   string      `json:"title"`
	XLabel  string      `json:"x_label"`
	YLabel  string      `json:"y_label"`
	Payload interface{} `json:"payload"`
}

// ImagePair is the rendered output in both raster and vector forms
type ImagePair struct {
	PNG []byte
	SVG []byte
}

// RendererPort is the external drawing collaborator
type RendererPort interface {
	Render(ctx context.Context, spec FigureSpec) (ImagePair, error)
}
