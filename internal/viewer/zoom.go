package viewer

import "math"

const (
	MinScale = 0.25
	MaxScale = 4.0

	wheelZoomOut = 0.9
	wheelZoomIn  = 1.1
	// ZoomButtonStep is the additive step used by the toolbar zoom buttons.
	ZoomButtonStep = 0.1
)

// FitMode is the zoom policy.
type FitMode int

const (
	FitPage FitMode = iota
	FitNone
)

func (f FitMode) String() string {
	switch f {
	case FitPage:
		return "page"
	case FitNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseFitMode maps "page" or "none" to a FitMode.
func ParseFitMode(value string) (FitMode, bool) {
	switch value {
	case "page", "":
		return FitPage, true
	case "none":
		return FitNone, true
	default:
		return FitPage, false
	}
}

// Zoom is either Fit (scale recomputed from the viewport) or Manual (scale
// frozen by the user). Manual zoom always overrides fit.
type Zoom struct {
	mode  FitMode
	scale float64
}

// Fit returns a fit-to-page zoom currently resolved to scale.
func Fit(scale float64) Zoom {
	return Zoom{mode: FitPage, scale: ClampScale(scale)}
}

// Manual returns a user-chosen zoom.
func Manual(scale float64) Zoom {
	return Zoom{mode: FitNone, scale: ClampScale(scale)}
}

// Mode reports the fit mode of the zoom.
func (z Zoom) Mode() FitMode { return z.mode }

// Scale reports the resolved scale.
func (z Zoom) Scale() float64 {
	if z.scale == 0 {
		return 1
	}
	return z.scale
}

// IsFit reports whether the zoom tracks the viewport.
func (z Zoom) IsFit() bool { return z.mode == FitPage }

// ClampScale bounds s to [MinScale, MaxScale]. NaN maps to MinScale.
func ClampScale(s float64) float64 {
	if math.IsNaN(s) || s < MinScale {
		return MinScale
	}
	if s > MaxScale {
		return MaxScale
	}
	return s
}

// fitScale computes the largest scale at which page fits inside viewport.
// ok is false when the page geometry is unusable.
func fitScale(page, viewport Size) (float64, bool) {
	if page.Width <= 0 || page.Height <= 0 {
		return 0, false
	}
	w := math.Max(viewport.Width, 0)
	h := math.Max(viewport.Height, 0)
	return ClampScale(math.Min(w/page.Width, h/page.Height)), true
}
