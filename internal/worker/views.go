package worker

import (
	"strings"

	"atrocitee/internal/models"
)

// viewAliases maps the view names callers send onto the canonical views.
var viewAliases = map[string]models.MockupView{
	"front":       models.ViewFront,
	"back":        models.ViewBack,
	"left":        models.ViewLeft,
	"left_front":  models.ViewLeft,
	"right":       models.ViewRight,
	"right_front": models.ViewRight,
	"flat":        models.ViewFlat,
	"lifestyle":   models.ViewLifestyle,
	"top":         models.ViewTop,
}

// placements translates a view into the provider's placement vocabulary.
var placements = map[models.MockupView]string{
	models.ViewFront:     "front",
	models.ViewBack:      "back",
	models.ViewLeft:      "sleeve_left",
	models.ViewRight:     "sleeve_right",
	models.ViewFlat:      "front",
	models.ViewLifestyle: "front",
	models.ViewTop:       "default",
}

// mockupStyles selects a rendering style for views that share a placement.
var mockupStyles = map[models.MockupView]string{
	models.ViewFlat:      "Flat",
	models.ViewLifestyle: "Lifestyle",
}

// NormalizeView resolves a caller supplied view name. Unknown names fall back to front.
func NormalizeView(name string) models.MockupView {
	if v, ok := viewAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return v
	}
	return models.ViewFront
}

// Placement returns the provider placement for a view, defaulting to front.
func Placement(view models.MockupView) string {
	if p, ok := placements[view]; ok {
		return p
	}
	return "front"
}
