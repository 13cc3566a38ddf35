package topology

import (
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/houseofcat/pistol/models"
)

// Registry holds named transforms, pre-transforms and matchers so tunnels can be declared in config files.
type Registry[T any] struct {
	transforms    cmap.ConcurrentMap[string, models.TransformFunc[T]]
	preTransforms cmap.ConcurrentMap[string, models.PreTransformFunc[T]]
	matchers      cmap.ConcurrentMap[string, models.MatchFunc[T]]
}

// NewRegistry creates an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		transforms:    cmap.New[models.TransformFunc[T]](),
		preTransforms: cmap.New[models.PreTransformFunc[T]](),
		matchers:      cmap.New[models.MatchFunc[T]](),
	}
}

// RegisterTransform stores a transform under a name, replacing any previous one.
func (reg *Registry[T]) RegisterTransform(name string, transform models.TransformFunc[T]) {
	reg.transforms.Set(name, transform)
}

// RegisterPreTransform stores a pre-transform under a name, replacing any previous one.
func (reg *Registry[T]) RegisterPreTransform(name string, preTransform models.PreTransformFunc[T]) {
	reg.preTransforms.Set(name, preTransform)
}

// RegisterMatcher stores a matcher under a name, replacing any previous one.
func (reg *Registry[T]) RegisterMatcher(name string, match models.MatchFunc[T]) {
	reg.matchers.Set(name, match)
}

// Transform looks up a transform by name.
func (reg *Registry[T]) Transform(name string) (models.TransformFunc[T], error) {
	if transform, ok := reg.transforms.Get(name); ok && transform != nil {
		return transform, nil
	}

	return nil, fmt.Errorf("transform %q: %w", name, models.ErrFunctionNotRegistered)
}

// PreTransform looks up a pre-transform by name. An empty name resolves to no pre-transform.
func (reg *Registry[T]) PreTransform(name string) (models.PreTransformFunc[T], error) {
	if name == "" {
		return nil, nil
	}

	if preTransform, ok := reg.preTransforms.Get(name); ok && preTransform != nil {
		return preTransform, nil
	}

	return nil, fmt.Errorf("pre-transform %q: %w", name, models.ErrFunctionNotRegistered)
}

// Matcher looks up a matcher by name.
func (reg *Registry[T]) Matcher(name string) (models.MatchFunc[T], error) {
	if match, ok := reg.matchers.Get(name); ok && match != nil {
		return match, nil
	}

	return nil, fmt.Errorf("matcher %q: %w", name, models.ErrFunctionNotRegistered)
}
