// Package primitives builds the image-agnostic features of a relationship:
// bounding box geometry, the spatial relation between subject and object
// boxes, and one-hot object categories.
package primitives

import (
	"fmt"

	"github.com/vk/vgprep/internal/synonyms"
	"github.com/vk/vgprep/internal/vg"
)

// BBox is an axis-aligned bounding box in pixel coordinates.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

// NewBBox builds a box from its top, bottom, left and right edges.
func NewBBox(top, bottom, left, right float64) BBox {
	return BBox{X0: left, Y0: top, X1: right, Y1: bottom}
}

// FromObject builds the box of a VisualGenome object.
func FromObject(o *vg.Object) BBox {
	x, y, w, h := float64(o.X), float64(o.Y), float64(o.W), float64(o.H)
	return NewBBox(y, y+h, x, x+w)
}

func (b BBox) Width() float64     { return b.X1 - b.X0 }
func (b BBox) Height() float64    { return b.Y1 - b.Y0 }
func (b BBox) Area() float64      { return b.Width() * b.Height() }
func (b BBox) Perimeter() float64 { return 2*b.Width() + 2*b.Height() }

// Features returns [x0, x1, y0, y1, width, height, area, perimeter].
func (b BBox) Features() []float64 {
	return []float64{b.X0, b.X1, b.Y0, b.Y1, b.Width(), b.Height(), b.Area(), b.Perimeter()}
}

// Coords returns the box as [y0, y1, x0, x1].
func (b BBox) Coords() []float64 {
	return []float64{b.Y0, b.Y1, b.X0, b.X1}
}

// Spatial describes the placement of an object box relative to a subject box.
type Spatial struct {
	Subject BBox
	Object  BBox
}

// Features returns the subject-normalised deltas of each edge followed by
// the width, height and area ratios of object to subject. The subject box
// must have a non-zero width and height.
func (s Spatial) Features() []float64 {
	sw, sh := s.Subject.Width(), s.Subject.Height()
	return []float64{
		(s.Subject.X0 - s.Object.X0) / sw,
		(s.Subject.X1 - s.Object.X1) / sw,
		(s.Subject.Y0 - s.Object.Y0) / sh,
		(s.Subject.Y1 - s.Object.Y1) / sh,
		s.Object.Width() / sw,
		s.Object.Height() / sh,
		s.Object.Area() / s.Subject.Area(),
	}
}

// Categorical is the pair of category indices of a relationship.
type Categorical struct {
	Subject       int
	Object        int
	NumCategories int
}

// Features returns the one-hot subject vector followed by the one-hot
// object vector.
func (c Categorical) Features() []float64 {
	out := make([]float64, 2*c.NumCategories)
	out[c.Subject] = 1
	out[c.NumCategories+c.Object] = 1
	return out
}

// Example holds the features of one relationship.
type Example struct {
	ImageID        int       `json:"image_id"`
	RelationshipID int       `json:"relationship_id"`
	Predicate      string    `json:"predicate"`
	Spatial        []float64 `json:"spatial"`
	Categorical    []float64 `json:"categorical"`
}

// Extract computes an Example for every relationship. Object names that
// are not entities are resolved to one through objectSynonyms; a name that
// resolves to nothing is an error.
func Extract(images []vg.ImageRelationships, entities []string, objectSynonyms map[string][]string) ([]Example, error) {
	index := make(map[string]int, len(entities))
	for i, e := range entities {
		if _, dup := index[e]; !dup {
			index[e] = i
		}
	}
	resolve := func(name string) (int, error) {
		if i, ok := index[name]; ok {
			return i, nil
		}
		canonical, err := synonyms.Canonical(name, objectSynonyms)
		if err != nil {
			return 0, err
		}
		i, ok := index[canonical]
		if !ok {
			return 0, fmt.Errorf("%q resolved to %q, which is not an entity", name, canonical)
		}
		return i, nil
	}

	examples := make([]Example, 0, vg.NumRelationships(images))
	for _, img := range images {
		for _, r := range img.Relationships {
			sub, obj := FromObject(&r.Subject), FromObject(&r.Object)

			subIdx, err := resolve(r.Subject.DisplayName())
			if err != nil {
				return nil, fmt.Errorf("relationship %d subject: %w", r.RelationshipID, err)
			}
			objIdx, err := resolve(r.Object.DisplayName())
			if err != nil {
				return nil, fmt.Errorf("relationship %d object: %w", r.RelationshipID, err)
			}

			examples = append(examples, Example{
				ImageID:        img.ImageID,
				RelationshipID: r.RelationshipID,
				Predicate:      r.Predicate,
				Spatial:        Spatial{Subject: sub, Object: obj}.Features(),
				Categorical:    Categorical{Subject: subIdx, Object: objIdx, NumCategories: len(entities)}.Features(),
			})
		}
	}
	return examples, nil
}
