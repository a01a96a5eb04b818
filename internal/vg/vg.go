// Package vg models the VisualGenome relationship annotations
// (relationships.json) and the label-preparation operations run on them:
// filtering, counting, per-predicate sampling and label matrices.
package vg

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Unlabeled marks a relationship whose predicate was hidden by sampling.
const Unlabeled = "UNLABELED"

// TotalKey is the key of the overall sum in the result of Count.
const TotalKey = "_TOTAL"

// Object is a subject or object of a relationship. VisualGenome is
// inconsistent about naming, so either Name or Names is set.
type Object struct {
	ObjectID int      `json:"object_id"`
	X        int      `json:"x"`
	Y        int      `json:"y"`
	W        int      `json:"w"`
	H        int      `json:"h"`
	Name     string   `json:"name,omitempty"`
	Names    []string `json:"names,omitempty"`
	Synsets  []string `json:"synsets,omitempty"`
}

// DisplayName returns Name, or the first of Names, or "".
func (o *Object) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	if len(o.Names) > 0 {
		return o.Names[0]
	}
	return ""
}

// ValidBox reports whether the object has a non-degenerate bounding box.
func (o *Object) ValidBox() bool {
	return o.W != 0 && o.H != 0
}

// Relationship is a labeled edge between two objects of an image.
type Relationship struct {
	RelationshipID int      `json:"relationship_id"`
	Predicate      string   `json:"predicate"`
	Synsets        []string `json:"synsets,omitempty"`
	Subject        Object   `json:"subject"`
	Object         Object   `json:"object"`
}

// ImageRelationships holds every relationship annotated on one image.
type ImageRelationships struct {
	ImageID       int            `json:"image_id"`
	Relationships []Relationship `json:"relationships"`
}

// LoadRelationships decodes a relationships.json array, one image at a time.
func LoadRelationships(r io.Reader) ([]ImageRelationships, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read relationships: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("relationships must be a JSON array, got %v", tok)
	}

	var images []ImageRelationships
	for dec.More() {
		var img ImageRelationships
		if err := dec.Decode(&img); err != nil {
			return nil, fmt.Errorf("failed to decode image %d: %w", len(images), err)
		}
		images = append(images, img)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to read relationships: %w", err)
	}
	return images, nil
}

// LoadRelationshipsFile opens path and decodes it with LoadRelationships.
func LoadRelationshipsFile(path string) ([]ImageRelationships, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	images, err := LoadRelationships(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return images, nil
}

// WriteRelationships encodes images in the relationships.json format.
func WriteRelationships(w io.Writer, images []ImageRelationships) error {
	enc := json.NewEncoder(w)
	if images == nil {
		images = []ImageRelationships{}
	}
	return enc.Encode(images)
}

// NumRelationships returns the number of relationships across all images.
func NumRelationships(images []ImageRelationships) int {
	n := 0
	for i := range images {
		n += len(images[i].Relationships)
	}
	return n
}

func (o Object) clone() Object {
	o.Names = append([]string(nil), o.Names...)
	o.Synsets = append([]string(nil), o.Synsets...)
	return o
}

func (r Relationship) clone() Relationship {
	r.Synsets = append([]string(nil), r.Synsets...)
	r.Subject = r.Subject.clone()
	r.Object = r.Object.clone()
	return r
}

// Clone returns a deep copy of images.
func Clone(images []ImageRelationships) []ImageRelationships {
	out := make([]ImageRelationships, len(images))
	for i, img := range images {
		rels := make([]Relationship, len(img.Relationships))
		for j, r := range img.Relationships {
			rels[j] = r.clone()
		}
		out[i] = ImageRelationships{ImageID: img.ImageID, Relationships: rels}
	}
	return out
}
