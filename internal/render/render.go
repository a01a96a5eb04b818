// Package render draws relationship boxes onto dataset images so a sample
// of the annotations can be inspected by eye.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/vk/vgprep/internal/primitives"
	"github.com/vk/vgprep/internal/vg"
)

var (
	// SubjectColor outlines subject boxes.
	SubjectColor = color.RGBA{R: 255, A: 255}
	// ObjectColor outlines object boxes.
	ObjectColor = color.RGBA{G: 255, B: 255, A: 255}
)

// Draw returns a copy of img with red boxes outlined in SubjectColor and
// cyan boxes in ObjectColor.
func Draw(img image.Image, red, cyan []primitives.BBox) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	for _, b := range red {
		outline(out, b, SubjectColor)
	}
	for _, b := range cyan {
		outline(out, b, ObjectColor)
	}
	return out
}

func outline(img *image.RGBA, b primitives.BBox, c color.Color) {
	r := image.Rect(int(b.X0), int(b.Y0), int(b.X1), int(b.Y1)).
		Add(img.Bounds().Min).
		Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

// Item is one relationship selected for preview.
type Item struct {
	ImageID      int
	Relationship vg.Relationship
}

// Caption renders the relationship as "subject <predicate> object".
func (it Item) Caption() string {
	return fmt.Sprintf("%s <%s> %s",
		it.Relationship.Subject.DisplayName(), it.Relationship.Predicate, it.Relationship.Object.DisplayName())
}

// Preview visits images in random order and picks the first relationship
// of up to n images that have any.
func Preview(images []vg.ImageRelationships, n int, rng *rand.Rand) []Item {
	var items []Item
	for _, i := range rng.Perm(len(images)) {
		if len(items) >= n {
			break
		}
		img := images[i]
		if len(img.Relationships) == 0 {
			continue
		}
		items = append(items, Item{ImageID: img.ImageID, Relationship: img.Relationships[0]})
	}
	return items
}

// RenderItem loads <imageDir>/<image_id>.jpg, draws the subject and object
// boxes of the item and writes the result as PNG to outPath.
func RenderItem(it Item, imageDir, outPath string) error {
	src := filepath.Join(imageDir, fmt.Sprintf("%d.jpg", it.ImageID))
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", src, err)
	}

	sub := primitives.FromObject(&it.Relationship.Subject)
	obj := primitives.FromObject(&it.Relationship.Object)
	out := Draw(img, []primitives.BBox{sub}, []primitives.BBox{obj})

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	w, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := png.Encode(w, out); err != nil {
		w.Close()
		return fmt.Errorf("failed to encode %s: %w", outPath, err)
	}
	return w.Close()
}
