package vg

import (
	"bytes"
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `[
  {"image_id": 1, "relationships": [
    {"relationship_id": 10, "predicate": "ON",
     "subject": {"object_id": 1, "x": 0, "y": 0, "w": 10, "h": 20, "name": "cup"},
     "object":  {"object_id": 2, "x": 5, "y": 5, "w": 40, "h": 10, "names": ["table", "desk"]}},
    {"relationship_id": 11, "predicate": "wearing",
     "subject": {"object_id": 3, "x": 1, "y": 1, "w": 0, "h": 5, "name": "man"},
     "object":  {"object_id": 4, "x": 1, "y": 1, "w": 5, "h": 5, "name": "hat"}}
  ]},
  {"image_id": 2, "relationships": [
    {"relationship_id": 20, "predicate": "On Top Of",
     "subject": {"object_id": 5, "x": 2, "y": 3, "w": 4, "h": 5, "name": "book"},
     "object":  {"object_id": 6, "x": 0, "y": 0, "w": 8, "h": 8, "name": "shelf"}},
    {"relationship_id": 21, "predicate": "has",
     "subject": {"object_id": 7, "x": 2, "y": 3, "w": 4, "h": 5, "name": "man"},
     "object":  {"object_id": 8, "x": 0, "y": 0, "w": 8, "h": 8, "name": "hat"}}
  ]},
  {"image_id": 3, "relationships": []}
]`

func load(t *testing.T) []ImageRelationships {
	t.Helper()
	images, err := LoadRelationships(strings.NewReader(sampleJSON))
	require.NoError(t, err)
	return images
}

// rel is a relationship with valid boxes and the given predicate.
func rel(pred string) Relationship {
	box := Object{W: 1, H: 1, Name: "thing"}
	return Relationship{Predicate: pred, Subject: box, Object: box}
}

func TestLoadRelationships(t *testing.T) {
	images := load(t)
	require.Len(t, images, 3)
	assert.Equal(t, 1, images[0].ImageID)
	assert.Equal(t, "table", images[0].Relationships[0].Object.DisplayName())
	assert.Equal(t, "cup", images[0].Relationships[0].Subject.DisplayName())
	assert.Equal(t, 4, NumRelationships(images))

	_, err := LoadRelationships(strings.NewReader(`{"image_id": 1}`))
	assert.ErrorContains(t, err, "must be a JSON array")
}

func TestWriteRelationships_RoundTrip(t *testing.T) {
	images := load(t)
	var buf bytes.Buffer
	require.NoError(t, WriteRelationships(&buf, images))

	again, err := LoadRelationships(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(images, again); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "a", (&Object{Name: "a", Names: []string{"b"}}).DisplayName())
	assert.Equal(t, "b", (&Object{Names: []string{"b", "c"}}).DisplayName())
	assert.Equal(t, "", (&Object{}).DisplayName())
}

func TestFilter(t *testing.T) {
	images := load(t)

	filtered := Filter(context.Background(), images, HasPredicate("on", "has", "wearing"), FilterOptions{})
	require.Len(t, filtered, 3)

	// The zero-width "wearing" relationship is dropped, predicates are lower-cased.
	assert.Equal(t, []string{"on"}, predicates(filtered[0]))
	assert.Equal(t, []string{"has"}, predicates(filtered[1]))
	assert.Empty(t, filtered[2].Relationships)

	// The input is untouched.
	assert.Equal(t, "ON", images[0].Relationships[0].Predicate)
	assert.Len(t, images[0].Relationships, 2)
}

func TestFilter_InPlace(t *testing.T) {
	images := load(t)
	out := Filter(context.Background(), images, nil, FilterOptions{InPlace: true})
	assert.Equal(t, "on", images[0].Relationships[0].Predicate)
	assert.Equal(t, []string{"on top of", "has"}, predicates(out[1]))
}

func TestCount(t *testing.T) {
	images := Filter(context.Background(), load(t), nil, FilterOptions{})

	counts := Count(images, nil)
	assert.Equal(t, map[string]int{"on": 1, "on top of": 1, "has": 1, TotalKey: 3}, counts)

	counts = Count(images, map[string]string{"on top of": "on"})
	assert.Equal(t, map[string]int{"on": 2, "has": 1, TotalKey: 3}, counts)
}

func TestSample(t *testing.T) {
	images := []ImageRelationships{
		{ImageID: 1, Relationships: []Relationship{rel("on"), rel("on"), rel("has")}},
		{ImageID: 2, Relationships: []Relationship{rel("on"), rel("on"), rel("has")}},
	}
	counts := Count(images, nil)

	sampled := Sample(images, counts, 2, rand.New(rand.NewPCG(1, 2)))

	perPred := map[string]int{}
	for _, img := range sampled {
		for _, r := range img.Relationships {
			perPred[r.Predicate]++
		}
	}
	assert.Equal(t, 2, perPred["on"])
	assert.Equal(t, 2, perPred["has"])
	assert.Equal(t, 2, perPred[Unlabeled])

	// Original data is untouched.
	assert.Equal(t, "on", images[0].Relationships[0].Predicate)

	// The same seed yields the same sample.
	again := Sample(images, counts, 2, rand.New(rand.NewPCG(1, 2)))
	if diff := cmp.Diff(sampled, again); diff != "" {
		t.Errorf("seeded sample is not reproducible:\n%s", diff)
	}
}

func TestLabels(t *testing.T) {
	images := []ImageRelationships{
		{Relationships: []Relationship{rel("on"), rel(Unlabeled), rel("has"), rel("atop")}},
	}

	labels, err := Labels(images, []string{"on", "has"}, map[string]string{"atop": "on"})
	require.NoError(t, err)
	assert.Equal(t, [][]int{
		{0, 1},
		{-1, -1},
		{1, 0},
		{0, 1},
	}, labels)

	_, err = Labels(images, []string{"on", "has"}, nil)
	assert.ErrorContains(t, err, `predicate "atop" not found`)
}

func TestObjectCategories(t *testing.T) {
	images := Filter(context.Background(), load(t), nil, FilterOptions{})
	syns := map[string][]string{
		"furniture": {"table", "desk", "shelf"},
		"clothing":  {"hat", "cap"},
		"person":    {"man", "woman"},
		"vessel":    {"cup", "mug"},
	}

	assert.Equal(t, []string{"furniture", "vessel"}, ObjectCategories(images, []string{"on"}, syns))
	assert.Equal(t, []string{"clothing", "person"}, ObjectCategories(images, []string{"has"}, syns))
	assert.Empty(t, ObjectCategories(images, []string{"under"}, syns))
}

func predicates(img ImageRelationships) []string {
	var out []string
	for _, r := range img.Relationships {
		out = append(out, r.Predicate)
	}
	return out
}
