package vg

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/vk/vgprep/internal/ctxlog"
)

// Condition decides whether a relationship is kept by Filter.
type Condition func(r *Relationship) bool

// HasPredicate keeps relationships whose (lower-cased) predicate is one of
// preds. Without preds every relationship is kept.
func HasPredicate(preds ...string) Condition {
	if len(preds) == 0 {
		return func(*Relationship) bool { return true }
	}
	set := make(map[string]struct{}, len(preds))
	for _, p := range preds {
		set[strings.ToLower(p)] = struct{}{}
	}
	return func(r *Relationship) bool {
		_, ok := set[r.Predicate]
		return ok
	}
}

// FilterOptions tunes Filter.
type FilterOptions struct {
	// InPlace modifies and returns the given slice instead of a copy.
	InPlace bool
}

// Filter drops relationships whose subject or object has a zero width or
// height, lower-cases predicates and keeps the relationships for which
// cond holds. Images stay in place even when all their relationships are
// dropped.
func Filter(ctx context.Context, images []ImageRelationships, cond Condition, opts FilterOptions) []ImageRelationships {
	logger := ctxlog.FromContext(ctx)
	out := images
	if !opts.InPlace {
		out = Clone(images)
	}

	invalid := 0
	for i := range out {
		rels := out[i].Relationships
		kept := rels[:0]
		for j := range rels {
			r := &rels[j]
			if !r.Subject.ValidBox() || !r.Object.ValidBox() {
				invalid++
				logger.Debug("Invalid bounding box, skipping relationship.",
					"image_id", out[i].ImageID, "relationship_id", r.RelationshipID)
				continue
			}
			r.Predicate = strings.ToLower(r.Predicate)
			if cond == nil || cond(r) {
				kept = append(kept, *r)
			}
		}
		out[i].Relationships = kept
	}
	if invalid > 0 {
		logger.Warn("Skipped relationships with invalid bounding boxes.", "count", invalid)
	}
	return out
}

// Count returns the number of relationships per predicate, with
// predicates found in synonyms replaced by their canonical predicate. The
// TotalKey entry holds the sum.
func Count(images []ImageRelationships, synonyms map[string]string) map[string]int {
	counts := make(map[string]int)
	total := 0
	for i := range images {
		for _, r := range images[i].Relationships {
			pred := r.Predicate
			if canonical, ok := synonyms[pred]; ok {
				pred = canonical
			}
			counts[pred]++
			total++
		}
	}
	counts[TotalKey] = total
	return counts
}

// Sample keeps up to nPerPred randomly chosen occurrences of every
// predicate in counts and replaces the predicate of all other
// relationships with Unlabeled. Predicates are sampled in ascending order
// of count so results are reproducible for a seeded rng. The input is not
// modified.
func Sample(images []ImageRelationships, counts map[string]int, nPerPred int, rng *rand.Rand) []ImageRelationships {
	type predCount struct {
		pred  string
		count int
	}
	ordered := make([]predCount, 0, len(counts))
	for pred, n := range counts {
		if pred == TotalKey {
			continue
		}
		ordered = append(ordered, predCount{strings.ToLower(pred), n})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count < ordered[j].count
		}
		return ordered[i].pred < ordered[j].pred
	})

	keep := make(map[string]map[int]struct{}, len(ordered))
	for _, pc := range ordered {
		idx := make(map[int]struct{})
		if pc.count <= nPerPred {
			for i := 0; i < pc.count; i++ {
				idx[i] = struct{}{}
			}
		} else {
			for _, i := range rng.Perm(pc.count)[:nPerPred] {
				idx[i] = struct{}{}
			}
		}
		keep[pc.pred] = idx
	}

	sampled := Clone(images)
	seen := make(map[string]int)
	for i := range sampled {
		rels := sampled[i].Relationships
		for j := range rels {
			pred := strings.ToLower(rels[j].Predicate)
			n := seen[pred]
			seen[pred]++
			if _, ok := keep[pred][n]; !ok {
				rels[j].Predicate = Unlabeled
			}
		}
	}
	return sampled
}

// Labels builds the [relationships][predicates] label matrix over the
// sorted predicates. An Unlabeled relationship yields a row of -1, any
// other a one-hot row. Predicates outside the list are resolved through
// synonyms; without a match it is an error.
func Labels(images []ImageRelationships, predicates []string, synonyms map[string]string) ([][]int, error) {
	sorted := append([]string(nil), predicates...)
	sort.Strings(sorted)
	index := make(map[string]int, len(sorted))
	for i, p := range sorted {
		index[p] = i
	}

	labels := make([][]int, 0, NumRelationships(images))
	for i := range images {
		for _, r := range images[i].Relationships {
			row := make([]int, len(sorted))
			if r.Predicate == Unlabeled {
				for k := range row {
					row[k] = -1
				}
				labels = append(labels, row)
				continue
			}

			pred := strings.ToLower(r.Predicate)
			if _, ok := index[pred]; !ok {
				if len(synonyms) == 0 {
					return nil, fmt.Errorf("predicate %q not found", pred)
				}
				canonical, ok := synonyms[pred]
				if !ok {
					return nil, fmt.Errorf("predicate %q not found in synonyms", pred)
				}
				pred = canonical
			}
			k, ok := index[pred]
			if !ok {
				return nil, fmt.Errorf("predicate %q not found", pred)
			}
			row[k] = 1
			labels = append(labels, row)
		}
	}
	return labels, nil
}

// ObjectCategories returns the sorted categories of objectSynonyms whose
// synonym list contains the name of any subject or object taking part in a
// relationship with one of predicates.
func ObjectCategories(images []ImageRelationships, predicates []string, objectSynonyms map[string][]string) []string {
	predSet := make(map[string]struct{}, len(predicates))
	for _, p := range predicates {
		predSet[p] = struct{}{}
	}

	entities := make(map[string]struct{})
	for i := range images {
		for _, r := range images[i].Relationships {
			if _, ok := predSet[r.Predicate]; !ok {
				continue
			}
			entities[r.Subject.DisplayName()] = struct{}{}
			entities[r.Object.DisplayName()] = struct{}{}
		}
	}

	var categories []string
	for category, syns := range objectSynonyms {
		for _, s := range syns {
			if _, ok := entities[s]; ok {
				categories = append(categories, category)
				break
			}
		}
	}
	sort.Strings(categories)
	return categories
}
