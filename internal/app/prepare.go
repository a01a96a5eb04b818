package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/vk/vgprep/internal/ctxlog"
	"github.com/vk/vgprep/internal/primitives"
	"github.com/vk/vgprep/internal/render"
	"github.com/vk/vgprep/internal/synonyms"
	"github.com/vk/vgprep/internal/vg"
	"gopkg.in/yaml.v3"
)

// PredicateCount is one row of the stats report.
type PredicateCount struct {
	Predicate string `json:"predicate" yaml:"predicate"`
	Count     int    `json:"count" yaml:"count"`
}

// Stats is the report printed by the stats command.
type Stats struct {
	Images        int              `json:"images" yaml:"images"`
	Relationships int              `json:"relationships" yaml:"relationships"`
	Predicates    []PredicateCount `json:"predicates" yaml:"predicates"`
}

// loadFiltered reads the relationships file and keeps the relationships
// whose predicate is one of preds. Empty preds keeps everything.
func (a *App) loadFiltered(ctx context.Context, preds []string) ([]vg.ImageRelationships, error) {
	p := a.config.Prepare
	logger := ctxlog.FromContext(ctx)

	if info, err := os.Stat(p.Relationships); err == nil {
		logger.Info("Loading relationships.", "path", p.Relationships, "size", humanize.Bytes(uint64(info.Size())))
	}
	images, err := vg.LoadRelationshipsFile(p.Relationships)
	if err != nil {
		return nil, fmt.Errorf("failed to load relationships: %w", err)
	}

	filtered := vg.Filter(ctx, images, vg.HasPredicate(preds...), vg.FilterOptions{InPlace: true})
	logger.Info("Relationships filtered.", "images", len(filtered), "relationships", vg.NumRelationships(filtered))
	return filtered, nil
}

// predicateSet returns the requested predicates, every predicate they
// expand to through the aliases, and the mapping from each alias back to
// its requested predicate. Without aliases the mapping is nil.
func predicateSet(requested []string, aliases *synonyms.Set) ([]string, map[string]string) {
	preds := lower(requested)
	if aliases == nil || len(preds) == 0 {
		return preds, nil
	}
	mapping := synonyms.Inverse(aliases.Predicates.Expand(preds))
	expanded := make([]string, 0, len(mapping))
	for alias := range mapping {
		expanded = append(expanded, alias)
	}
	sort.Strings(expanded)
	return expanded, mapping
}

// loadAliases reads the alias lists, or returns nil when none were given.
func (a *App) loadAliases(ctx context.Context) (*synonyms.Set, error) {
	dir := a.config.Prepare.AliasesDir
	if dir == "" {
		return nil, nil
	}
	set, err := synonyms.LoadSet(dir)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Alias lists loaded.", "dir", dir,
		"object_words", len(set.Objects), "predicate_words", len(set.Predicates))
	return set, nil
}

// runStats counts relationships per predicate.
func (a *App) runStats(ctx context.Context) error {
	p := a.config.Prepare
	aliases, err := a.loadAliases(ctx)
	if err != nil {
		return err
	}
	preds, predicateSynonyms := predicateSet(p.Predicates, aliases)
	images, err := a.loadFiltered(ctx, preds)
	if err != nil {
		return err
	}
	counts := vg.Count(images, predicateSynonyms)

	stats := Stats{Images: len(images), Relationships: counts[vg.TotalKey]}
	for pred, n := range counts {
		if pred == vg.TotalKey {
			continue
		}
		stats.Predicates = append(stats.Predicates, PredicateCount{Predicate: pred, Count: n})
	}
	sort.Slice(stats.Predicates, func(i, j int) bool {
		pi, pj := stats.Predicates[i], stats.Predicates[j]
		if pi.Count != pj.Count {
			return pi.Count > pj.Count
		}
		return pi.Predicate < pj.Predicate
	})

	return writeStats(a.outW, p.Format, &stats)
}

func writeStats(w io.Writer, format string, stats *Stats) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(stats); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "images\t%s\n", humanize.Comma(int64(stats.Images)))
		fmt.Fprintf(tw, "relationships\t%s\n", humanize.Comma(int64(stats.Relationships)))
		fmt.Fprintln(tw, "")
		fmt.Fprintln(tw, "PREDICATE\tCOUNT")
		for _, pc := range stats.Predicates {
			fmt.Fprintf(tw, "%s\t%s\n", pc.Predicate, humanize.Comma(int64(pc.Count)))
		}
		return tw.Flush()
	}
}

// runSample hides all but a fixed number of labels per predicate and
// writes the sampled relationships and their label matrix.
func (a *App) runSample(ctx context.Context) error {
	p := a.config.Prepare
	logger := ctxlog.FromContext(ctx)

	aliases, err := a.loadAliases(ctx)
	if err != nil {
		return err
	}
	preds, predicateSynonyms := predicateSet(p.Predicates, aliases)
	images, err := a.loadFiltered(ctx, preds)
	if err != nil {
		return err
	}
	counts := vg.Count(images, nil)
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed))
	sampled := vg.Sample(images, counts, p.PerPredicate, rng)

	labels, err := vg.Labels(sampled, lower(p.Predicates), predicateSynonyms)
	if err != nil {
		return fmt.Errorf("failed to build labels: %w", err)
	}

	if err := writeJSONFile(p.Out, func(w io.Writer) error {
		return vg.WriteRelationships(w, sampled)
	}); err != nil {
		return err
	}
	labelsPath := LabelsPath(p.Out)
	if err := writeJSONFile(labelsPath, func(w io.Writer) error {
		preds := lower(p.Predicates)
		sort.Strings(preds)
		return json.NewEncoder(w).Encode(map[string]any{
			"predicates": preds,
			"labels":     labels,
		})
	}); err != nil {
		return err
	}

	logger.Info("Sample written.", "relationships", p.Out, "labels", labelsPath, "rows", len(labels))
	fmt.Fprintf(a.outW, "wrote %s and %s (%d relationships)\n", p.Out, labelsPath, len(labels))
	return nil
}

// LabelsPath returns the file the sample command writes labels to.
func LabelsPath(out string) string {
	return strings.TrimSuffix(out, filepath.Ext(out)) + ".labels.json"
}

// runFeatures writes the primitive features of every relationship as JSON lines.
func (a *App) runFeatures(ctx context.Context) error {
	p := a.config.Prepare
	logger := ctxlog.FromContext(ctx)

	aliases, err := a.loadAliases(ctx)
	if err != nil {
		return err
	}
	preds, _ := predicateSet(p.Predicates, aliases)
	images, err := a.loadFiltered(ctx, preds)
	if err != nil {
		return err
	}

	objectSynonyms := objectCategories(lower(p.Objects), objectNames(images), aliases)
	if len(p.Objects) > 0 {
		before := vg.NumRelationships(images)
		images = vg.Filter(ctx, images, knownObjects(objectSynonyms), vg.FilterOptions{InPlace: true})
		logger.Info("Kept relationships between requested objects.",
			"kept", vg.NumRelationships(images), "dropped", before-vg.NumRelationships(images))
	}
	entities := vg.ObjectCategories(images, preds, objectSynonyms)
	logger.Info("Object categories resolved.", "count", len(entities))

	examples, err := primitives.Extract(images, entities, objectSynonyms)
	if err != nil {
		return fmt.Errorf("failed to extract features: %w", err)
	}

	if err := writeJSONFile(p.Out, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		for i := range examples {
			if err := enc.Encode(&examples[i]); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	logger.Info("Features written.", "path", p.Out, "examples", len(examples))
	fmt.Fprintf(a.outW, "wrote %d examples over %d categories to %s\n", len(examples), len(entities), p.Out)
	return nil
}

// runPreview draws the first relationship of n random images.
func (a *App) runPreview(ctx context.Context) error {
	p := a.config.Prepare
	logger := ctxlog.FromContext(ctx)

	images, err := a.loadFiltered(ctx, lower(p.Predicates))
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed))
	for _, item := range render.Preview(images, p.N, rng) {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := filepath.Join(p.Out, fmt.Sprintf("%d.png", item.ImageID))
		if err := render.RenderItem(item, p.ImagesDir, out); err != nil {
			return fmt.Errorf("failed to render image %d: %w", item.ImageID, err)
		}
		logger.Debug("Preview rendered.", "path", out)
		fmt.Fprintf(a.outW, "%s\t%s\n", out, item.Caption())
	}
	return nil
}

// writeJSONFile creates path and hands it to write.
func writeJSONFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// objectNames returns the sorted display names of every subject and object.
// objectCategories maps each category to the object names it covers. Seeds,
// when given, are the categories. Otherwise the observed names are folded
// into categories through the alias list.
func objectCategories(seeds, observed []string, aliases *synonyms.Set) map[string][]string {
	var objects synonyms.Map
	if aliases != nil {
		objects = aliases.Objects
	}
	if len(seeds) > 0 {
		return objects.Expand(seeds)
	}
	return objects.Group(observed)
}

// knownObjects keeps relationships whose subject and object both belong to
// a category.
func knownObjects(objectSynonyms map[string][]string) vg.Condition {
	known := make(map[string]struct{})
	for _, syns := range objectSynonyms {
		for _, s := range syns {
			known[s] = struct{}{}
		}
	}
	return func(r *vg.Relationship) bool {
		_, sub := known[r.Subject.DisplayName()]
		_, obj := known[r.Object.DisplayName()]
		return sub && obj
	}
}

func objectNames(images []vg.ImageRelationships) []string {
	seen := make(map[string]struct{})
	for _, img := range images {
		for _, r := range img.Relationships {
			seen[r.Subject.DisplayName()] = struct{}{}
			seen[r.Object.DisplayName()] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lower(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}
