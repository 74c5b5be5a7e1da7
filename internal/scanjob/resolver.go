package scanjob

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"

	"github.com/tonimelisma/cdgc-go/internal/idmc"
)

// resourceFilter restricts a search to non-reference catalog sources with
// the given name. The name is inserted as a single-quoted DSL literal.
const resourceFilter = "core.classType core.Resource and core.reference False and core.name '%s'"

// Searcher runs a catalog search. Satisfied by *idmc.Client.
type Searcher interface {
	SearchAssets(ctx context.Context, req idmc.SearchRequest) (*idmc.SearchResult, error)
}

// Resource is a resolved catalog source.
type Resource struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassType string `json:"classType,omitempty"`
}

// Resolver maps a human-readable catalog source name to its ID.
type Resolver struct {
	search Searcher
	strict bool
	logger *slog.Logger
	fold   cases.Caser
}

// NewResolver creates a Resolver. When strict is set, a search that does not
// yield exactly one case-insensitive name match is an error instead of
// falling back to the top-ranked hit.
func NewResolver(search Searcher, strict bool, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		search: search,
		strict: strict,
		logger: logger,
		fold:   cases.Fold(),
	}
}

// FilterFor returns the DSL filter used to look up a catalog source by name.
func FilterFor(name string) string {
	return fmt.Sprintf(resourceFilter, strings.ReplaceAll(name, "'", `\'`))
}

// Resolve looks up a catalog source by name. The resolver never launches
// anything and never mutates remote state.
func (r *Resolver) Resolve(ctx context.Context, name string) (*Resource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrNotFound)
	}

	r.logger.Info("resolving catalog source", slog.String("name", name))

	res, err := r.search.SearchAssets(ctx, idmc.SearchRequest{Filter: FilterFor(name)})
	if err != nil {
		r.logger.Error("catalog search failed",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)

		return nil, &ResolveError{Name: name, Err: err}
	}

	if len(res.Hits) == 0 {
		r.logger.Warn("no catalog source matched", slog.String("name", name))
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	exact := r.exactMatches(name, res.Hits)

	if len(exact) == 1 {
		return r.found(name, exact[0], "exact"), nil
	}

	if r.strict {
		return nil, fmt.Errorf("%w: %q matched %d sources exactly (candidates: %s)",
			ErrAmbiguous, name, len(exact), candidateNames(res.Hits))
	}

	// Lenient fallback: the first exact match if several, else the
	// top-ranked hit.
	pick := res.Hits[0]
	if len(exact) > 1 {
		pick = exact[0]
	}

	r.logger.Warn("no unique exact match, using top-ranked hit",
		slog.String("name", name),
		slog.Int("exact_matches", len(exact)),
		slog.Int("hits", len(res.Hits)),
		slog.String("picked", pick.Name),
	)

	return r.found(name, pick, "fallback"), nil
}

func (r *Resolver) exactMatches(name string, hits []idmc.Asset) []idmc.Asset {
	want := r.fold.String(name)

	var out []idmc.Asset
	for _, h := range hits {
		if r.fold.String(h.Name) == want {
			out = append(out, h)
		}
	}

	return out
}

func (r *Resolver) found(name string, a idmc.Asset, how string) *Resource {
	r.logger.Info("resolved catalog source",
		slog.String("name", name),
		slog.String("match", a.Name),
		slog.String("id", a.OriginID),
		slog.String("how", how),
	)

	return &Resource{ID: a.OriginID, Name: a.Name, ClassType: a.ClassType}
}

func candidateNames(hits []idmc.Asset) string {
	const limit = 5

	names := make([]string, 0, min(len(hits), limit))
	for i, h := range hits {
		if i == limit {
			names = append(names, "...")
			break
		}

		names = append(names, fmt.Sprintf("%s (%s)", h.Name, h.OriginID))
	}

	return strings.Join(names, ", ")
}
