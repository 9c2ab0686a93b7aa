package places

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/model"
)

// fallbackKeywords bias an address-only search toward a point of interest
// instead of the bare street address.
var fallbackKeywords = []string{"카페", "식당"}

var (
	// ErrNoInput is returned when neither a name nor an address is given.
	// No search is made.
	ErrNoInput = errors.New("no name or address to search")
	// ErrNoMatch is returned when every query came back unusable.
	ErrNoMatch = errors.New("no place matched")
)

// Searcher runs one free-text place search.
type Searcher interface {
	TextSearch(ctx context.Context, query string) (SearchResponse, error)
}

// PhotoURLBuilder turns a provider photo reference into an image URL.
type PhotoURLBuilder interface {
	PhotoURL(reference string) string
}

// Resolver turns a name and address hint into a single place using a
// cascade of progressively looser queries.
type Resolver struct {
	search Searcher
	photos PhotoURLBuilder
	log    logrus.FieldLogger
}

// NewResolver returns a Resolver. Client satisfies both interfaces.
func NewResolver(search Searcher, photos PhotoURLBuilder, log logrus.FieldLogger) *Resolver {
	return &Resolver{search: search, photos: photos, log: log.WithField("component", "place_resolver")}
}

// Queries returns the search queries for name and address in priority
// order. Blank inputs skip the tiers that need them.
func Queries(name, address string) []string {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	var qs []string
	if name != "" && address != "" {
		qs = append(qs, name+" "+address)
	}
	if name != "" {
		qs = append(qs, name)
	}
	if address != "" {
		for _, kw := range fallbackKeywords {
			qs = append(qs, address+" "+kw)
		}
	}
	return qs
}

// Resolve returns the first-ranked result of the first usable query as an
// unsaved place owned by userID. Search failures are logged and the next
// query is tried. When no query is usable it returns ErrNoMatch, wrapping
// ErrUpstreamUnavailable if every attempt failed in transport.
func (r *Resolver) Resolve(ctx context.Context, userID uint64, name, address string) (model.Place, error) {
	queries := Queries(name, address)
	if len(queries) == 0 {
		return model.Place{}, ErrNoInput
	}
	log := r.log.WithFields(logrus.Fields{"name": name, "address": address})

	failures := 0
	for _, q := range queries {
		resp, err := r.search.TextSearch(ctx, q)
		if err != nil {
			failures++
			log.WithError(err).WithField("query", q).Warn("place search failed")
			continue
		}
		if resp.Status != StatusOK {
			log.WithFields(logrus.Fields{"query": q, "status": resp.Status}).Debug("place search not ok")
			continue
		}
		if len(resp.Results) == 0 {
			log.WithField("query", q).Debug("place search returned no results")
			continue
		}
		p := r.build(userID, resp.Results[0])
		log.WithFields(logrus.Fields{"query": q, "external_place_id": p.ExternalPlaceID}).Info("place resolved")
		return p, nil
	}

	log.WithField("queries", len(queries)).Info("no place matched")
	if failures == len(queries) {
		return model.Place{}, errors.Join(ErrNoMatch, ErrUpstreamUnavailable)
	}
	return model.Place{}, ErrNoMatch
}

func (r *Resolver) build(userID uint64, res SearchResult) model.Place {
	p := model.Place{
		UserID:          userID,
		ExternalPlaceID: res.PlaceID,
		Name:            res.Name,
		Address:         res.FormattedAddress,
		Rating:          res.Rating,
		ReviewCount:     res.UserRatingsTotal,
	}
	for i, ph := range res.Photos {
		if i == model.MaxPlaceImages {
			break
		}
		p.Images = append(p.Images, model.PlaceImage{
			ImageURL:  r.photos.PhotoURL(ph.PhotoReference),
			SortOrder: i,
		})
	}
	return p
}
