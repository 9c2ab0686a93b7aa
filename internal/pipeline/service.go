// Package pipeline runs a reel through metadata, address extraction, place
// resolution and notification, moving its status from PROCESSING to one of
// the terminal outcomes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/reelsplace/internal/extract"
	"github.com/iliyamo/reelsplace/internal/lock"
	"github.com/iliyamo/reelsplace/internal/metadata"
	"github.com/iliyamo/reelsplace/internal/model"
	"github.com/iliyamo/reelsplace/internal/notify"
	"github.com/iliyamo/reelsplace/internal/places"
	"github.com/iliyamo/reelsplace/internal/repository"
)

// Reasons recorded for addresses that did not produce a place.
const (
	ReasonNoMatch             = "NO_MATCH"
	ReasonUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ReasonNoInput             = "NO_INPUT"
	ReasonStoreError          = "STORE_ERROR"
	ReasonResolveError        = "RESOLVE_ERROR"
)

// ReelStore is the subset of the reel repository the pipeline uses.
type ReelStore interface {
	GetByID(ctx context.Context, id uint64) (model.Reel, error)
	UpdateMetadata(ctx context.Context, id uint64, caption, thumbnailURL string) error
	UpdateStatus(ctx context.Context, id uint64, status model.ReelStatus) error
}

// PlaceStore finds and inserts places by (user, external place id).
type PlaceStore interface {
	FindByExternalID(ctx context.Context, userID uint64, externalID string) (model.Place, error)
	Create(ctx context.Context, p *model.Place) error
}

// LinkStore records which places a reel produced.
type LinkStore interface {
	Create(ctx context.Context, reelID, placeID uint64) (model.ReelPlace, error)
}

// MetadataFetcher reads caption and thumbnail for a reel URL.
type MetadataFetcher interface {
	Fetch(ctx context.Context, reelURL string) (metadata.Metadata, error)
}

// PlaceResolver turns a name hint and an address into an unsaved place.
type PlaceResolver interface {
	Resolve(ctx context.Context, userID uint64, name, address string) (model.Place, error)
}

// Notifier tells the owner how many places a reel produced.
type Notifier interface {
	NotifyPlaceFound(ctx context.Context, userID, reelID uint64, count int) (notify.Result, error)
}

// Deps wires a Service. Locker defaults to an in-process lock and
// AddressConcurrency to 1.
type Deps struct {
	Reels              ReelStore
	Places             PlaceStore
	Links              LinkStore
	Fetcher            MetadataFetcher
	Resolver           PlaceResolver
	Notifier           Notifier
	Extractor          *extract.Extractor
	Locker             lock.Locker
	AddressConcurrency int
	Log                logrus.FieldLogger
}

// Service implements the reel pipeline operations.
type Service struct {
	reels       ReelStore
	places      PlaceStore
	links       LinkStore
	fetcher     MetadataFetcher
	resolver    PlaceResolver
	notifier    Notifier
	extractor   *extract.Extractor
	locker      lock.Locker
	concurrency int
	placeLocks  *keyedMutex
	log         logrus.FieldLogger
}

// NewService returns a Service built from d.
func NewService(d Deps) *Service {
	if d.Extractor == nil {
		d.Extractor = extract.New()
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	if d.AddressConcurrency < 1 {
		d.AddressConcurrency = 1
	}
	return &Service{
		reels:       d.Reels,
		places:      d.Places,
		links:       d.Links,
		fetcher:     d.Fetcher,
		resolver:    d.Resolver,
		notifier:    d.Notifier,
		extractor:   d.Extractor,
		locker:      d.Locker,
		concurrency: d.AddressConcurrency,
		placeLocks:  newKeyedMutex(),
		log:         d.Log.WithField("component", "pipeline"),
	}
}

// MetadataResult is returned by ParseMetadata.
type MetadataResult struct {
	ReelID       uint64    `json:"reel_id"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Caption      string    `json:"caption"`
	ParsedAt     time.Time `json:"parsed_at"`
}

// ExtractResult is returned by ExtractAddresses.
type ExtractResult struct {
	ReelID      uint64    `json:"reel_id"`
	Addresses   []string  `json:"addresses"`
	PlaceName   *string   `json:"place_name"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// ResolvedAddress is one address that produced a place.
type ResolvedAddress struct {
	Address string      `json:"address"`
	Place   model.Place `json:"place"`
	Reused  bool        `json:"reused"`
}

// FailedAddress is one address that did not produce a place.
type FailedAddress struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// CreateResult is returned by CreatePlaces.
type CreateResult struct {
	ReelID          uint64            `json:"reel_id"`
	Status          model.ReelStatus  `json:"status"`
	Places          []ResolvedAddress `json:"places"`
	FailedAddresses []FailedAddress   `json:"failed_addresses"`
	CreatedAt       time.Time         `json:"created_at"`
}

// RunResult is returned by Run.
type RunResult struct {
	RunID           string            `json:"run_id"`
	ReelID          uint64            `json:"reel_id"`
	Status          model.ReelStatus  `json:"status"`
	Addresses       []string          `json:"addresses"`
	Places          []ResolvedAddress `json:"places"`
	FailedAddresses []FailedAddress   `json:"failed_addresses"`
	Notification    *notify.Result    `json:"notification,omitempty"`
	FinishedAt      time.Time         `json:"finished_at"`
}

// ParseMetadata fetches and stores the caption and thumbnail of a reel. A
// fetch failure moves the reel to FAILED.
func (s *Service) ParseMetadata(ctx context.Context, reelID uint64) (MetadataResult, error) {
	const op = "parse metadata"
	reel, err := s.getReel(ctx, op, reelID)
	if err != nil {
		return MetadataResult{}, err
	}
	return s.parseMetadata(ctx, reel)
}

func (s *Service) parseMetadata(ctx context.Context, reel model.Reel) (MetadataResult, error) {
	const op = "parse metadata"
	md, err := s.fetcher.Fetch(ctx, reel.ReelURL)
	if err != nil {
		return MetadataResult{}, s.fail(ctx, op, reel.ID, err)
	}
	if err := s.reels.UpdateMetadata(ctx, reel.ID, md.Caption, md.ThumbnailURL); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return MetadataResult{}, newError(KindNotFound, op, err)
		}
		return MetadataResult{}, s.fail(ctx, op, reel.ID, err)
	}
	s.log.WithFields(logrus.Fields{"reel_id": reel.ID, "caption_len": len(md.Caption)}).Info("metadata parsed")
	return MetadataResult{
		ReelID:       reel.ID,
		ThumbnailURL: md.ThumbnailURL,
		Caption:      md.Caption,
		ParsedAt:     time.Now().UTC(),
	}, nil
}

// ExtractAddresses mines the stored caption for addresses and a place
// name. An empty result moves the reel to NO_ADDRESS. A blank caption is
// InvalidInput and leaves the reel untouched.
func (s *Service) ExtractAddresses(ctx context.Context, reelID uint64) (ExtractResult, error) {
	const op = "extract addresses"
	reel, err := s.getReel(ctx, op, reelID)
	if err != nil {
		return ExtractResult{}, err
	}
	caption := reel.CaptionText()
	if strings.TrimSpace(caption) == "" {
		return ExtractResult{}, newError(KindInvalidInput, op, errors.New("caption is empty"))
	}
	res := s.extract(reel.ID, caption)
	if len(res.Addresses) == 0 {
		if err := s.setStatus(ctx, op, reel.ID, model.StatusNoAddress); err != nil {
			return ExtractResult{}, err
		}
	}
	return res, nil
}

func (s *Service) extract(reelID uint64, caption string) ExtractResult {
	addrs := s.extractor.Addresses(caption)
	res := ExtractResult{ReelID: reelID, Addresses: addrs, ExtractedAt: time.Now().UTC()}
	if name, ok := s.extractor.PlaceName(caption); ok {
		res.PlaceName = &name
	}
	s.log.WithFields(logrus.Fields{"reel_id": reelID, "addresses": len(addrs), "has_name": res.PlaceName != nil}).Info("addresses extracted")
	return res
}

// CreatePlaces resolves every address, stores or reuses the place and
// links it to the reel, then derives the reel status. Failures are per
// address and never fail the batch.
func (s *Service) CreatePlaces(ctx context.Context, reelID uint64, addresses []string) (CreateResult, error) {
	const op = "create places"
	reel, err := s.getReel(ctx, op, reelID)
	if err != nil {
		return CreateResult{}, err
	}
	return s.createPlaces(ctx, reel, cleanAddresses(addresses))
}

func (s *Service) createPlaces(ctx context.Context, reel model.Reel, addresses []string) (CreateResult, error) {
	const op = "create places"
	res := CreateResult{
		ReelID:          reel.ID,
		Places:          []ResolvedAddress{},
		FailedAddresses: []FailedAddress{},
	}
	if len(addresses) == 0 {
		if err := s.setStatus(ctx, op, reel.ID, model.StatusNoAddress); err != nil {
			return CreateResult{}, err
		}
		res.Status = model.StatusNoAddress
		res.CreatedAt = time.Now().UTC()
		return res, nil
	}

	hint, _ := s.extractor.NameHint(reel.CaptionText(), addresses)
	log := s.log.WithFields(logrus.Fields{"reel_id": reel.ID, "name_hint": hint})

	type outcome struct {
		resolved *ResolvedAddress
		failed   *FailedAddress
	}
	slots := make([]outcome, len(addresses))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, addr := range addresses {
		g.Go(func() error {
			ra, reason := s.resolveOne(ctx, reel, hint, addr, log)
			if reason != "" {
				slots[i].failed = &FailedAddress{Address: addr, Reason: reason}
			} else {
				slots[i].resolved = &ra
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range slots {
		if o.resolved != nil {
			res.Places = append(res.Places, *o.resolved)
		} else {
			res.FailedAddresses = append(res.FailedAddresses, *o.failed)
		}
	}

	res.Status = model.StatusPlaceNotFound
	if len(res.Places) > 0 {
		res.Status = model.StatusPlaceFound
	}
	if err := s.setStatus(ctx, op, reel.ID, res.Status); err != nil {
		return CreateResult{}, err
	}
	res.CreatedAt = time.Now().UTC()
	log.WithFields(logrus.Fields{
		"status":    res.Status,
		"succeeded": len(res.Places),
		"failed":    len(res.FailedAddresses),
	}).Info("places created")
	return res, nil
}

// resolveOne returns the linked place for addr or a failure reason.
func (s *Service) resolveOne(ctx context.Context, reel model.Reel, hint, addr string, log logrus.FieldLogger) (ResolvedAddress, string) {
	log = log.WithField("address", addr)

	candidate, err := s.resolver.Resolve(ctx, reel.UserID, hint, addr)
	if err != nil {
		reason := ReasonNoMatch
		switch {
		case errors.Is(err, places.ErrUpstreamUnavailable),
			errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			reason = ReasonUpstreamUnavailable
		case errors.Is(err, places.ErrNoInput):
			reason = ReasonNoInput
		case !errors.Is(err, places.ErrNoMatch):
			reason = ReasonResolveError
		}
		log.WithError(err).WithField("reason", reason).Warn("address not resolved")
		return ResolvedAddress{}, reason
	}

	place, reused, err := s.upsertPlace(ctx, candidate)
	if err != nil {
		log.WithError(err).Error("store place failed")
		return ResolvedAddress{}, ReasonStoreError
	}
	if _, err := s.links.Create(ctx, reel.ID, place.ID); err != nil {
		log.WithError(err).WithField("place_id", place.ID).Error("link place failed")
		return ResolvedAddress{}, ReasonStoreError
	}
	log.WithFields(logrus.Fields{"place_id": place.ID, "reused": reused}).Info("address resolved")
	return ResolvedAddress{Address: addr, Place: place, Reused: reused}, ""
}

// upsertPlace returns the user's existing place with the same external id
// or stores candidate. The per-key mutex serializes writers in this
// process; the unique key catches writers in other processes.
func (s *Service) upsertPlace(ctx context.Context, candidate model.Place) (model.Place, bool, error) {
	key := strconv.FormatUint(candidate.UserID, 10) + ":" + candidate.ExternalPlaceID
	unlock := s.placeLocks.Lock(key)
	defer unlock()

	existing, err := s.places.FindByExternalID(ctx, candidate.UserID, candidate.ExternalPlaceID)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Place{}, false, err
	}

	p := candidate
	if err := s.places.Create(ctx, &p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			existing, ferr := s.places.FindByExternalID(ctx, candidate.UserID, candidate.ExternalPlaceID)
			return existing, true, ferr
		}
		return model.Place{}, false, err
	}
	return p, false, nil
}

// UpdateStatus force-sets the reel status.
func (s *Service) UpdateStatus(ctx context.Context, reelID uint64, status model.ReelStatus) (model.Reel, error) {
	const op = "update status"
	if !status.Valid() {
		return model.Reel{}, newError(KindInvalidInput, op, fmt.Errorf("unknown status %q", status))
	}
	if _, err := s.getReel(ctx, op, reelID); err != nil {
		return model.Reel{}, err
	}
	if err := s.reels.UpdateStatus(ctx, reelID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Reel{}, newError(KindNotFound, op, err)
		}
		return model.Reel{}, newError(KindInternal, op, err)
	}
	s.log.WithFields(logrus.Fields{"reel_id": reelID, "status": status}).Info("status overridden")
	return s.getReel(ctx, op, reelID)
}

// Run executes the whole pipeline for one reel. Metadata is fetched only
// when no caption is stored yet; a blank caption after that is InvalidInput
// and writes no status. It returns ErrAlreadyRunning when another
// run holds the reel.
func (s *Service) Run(ctx context.Context, reelID uint64) (RunResult, error) {
	const op = "run"
	release, err := s.locker.TryLock(ctx, "reel:"+strconv.FormatUint(reelID, 10))
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return RunResult{}, ErrAlreadyRunning
		}
		return RunResult{}, newError(KindInternal, op, err)
	}
	defer release()

	res := RunResult{
		RunID:           uuid.NewString(),
		ReelID:          reelID,
		Addresses:       []string{},
		Places:          []ResolvedAddress{},
		FailedAddresses: []FailedAddress{},
	}
	log := s.log.WithFields(logrus.Fields{"reel_id": reelID, "run_id": res.RunID})
	log.Info("run started")

	out, err := s.run(ctx, reelID, res)
	if err != nil {
		log.WithError(err).Error("run ended without a result")
		return RunResult{}, err
	}
	out.FinishedAt = time.Now().UTC()
	log.WithFields(logrus.Fields{"status": out.Status, "places": len(out.Places)}).Info("run finished")
	return out, nil
}

func (s *Service) run(ctx context.Context, reelID uint64, res RunResult) (RunResult, error) {
	const op = "run"
	reel, err := s.getReel(ctx, op, reelID)
	if err != nil {
		return res, err
	}

	if reel.Caption == nil {
		md, err := s.parseMetadata(ctx, reel)
		if err != nil {
			return res, err
		}
		reel.Caption = &md.Caption
		reel.ThumbnailURL = &md.ThumbnailURL
	}

	if strings.TrimSpace(reel.CaptionText()) == "" {
		return res, newError(KindInvalidInput, op, errors.New("caption is empty"))
	}

	ex := s.extract(reel.ID, reel.CaptionText())
	res.Addresses = ex.Addresses

	created, err := s.createPlaces(ctx, reel, ex.Addresses)
	if err != nil {
		return res, err
	}
	res.Status = created.Status
	res.Places = created.Places
	res.FailedAddresses = created.FailedAddresses

	if res.Status == model.StatusPlaceFound && s.notifier != nil {
		n, err := s.notifier.NotifyPlaceFound(ctx, reel.UserID, reel.ID, distinctPlaces(res.Places))
		if err != nil {
			s.log.WithError(err).WithField("reel_id", reel.ID).Warn("notification skipped")
		} else {
			res.Notification = &n
		}
	}
	return res, nil
}

func (s *Service) getReel(ctx context.Context, op string, id uint64) (model.Reel, error) {
	reel, err := s.reels.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Reel{}, newError(KindNotFound, op, fmt.Errorf("reel %d", id))
		}
		return model.Reel{}, newError(KindInternal, op, err)
	}
	return reel, nil
}

// setStatus writes status. On failure the reel keeps its last written
// status: a vanished reel is NotFound, anything else Internal.
func (s *Service) setStatus(ctx context.Context, op string, reelID uint64, status model.ReelStatus) error {
	err := s.reels.UpdateStatus(ctx, reelID, status)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return newError(KindNotFound, op, fmt.Errorf("reel %d", reelID))
	}
	s.log.WithError(err).WithFields(logrus.Fields{"reel_id": reelID, "status": status}).Error("status write failed")
	return newError(KindInternal, op, err)
}

// fail moves the reel to FAILED and returns an internal error wrapping
// cause. Only metadata failures end this way.
func (s *Service) fail(ctx context.Context, op string, reelID uint64, cause error) error {
	log := s.log.WithFields(logrus.Fields{"reel_id": reelID, "op": op})
	if err := s.reels.UpdateStatus(ctx, reelID, model.StatusFailed); err != nil {
		log.WithError(err).Error("could not mark reel failed")
	}
	log.WithError(cause).Error("reel failed")
	return newError(KindInternal, op, cause)
}

// distinctPlaces counts the places behind resolved, which may repeat when
// two addresses resolve to the same place.
func distinctPlaces(resolved []ResolvedAddress) int {
	seen := make(map[uint64]struct{}, len(resolved))
	for _, r := range resolved {
		seen[r.Place.ID] = struct{}{}
	}
	return len(seen)
}

func cleanAddresses(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = extract.CleanAddress(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
