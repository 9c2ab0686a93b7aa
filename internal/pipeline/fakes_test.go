package pipeline

import (
	"context"
	"strconv"
	"sync"

	"github.com/iliyamo/reelsplace/internal/metadata"
	"github.com/iliyamo/reelsplace/internal/model"
	"github.com/iliyamo/reelsplace/internal/notify"
	"github.com/iliyamo/reelsplace/internal/places"
	"github.com/iliyamo/reelsplace/internal/repository"
)

type fakeReels struct {
	mu       sync.Mutex
	reels    map[uint64]model.Reel
	statuses []model.ReelStatus
	// vanishOnStatus makes every status write report a deleted reel.
	vanishOnStatus bool
	// statusErr, when set, fails every status write with it.
	statusErr error
}

func newFakeReels(reels ...model.Reel) *fakeReels {
	f := &fakeReels{reels: make(map[uint64]model.Reel)}
	for _, r := range reels {
		f.reels[r.ID] = r
	}
	return f
}

func (f *fakeReels) GetByID(_ context.Context, id uint64) (model.Reel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reels[id]
	if !ok {
		return model.Reel{}, repository.ErrNotFound
	}
	return r, nil
}

func (f *fakeReels) UpdateMetadata(_ context.Context, id uint64, caption, thumb string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reels[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.Caption = &caption
	r.ThumbnailURL = &thumb
	f.reels[id] = r
	return nil
}

func (f *fakeReels) UpdateStatus(_ context.Context, id uint64, status model.ReelStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reels[id]
	if !ok || f.vanishOnStatus {
		return repository.ErrNotFound
	}
	if f.statusErr != nil {
		return f.statusErr
	}
	r.Status = status
	f.reels[id] = r
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeReels) status(id uint64) model.ReelStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reels[id].Status
}

func (f *fakeReels) writes() []model.ReelStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ReelStatus(nil), f.statuses...)
}

type fakePlaces struct {
	mu     sync.Mutex
	nextID uint64
	byKey  map[string]model.Place
	// raceOnCreate stores a competing row just before the next Create so it
	// hits the unique key, as a writer in another process would.
	raceOnCreate bool
}

func newFakePlaces() *fakePlaces {
	return &fakePlaces{byKey: make(map[string]model.Place)}
}

func placeKey(userID uint64, ext string) string {
	return strconv.FormatUint(userID, 10) + "|" + ext
}

func (f *fakePlaces) FindByExternalID(_ context.Context, userID uint64, ext string) (model.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byKey[placeKey(userID, ext)]
	if !ok {
		return model.Place{}, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakePlaces) Create(_ context.Context, p *model.Place) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := placeKey(p.UserID, p.ExternalPlaceID)
	if f.raceOnCreate {
		f.raceOnCreate = false
		f.nextID++
		other := *p
		other.ID = f.nextID
		f.byKey[k] = other
	}
	if _, ok := f.byKey[k]; ok {
		return repository.ErrDuplicate
	}
	f.nextID++
	p.ID = f.nextID
	for i := range p.Images {
		p.Images[i].PlaceID = p.ID
		p.Images[i].SortOrder = i
	}
	f.byKey[k] = *p
	return nil
}

func (f *fakePlaces) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byKey)
}

type fakeLinks struct {
	mu    sync.Mutex
	links []model.ReelPlace
}

// Create keeps one link per (reel, place) like the unique key does.
func (f *fakeLinks) Create(_ context.Context, reelID, placeID uint64) (model.ReelPlace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rp := range f.links {
		if rp.ReelID == reelID && rp.PlaceID == placeID {
			return rp, nil
		}
	}
	rp := model.ReelPlace{ID: uint64(len(f.links) + 1), ReelID: reelID, PlaceID: placeID}
	f.links = append(f.links, rp)
	return rp, nil
}

func (f *fakeLinks) all() []model.ReelPlace {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ReelPlace(nil), f.links...)
}

type fakeFetcher struct {
	mu    sync.Mutex
	md    metadata.Metadata
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, reelURL string) (metadata.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return metadata.Metadata{}, f.err
	}
	md := f.md
	md.ReelURL = reelURL
	return md, nil
}

// fakeResolver answers by address. Addresses without an entry get
// places.ErrNoMatch.
type fakeResolver struct {
	mu      sync.Mutex
	byAddr  map[string]string
	errs    map[string]error
	names   []string
	entered chan struct{}
	release chan struct{}
}

func (f *fakeResolver) Resolve(_ context.Context, userID uint64, name, address string) (model.Place, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	if err, ok := f.errs[address]; ok {
		return model.Place{}, err
	}
	ext, ok := f.byAddr[address]
	if !ok {
		return model.Place{}, places.ErrNoMatch
	}
	return model.Place{
		UserID:          userID,
		ExternalPlaceID: ext,
		Name:            "place " + ext,
		Address:         address,
		Images: []model.PlaceImage{
			{ImageURL: ext + "/0"}, {ImageURL: ext + "/1"}, {ImageURL: ext + "/2"},
		},
	}, nil
}

func (f *fakeResolver) seenNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

type notification struct {
	userID, reelID uint64
	count          int
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) NotifyPlaceFound(_ context.Context, userID, reelID uint64, count int) (notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{userID, reelID, count})
	return notify.Result{UserID: userID, ReelID: reelID, Success: true, Message: notify.Message(count)}, nil
}

func (f *fakeNotifier) all() []notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notification(nil), f.sent...)
}
