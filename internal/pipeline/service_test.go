package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/reelsplace/internal/lock"
	"github.com/iliyamo/reelsplace/internal/logging"
	"github.com/iliyamo/reelsplace/internal/metadata"
	"github.com/iliyamo/reelsplace/internal/model"
	"github.com/iliyamo/reelsplace/internal/places"
)

const (
	yeonnam           = "서울특별시 마포구 연남동 239-10"
	haeundae          = "부산광역시 해운대구 우동 1408"
	twoAddressCaption = "주소: " + yeonnam + "\n📍 " + haeundae
)

type harness struct {
	reels    *fakeReels
	places   *fakePlaces
	links    *fakeLinks
	fetcher  *fakeFetcher
	resolver *fakeResolver
	notifier *fakeNotifier
	locker   *lock.LocalLocker
	svc      *Service
}

func newHarness(t *testing.T, reels ...model.Reel) *harness {
	t.Helper()
	h := &harness{
		reels:    newFakeReels(reels...),
		places:   newFakePlaces(),
		links:    &fakeLinks{},
		fetcher:  &fakeFetcher{},
		resolver: &fakeResolver{byAddr: map[string]string{}, errs: map[string]error{}},
		notifier: &fakeNotifier{},
		locker:   lock.NewLocalLocker(),
	}
	h.svc = NewService(Deps{
		Reels:              h.reels,
		Places:             h.places,
		Links:              h.links,
		Fetcher:            h.fetcher,
		Resolver:           h.resolver,
		Notifier:           h.notifier,
		Locker:             h.locker,
		AddressConcurrency: 3,
		Log:                logging.Discard(),
	})
	return h
}

func reelWithCaption(id, userID uint64, caption string) model.Reel {
	return model.Reel{
		ID:      id,
		UserID:  userID,
		ReelURL: "https://www.instagram.com/reel/r" + string(rune('a'+id)),
		Caption: &caption,
		Status:  model.StatusProcessing,
	}
}

func TestRunPlaceFoundNotifiesWithCount(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, "주소 : "+yeonnam))
	h.resolver.byAddr[yeonnam] = "ext-1"

	res, err := h.svc.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != model.StatusPlaceFound || h.reels.status(1) != model.StatusPlaceFound {
		t.Fatalf("status = %s / stored %s", res.Status, h.reels.status(1))
	}
	if !reflect.DeepEqual(res.Addresses, []string{yeonnam}) {
		t.Fatalf("addresses = %q", res.Addresses)
	}
	if h.places.count() != 1 || len(h.links.all()) != 1 {
		t.Fatalf("places=%d links=%d, want 1/1", h.places.count(), len(h.links.all()))
	}
	sent := h.notifier.all()
	if len(sent) != 1 || sent[0] != (notification{userID: 10, reelID: 1, count: 1}) {
		t.Fatalf("notifications = %+v", sent)
	}
	if res.Notification == nil || !res.Notification.Success {
		t.Fatalf("notification result = %+v", res.Notification)
	}
	if h.fetcher.calls != 0 {
		t.Fatalf("metadata fetched although a caption was stored")
	}
}

func TestRunNoAddressSkipsResolution(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, "오늘 날씨 너무 좋다! #일상"))
	res, err := h.svc.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != model.StatusNoAddress {
		t.Fatalf("status = %s, want NO_ADDRESS", res.Status)
	}
	if len(h.resolver.seenNames()) != 0 || len(h.notifier.all()) != 0 {
		t.Fatalf("resolver or notifier called for a caption without addresses")
	}
}

func TestRunPlaceNotFoundDoesNotNotify(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, twoAddressCaption))
	h.resolver.errs[haeundae] = errors.Join(places.ErrNoMatch, places.ErrUpstreamUnavailable)

	res, err := h.svc.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != model.StatusPlaceNotFound {
		t.Fatalf("status = %s, want PLACE_NOT_FOUND", res.Status)
	}
	want := []FailedAddress{
		{Address: yeonnam, Reason: ReasonNoMatch},
		{Address: haeundae, Reason: ReasonUpstreamUnavailable},
	}
	if !reflect.DeepEqual(res.FailedAddresses, want) {
		t.Fatalf("failed = %+v, want %+v", res.FailedAddresses, want)
	}
	if len(h.notifier.all()) != 0 {
		t.Fatalf("notified on PLACE_NOT_FOUND")
	}
}

func TestCreatePlacesIsolatesFailuresAndKeepsOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, twoAddressCaption))
	h.resolver.byAddr[haeundae] = "ext-busan"

	res, err := h.svc.CreatePlaces(context.Background(), 1, []string{yeonnam, " " + haeundae + " ", ""})
	if err != nil {
		t.Fatalf("CreatePlaces: %v", err)
	}
	if res.Status != model.StatusPlaceFound {
		t.Fatalf("status = %s", res.Status)
	}
	if len(res.Places) != 1 || res.Places[0].Address != haeundae {
		t.Fatalf("places = %+v", res.Places)
	}
	if len(res.FailedAddresses) != 1 || res.FailedAddresses[0].Address != yeonnam {
		t.Fatalf("failed = %+v", res.FailedAddresses)
	}
	imgs := res.Places[0].Place.Images
	for i, img := range imgs {
		if img.SortOrder != i || img.ImageURL != "ext-busan/"+string(rune('0'+i)) {
			t.Fatalf("image %d = %+v", i, img)
		}
	}
	// CreatePlaces alone never notifies.
	if len(h.notifier.all()) != 0 {
		t.Fatalf("CreatePlaces notified")
	}
}

func TestCreatePlacesSharesOneNameHint(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, "매장명: 연남 오브젝트\n"+twoAddressCaption))
	if _, err := h.svc.CreatePlaces(context.Background(), 1, []string{yeonnam, haeundae}); err != nil {
		t.Fatalf("CreatePlaces: %v", err)
	}
	names := h.resolver.seenNames()
	if len(names) != 2 || names[0] != names[1] || names[0] == "" {
		t.Fatalf("resolver names = %q, want one shared non-empty hint", names)
	}
}

func TestCreatePlacesEmptyListIsNoAddress(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, "x"))
	res, err := h.svc.CreatePlaces(context.Background(), 1, []string{" ", ""})
	if err != nil {
		t.Fatalf("CreatePlaces: %v", err)
	}
	if res.Status != model.StatusNoAddress || h.reels.status(1) != model.StatusNoAddress {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestCreatePlacesDeduplicatesWithinAndAcrossRuns(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, twoAddressCaption), reelWithCaption(2, 10, twoAddressCaption))
	h.resolver.byAddr[yeonnam] = "same"
	h.resolver.byAddr[haeundae] = "same"

	first, err := h.svc.CreatePlaces(context.Background(), 1, []string{yeonnam, haeundae})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(first.Places) != 2 || first.Places[0].Place.ID != first.Places[1].Place.ID {
		t.Fatalf("within-run places = %+v", first.Places)
	}
	reused := 0
	for _, p := range first.Places {
		if p.Reused {
			reused++
		}
	}
	if reused != 1 {
		t.Fatalf("reused = %d, want exactly one", reused)
	}

	second, err := h.svc.CreatePlaces(context.Background(), 2, []string{yeonnam})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.Places[0].Reused || second.Places[0].Place.ID != first.Places[0].Place.ID {
		t.Fatalf("across-run place = %+v", second.Places[0])
	}
	if h.places.count() != 1 {
		t.Fatalf("stored places = %d, want 1", h.places.count())
	}
	want := []model.ReelPlace{
		{ID: 1, ReelID: 1, PlaceID: first.Places[0].Place.ID},
		{ID: 2, ReelID: 2, PlaceID: first.Places[0].Place.ID},
	}
	if got := h.links.all(); !reflect.DeepEqual(got, want) {
		t.Fatalf("links = %+v, want one per (reel, place)", got)
	}
}

func TestRunCountsDistinctPlacesAndLinksOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, twoAddressCaption))
	h.resolver.byAddr[yeonnam] = "same"
	h.resolver.byAddr[haeundae] = "same"

	for run := 1; run <= 2; run++ {
		res, err := h.svc.Run(context.Background(), 1)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if res.Status != model.StatusPlaceFound || len(res.Places) != 2 {
			t.Fatalf("run %d result = %+v", run, res)
		}
		if n := len(h.links.all()); n != 1 {
			t.Fatalf("run %d: links = %d, want 1", run, n)
		}
	}
	sent := h.notifier.all()
	if len(sent) != 2 || sent[0].count != 1 || sent[1].count != 1 {
		t.Fatalf("notifications = %+v, want count 1 per run", sent)
	}
}

func TestCreatePlacesStatusWriteFailureLeavesStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, "주소 : "+yeonnam))
	h.resolver.byAddr[yeonnam] = "ext-1"
	h.reels.statusErr = errors.New("connection reset")

	_, err := h.svc.CreatePlaces(context.Background(), 1, []string{yeonnam})
	if KindOf(err) != KindInternal {
		t.Fatalf("err = %v, want internal", err)
	}
	if len(h.reels.writes()) != 0 || h.reels.status(1) != model.StatusProcessing {
		t.Fatalf("writes = %v status = %s, want no write", h.reels.writes(), h.reels.status(1))
	}
}

func TestCreatePlacesFailureReasons(t *testing.T) {
	t.Parallel()

	const (
		slow   = "서울특별시 종로구 삼청로 22"
		broken = "서울특별시 강남구 테헤란로 123"
	)
	h := newHarness(t, reelWithCaption(1, 10, "caption"))
	h.resolver.errs[slow] = context.DeadlineExceeded
	h.resolver.errs[broken] = errors.New("decode response")
	h.resolver.errs[haeundae] = places.ErrUpstreamUnavailable

	res, err := h.svc.CreatePlaces(context.Background(), 1, []string{slow, broken, haeundae, yeonnam})
	if err != nil {
		t.Fatalf("CreatePlaces: %v", err)
	}
	want := []FailedAddress{
		{Address: slow, Reason: ReasonUpstreamUnavailable},
		{Address: broken, Reason: ReasonResolveError},
		{Address: haeundae, Reason: ReasonUpstreamUnavailable},
		{Address: yeonnam, Reason: ReasonNoMatch},
	}
	if !reflect.DeepEqual(res.FailedAddresses, want) {
		t.Fatalf("failed = %+v", res.FailedAddresses)
	}
}

func TestCreatePlacesRecoversFromUniqueKeyRace(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, "x"))
	h.resolver.byAddr[yeonnam] = "raced"
	h.places.raceOnCreate = true

	res, err := h.svc.CreatePlaces(context.Background(), 1, []string{yeonnam})
	if err != nil {
		t.Fatalf("CreatePlaces: %v", err)
	}
	if res.Status != model.StatusPlaceFound || !res.Places[0].Reused {
		t.Fatalf("result = %+v", res)
	}
	if h.places.count() != 1 {
		t.Fatalf("stored places = %d", h.places.count())
	}
}

func TestRunFetchesMetadataWhenCaptionMissing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.Reel{ID: 1, UserID: 10, ReelURL: "https://www.instagram.com/reel/abc", Status: model.StatusProcessing})
	h.fetcher.md = metadata.Metadata{Caption: "주소 : " + yeonnam, ThumbnailURL: "thumb"}
	h.resolver.byAddr[yeonnam] = "ext-1"

	res, err := h.svc.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.fetcher.calls != 1 || res.Status != model.StatusPlaceFound {
		t.Fatalf("fetch calls = %d, status = %s", h.fetcher.calls, res.Status)
	}
}

func TestRunBlankCaptionIsInvalidInput(t *testing.T) {
	t.Parallel()

	// No caption stored and the fetched one is empty.
	h := newHarness(t,
		model.Reel{ID: 1, UserID: 10, ReelURL: "u", Status: model.StatusProcessing},
		reelWithCaption(2, 10, "   "))
	for _, id := range []uint64{1, 2} {
		_, err := h.svc.Run(context.Background(), id)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("reel %d: err = %v, want invalid input", id, err)
		}
		if h.reels.status(id) != model.StatusProcessing {
			t.Fatalf("reel %d: status = %s", id, h.reels.status(id))
		}
	}
	if len(h.reels.writes()) != 0 {
		t.Fatalf("status writes = %v, want none", h.reels.writes())
	}
}

func TestMetadataFailureMarksFailed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, model.Reel{ID: 1, UserID: 10, ReelURL: "u", Status: model.StatusProcessing})
	h.fetcher.err = errors.New("429 Too Many Requests")

	_, err := h.svc.Run(context.Background(), 1)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("err = %v, want internal failure", err)
	}
	if h.reels.status(1) != model.StatusFailed {
		t.Fatalf("status = %s, want FAILED", h.reels.status(1))
	}
}

func TestExtractAddresses(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		reelWithCaption(1, 10, "주소 : "+yeonnam),
		reelWithCaption(2, 10, "   "),
		reelWithCaption(3, 10, "그냥 산책했다"),
	)
	ctx := context.Background()

	res, err := h.svc.ExtractAddresses(ctx, 1)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !reflect.DeepEqual(res.Addresses, []string{yeonnam}) || res.PlaceName != nil {
		t.Fatalf("result = %+v", res)
	}
	if h.reels.status(1) != model.StatusProcessing {
		t.Fatalf("status changed to %s", h.reels.status(1))
	}

	if _, err := h.svc.ExtractAddresses(ctx, 2); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank caption err = %v, want invalid input", err)
	}
	if len(h.reels.writes()) != 0 {
		t.Fatalf("blank caption wrote a status")
	}

	if _, err := h.svc.ExtractAddresses(ctx, 3); err != nil {
		t.Fatalf("extract no address: %v", err)
	}
	if h.reels.status(3) != model.StatusNoAddress {
		t.Fatalf("status = %s, want NO_ADDRESS", h.reels.status(3))
	}

	if _, err := h.svc.ExtractAddresses(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing reel err = %v, want not found", err)
	}
}

func TestRunRejectsConcurrentTrigger(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, "주소 : "+yeonnam))
	h.resolver.byAddr[yeonnam] = "ext-1"
	h.resolver.entered = make(chan struct{}, 1)
	h.resolver.release = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := h.svc.Run(context.Background(), 1); err != nil {
			t.Errorf("first run: %v", err)
		}
	}()

	select {
	case <-h.resolver.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("first run never reached the resolver")
	}
	if _, err := h.svc.Run(context.Background(), 1); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second run err = %v, want ErrAlreadyRunning", err)
	}
	if !errors.Is(ErrAlreadyRunning, ErrConflict) {
		t.Fatalf("ErrAlreadyRunning is not a conflict")
	}

	close(h.resolver.release)
	wg.Wait()
	if got := len(h.notifier.all()); got != 1 {
		t.Fatalf("notifications = %d, want 1", got)
	}
}

func TestRunReelDeletedMidRunStopsWithoutFailedWrite(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, "주소 : "+yeonnam))
	h.resolver.byAddr[yeonnam] = "ext-1"
	h.reels.vanishOnStatus = true

	_, err := h.svc.Run(context.Background(), 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if len(h.reels.writes()) != 0 {
		t.Fatalf("status writes = %v, want none", h.reels.writes())
	}
	if len(h.notifier.all()) != 0 {
		t.Fatalf("notified after the reel vanished")
	}
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t, reelWithCaption(1, 10, "x"))
	ctx := context.Background()

	reel, err := h.svc.UpdateStatus(ctx, 1, model.StatusFailed)
	if err != nil || reel.Status != model.StatusFailed {
		t.Fatalf("UpdateStatus = %+v, %v", reel, err)
	}
	if _, err := h.svc.UpdateStatus(ctx, 1, "DONE"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown status err = %v", err)
	}
	if _, err := h.svc.UpdateStatus(ctx, 2, model.StatusProcessing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing reel err = %v", err)
	}
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	err := newError(KindNotFound, "run", errors.New("reel 3"))
	if !errors.Is(err, ErrNotFound) || errors.Is(err, ErrInternal) {
		t.Fatalf("kind matching broken for %v", err)
	}
	if KindOf(err) != KindNotFound || KindOf(errors.New("x")) != KindInternal {
		t.Fatalf("KindOf mismatch")
	}
	if err.Error() != "run: not found: reel 3" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
