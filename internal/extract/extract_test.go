package extract

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestAddresses(t *testing.T) {
	t.Parallel()

	x := New()
	tests := []struct {
		name    string
		caption string
		want    []string
	}{
		{
			name:    "address label",
			caption: "주소 : 서울특별시 마포구 연남동 239-10",
			want:    []string{"서울특별시 마포구 연남동 239-10"},
		},
		{
			name:    "too short",
			caption: "주소: 서울",
			want:    []string{},
		},
		{
			name:    "no address",
			caption: "오늘 날씨 너무 좋다! #일상",
			want:    []string{},
		},
		{
			name:    "hashtag stripped",
			caption: "위치: #서울특별시 강남구 테헤란로 123",
			want:    []string{"서울특별시 강남구 테헤란로 123"},
		},
		{
			name:    "fullwidth colon",
			caption: "주소：서울특별시 종로구 삼청로 22",
			want:    []string{"서울특별시 종로구 삼청로 22"},
		},
		{
			name:    "label and pin",
			caption: "주소: 서울특별시 마포구 연남동 239-10\n📍 부산광역시 해운대구 우동 1408",
			want:    []string{"서울특별시 마포구 연남동 239-10", "부산광역시 해운대구 우동 1408"},
		},
		{
			name:    "blank",
			caption: "   ",
			want:    []string{},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := x.Addresses(tc.caption)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Addresses(%q) = %q, want %q", tc.caption, got, tc.want)
			}
		})
	}
}

func TestAddressesInvariants(t *testing.T) {
	t.Parallel()

	x := New()
	captions := []string{
		"주소: 서울특별시 마포구 연남동 239-10\n위치: 서울특별시 마포구 연남동 239-10",
		"📍 #성수동   카페거리 @서울특별시 성동구 성수동 12-3",
		"@강남구 역삼동 123-4 근처\n서울특별시 강남구 역삼동 123-4",
		"📍 뚝섬한강공원 눈썰매장\n■ 서울 광진구 자양동 112",
	}
	for _, caption := range captions {
		got := x.Addresses(caption)
		seen := map[string]bool{}
		for _, a := range got {
			if seen[a] {
				t.Fatalf("duplicate %q in %q", a, got)
			}
			seen[a] = true
			if utf8.RuneCountInString(a) < 5 {
				t.Fatalf("candidate %q shorter than 5 characters", a)
			}
			if strings.ContainsAny(a, "#@") {
				t.Fatalf("candidate %q still has markers", a)
			}
			if CleanAddress(a) != a {
				t.Fatalf("cleaning is not idempotent for %q", a)
			}
		}
	}
}

func TestCleanAddress(t *testing.T) {
	t.Parallel()

	in := "  #서울특별시\t\t마포구  @연남동\n239 "
	want := "서울특별시 마포구 연남동 239"
	if got := CleanAddress(in); got != want {
		t.Fatalf("CleanAddress = %q, want %q", got, want)
	}
	if got := CleanAddress(want); got != want {
		t.Fatalf("second pass changed %q to %q", want, got)
	}
}

func TestPlaceName(t *testing.T) {
	t.Parallel()

	x := New()
	tests := []struct {
		name    string
		caption string
		want    string
		ok      bool
	}{
		{name: "store label", caption: "매장명: 연남 오브젝트, 2층", want: "연남 오브젝트", ok: true},
		{name: "category prefix", caption: "오늘은 카페 어니언 성수\n너무 좋았다", want: "어니언 성수", ok: true},
		{name: "quoted", caption: "요즘 핫한 “소금빵 연구소” 다녀옴", want: "소금빵 연구소", ok: true},
		{name: "pin", caption: "📍 런던베이글뮤지엄\n웨이팅 필수", want: "런던베이글뮤지엄", ok: true},
		{name: "parenthesis", caption: "새로 생긴 곳 (Blue Bottle) 방문", want: "Blue Bottle", ok: true},
		{name: "blacklisted falls through", caption: "맛집 추천\n📍 을지로 노가리골목", want: "을지로 노가리골목", ok: true},
		{name: "case insensitive blacklist", caption: "카페 CAFE", ok: false},
		{name: "nothing", caption: "그냥 산책했다", ok: false},
		{name: "empty", caption: "", ok: false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := x.PlaceName(tc.caption)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("PlaceName(%q) = (%q, %v), want (%q, %v)", tc.caption, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestBlacklistIgnoresCase(t *testing.T) {
	t.Parallel()

	x := New()
	for _, w := range []string{"Cafe", "CAFE", "cafe", "Today", "오늘"} {
		if !x.IsBlacklisted(w) {
			t.Fatalf("%q should be blacklisted", w)
		}
	}
	if x.IsBlacklisted("어니언") {
		t.Fatalf("어니언 should not be blacklisted")
	}
}

func TestNameNear(t *testing.T) {
	t.Parallel()

	x := New()
	caption := "성수 카츠바 서울특별시 성동구 성수동 12-3"
	name, ok := x.NameNear(caption, "서울특별시 성동구 성수동 12-3")
	if !ok || name != "카츠바" {
		t.Fatalf("NameNear = (%q, %v), want (카츠바, true)", name, ok)
	}

	// The label word before the address is generic and must be rejected.
	if name, ok := x.NameNear("주소: 서울특별시 성동구 성수동 12-3", "서울특별시 성동구 성수동 12-3"); ok {
		t.Fatalf("NameNear picked label word %q", name)
	}

	if _, ok := x.NameNear("서울특별시 성동구 성수동 12-3", "서울특별시 성동구 성수동 12-3"); ok {
		t.Fatalf("NameNear found a name with no preceding text")
	}
}

func TestNameHintFallsBackToProximity(t *testing.T) {
	t.Parallel()

	x := New()
	caption := "주말 나들이 소풍식당: 서울특별시 마포구 연남동 239-10"
	addrs := x.Addresses(caption)
	if len(addrs) == 0 {
		t.Fatalf("expected at least one address")
	}
	name, ok := x.NameHint(caption, addrs)
	if !ok || name != "소풍식당" {
		t.Fatalf("NameHint = (%q, %v), want (소풍식당, true)", name, ok)
	}
}
