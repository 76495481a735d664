package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/pitch/internal/adapters/kvstore"
	"github.com/okian/pitch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// countingStorage counts removals per key and can hold the first removal
// until released.
type countingStorage struct {
	*kvstore.Memory

	mu       sync.Mutex
	removes  map[string]int
	hold     chan struct{}
	entered  chan struct{}
	once     sync.Once
	failRead error
	failPut  error
}

func newCountingStorage() *countingStorage {
	return &countingStorage{Memory: kvstore.NewMemory(), removes: make(map[string]int)}
}

func (s *countingStorage) Read(ctx context.Context, key string) (string, bool, error) {
	if s.failRead != nil {
		return "", false, s.failRead
	}
	return s.Memory.Read(ctx, key)
}

func (s *countingStorage) Write(ctx context.Context, key, value string) error {
	if s.failPut != nil {
		return s.failPut
	}
	return s.Memory.Write(ctx, key, value)
}

func (s *countingStorage) Remove(ctx context.Context, key string) error {
	if s.hold != nil {
		s.once.Do(func() {
			close(s.entered)
			<-s.hold
		})
	}
	s.mu.Lock()
	s.removes[key]++
	s.mu.Unlock()
	return s.Memory.Remove(ctx, key)
}

func (s *countingStorage) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removes[key]
}

func TestTTL(t *testing.T) {
	Convey("Given a cache with a fake clock", t, func() {
		ctx := context.Background()
		clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
		c := New(kvstore.NewMemory(), WithClock(clock.Now))
		key := K(Friends, "")

		c.Set(ctx, key, []string{"a", "b"})

		Convey("Get right after Set returns the payload for any positive ttl", func() {
			for _, ttl := range []time.Duration{time.Millisecond, time.Second, time.Hour} {
				var got []string
				So(c.Get(ctx, key, ttl, &got), ShouldBeTrue)
				So(got, ShouldResemble, []string{"a", "b"})
			}
		})

		Convey("An entry is valid strictly before its ttl elapses", func() {
			clock.Advance(999 * time.Millisecond)
			So(c.Get(ctx, key, time.Second, nil), ShouldBeTrue)
			clock.Advance(time.Millisecond)
			So(c.Get(ctx, key, time.Second, nil), ShouldBeFalse)
		})

		Convey("Expired entries are reported absent but not deleted", func() {
			clock.Advance(time.Hour)
			So(c.Get(ctx, key, time.Minute, nil), ShouldBeFalse)
			So(c.Get(ctx, key, 2*time.Hour, nil), ShouldBeTrue)
		})

		Convey("Lookup uses the category ttl", func() {
			So(c.TTL(Friends), ShouldEqual, 10*time.Minute)
			clock.Advance(9 * time.Minute)
			So(c.Lookup(ctx, key, nil), ShouldBeTrue)
			clock.Advance(2 * time.Minute)
			So(c.Lookup(ctx, key, nil), ShouldBeFalse)
		})

		Convey("A missing key is a miss", func() {
			So(c.Get(ctx, K(Groups, "nope"), time.Hour, nil), ShouldBeFalse)
		})

		Convey("Clear removes one entry", func() {
			c.Clear(ctx, key)
			So(c.Get(ctx, key, time.Hour, nil), ShouldBeFalse)
			c.Clear(ctx, key)
		})
	})
}

func TestTTLOverrides(t *testing.T) {
	c := New(kvstore.NewMemory(),
		WithTTL(Groups, time.Second),
		WithTTLs(map[string]time.Duration{"FRIENDS": 3 * time.Second, "ACTIVITIES": 0}),
	)
	if got := c.TTL(Groups); got != time.Second {
		t.Errorf("GROUPS ttl = %v", got)
	}
	if got := c.TTL(Friends); got != 3*time.Second {
		t.Errorf("FRIENDS ttl = %v", got)
	}
	if got := c.TTL(Activities); got != 30*time.Minute {
		t.Errorf("ACTIVITIES ttl should keep its default, got %v", got)
	}
	if got := c.TTL(Category("CUSTOM")); got != fallbackTTL {
		t.Errorf("unknown category ttl = %v", got)
	}
}

func TestGroupInvalidation(t *testing.T) {
	Convey("Given entries in every category", t, func() {
		ctx := context.Background()
		store := kvstore.NewMemory()
		c := New(store)
		for _, cat := range Categories() {
			c.Set(ctx, K(cat, ""), "base")
			c.Set(ctx, K(cat, "USER_x"), "named")
		}

		Convey("Clearing friendsChanged empties exactly its categories", func() {
			So(c.ClearGroup(ctx, FriendsChanged), ShouldBeNil)

			cleared := map[Category]bool{}
			cats, _ := GroupCategories(FriendsChanged)
			for _, cat := range cats {
				cleared[cat] = true
			}
			for _, cat := range Categories() {
				So(c.Get(ctx, K(cat, ""), time.Hour, nil), ShouldEqual, !cleared[cat])
				So(c.Get(ctx, K(cat, "USER_x"), time.Hour, nil), ShouldEqual, !cleared[cat])
			}
		})

		Convey("Clearing an already-empty group is a no-op", func() {
			So(c.ClearGroup(ctx, GroupsChanged), ShouldBeNil)
			before := store.Len()
			So(c.ClearGroup(ctx, GroupsChanged), ShouldBeNil)
			So(store.Len(), ShouldEqual, before)
		})

		Convey("Names written by a previous process are found through the backend", func() {
			other := New(store)
			So(other.ClearGroup(ctx, UsersChanged), ShouldBeNil)
			So(c.Get(ctx, K(UserProfiles, "USER_x"), time.Hour, nil), ShouldBeFalse)
		})

		Convey("An unknown group is rejected", func() {
			err := c.ClearGroup(ctx, Group("everything"))
			So(errors.Is(err, ErrUnknownGroup), ShouldBeTrue)
		})

		Convey("ClearAll leaves nothing behind", func() {
			c.Set(ctx, K(Category("CUSTOM"), "x"), 1)
			c.ClearAll(ctx)
			So(store.Len(), ShouldEqual, 0)
		})
	})
}

func TestClearGroupSingleFlight(t *testing.T) {
	Convey("Given a clear that is held inside the storage", t, func() {
		ctx := context.Background()
		store := newCountingStorage()
		c := New(store)
		for _, cat := range []Category{Friends, SimilarUsers, FriendRequests, AllUsersBasic} {
			c.Set(ctx, K(cat, ""), 1)
			c.Set(ctx, K(cat, "page"), 1)
		}
		store.hold = make(chan struct{})
		store.entered = make(chan struct{})

		Convey("A second concurrent call for the same group joins the first pass", func() {
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = c.ClearGroup(ctx, FriendsChanged)
			}()
			<-store.entered
			go func() {
				defer wg.Done()
				_ = c.ClearGroup(ctx, FriendsChanged)
			}()
			time.Sleep(50 * time.Millisecond)
			close(store.hold)
			wg.Wait()

			for _, cat := range []Category{Friends, SimilarUsers, FriendRequests, AllUsersBasic} {
				So(store.count(K(cat, "").String()), ShouldEqual, 1)
				So(store.count(K(cat, "page").String()), ShouldEqual, 1)
				So(c.Get(ctx, K(cat, "page"), time.Hour, nil), ShouldBeFalse)
			}
		})

		Convey("A concurrent call for another group is not dropped", func() {
			c.Set(ctx, K(Groups, ""), 1)
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = c.ClearGroup(ctx, FriendsChanged)
			}()
			<-store.entered
			go func() {
				defer wg.Done()
				_ = c.ClearGroup(ctx, GroupsChanged)
			}()
			time.Sleep(20 * time.Millisecond)
			close(store.hold)
			wg.Wait()

			So(c.Get(ctx, K(Groups, ""), time.Hour, nil), ShouldBeFalse)
			So(store.count(K(Groups, "").String()), ShouldEqual, 1)
		})

		Convey("A write during a shared pass is left for the next call", func() {
			late := K(Friends, "late")
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = c.ClearGroup(ctx, FriendsChanged)
			}()
			<-store.entered
			c.Set(ctx, late, 1)
			go func() {
				defer wg.Done()
				_ = c.ClearGroup(ctx, FriendsChanged)
			}()
			time.Sleep(50 * time.Millisecond)
			close(store.hold)
			wg.Wait()

			So(c.Get(ctx, late, time.Hour, nil), ShouldBeTrue)
			So(c.ClearGroup(ctx, FriendsChanged), ShouldBeNil)
			So(c.Get(ctx, late, time.Hour, nil), ShouldBeFalse)
			So(store.count(late.String()), ShouldEqual, 1)
		})
	})
}

func TestFaultsAreAbsorbed(t *testing.T) {
	Convey("Given a storage that fails", t, func() {
		ctx := context.Background()
		store := newCountingStorage()
		c := New(store)

		Convey("A failing write is a no-op", func() {
			store.failPut = errors.New("quota exceeded")
			So(func() { c.Set(ctx, K(Friends, ""), 1) }, ShouldNotPanic)
			store.failPut = nil
			So(c.Get(ctx, K(Friends, ""), time.Hour, nil), ShouldBeFalse)
		})

		Convey("A failing read is a miss", func() {
			c.Set(ctx, K(Friends, ""), 1)
			store.failRead = errors.New("disk gone")
			So(c.Get(ctx, K(Friends, ""), time.Hour, nil), ShouldBeFalse)
		})

		Convey("An unserializable payload is a no-op", func() {
			c.Set(ctx, K(Friends, ""), make(chan int))
			So(c.Get(ctx, K(Friends, ""), time.Hour, nil), ShouldBeFalse)
		})

		Convey("A corrupt entry is a miss", func() {
			_ = store.Memory.Write(ctx, K(Friends, "").String(), "{not json")
			So(c.Get(ctx, K(Friends, ""), time.Hour, nil), ShouldBeFalse)
		})

		Convey("A payload of the wrong shape is a miss", func() {
			c.Set(ctx, K(Friends, ""), "text")
			var n int
			So(c.Get(ctx, K(Friends, ""), time.Hour, &n), ShouldBeFalse)
		})
	})
}

func TestKeyString(t *testing.T) {
	if got := K(Friends, "").String(); got != "cache_FRIENDS" {
		t.Errorf("base key = %q", got)
	}
	if got := K(UserProfiles, "USER_1").String(); got != "cache_USER_PROFILES:USER_1" {
		t.Errorf("named key = %q", got)
	}
}
