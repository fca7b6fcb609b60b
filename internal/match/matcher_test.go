package match

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/solatis/busprobe/internal/scenario"
	"github.com/solatis/busprobe/internal/types"
)

// sliceStore is a minimal identity-removal store for matcher tests.
type sliceStore struct {
	mu   sync.Mutex
	docs []*types.Document
}

func (s *sliceStore) Remove(doc *types.Document) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if d == doc {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			return true
		}
	}
	return false
}

func (s *sliceStore) snapshot() []*types.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Document(nil), s.docs...)
}

func newDoc(t *testing.T, seq uint64, data string) *types.Document {
	t.Helper()
	return &types.Document{Seq: seq, Body: mustDecode(t, data)}
}

func mustFilterSet(t *testing.T, pairs ...string) *FilterSet {
	t.Helper()
	fs := NewFilterSet()
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := fs.Add(pairs[i], pairs[i+1]); err != nil {
			t.Fatalf("Add(%s) error = %v", pairs[i], err)
		}
	}
	return fs
}

func TestEvaluate_FullAndPartial(t *testing.T) {
	fs := mustFilterSet(t,
		"Message.status", "OPEN",
		"Message.id", "1%",
		"Headers.source", "%core%",
	)

	full := newDoc(t, 1, `{"Message":{"status":"OPEN","id":10},"Headers":{"source":"svc-core-1"}}`)
	result := Evaluate(full, fs)
	if !result.IsFullMatch() {
		t.Fatalf("IsFullMatch() = false, unmatched %+v", result.Unmatched)
	}
	if result.MatchedCount() != 3 || result.TotalFilterCount() != 3 {
		t.Errorf("MatchedCount() = %d, TotalFilterCount() = %d, want 3/3", result.MatchedCount(), result.TotalFilterCount())
	}

	partial := newDoc(t, 2, `{"Message":{"status":"CLOSED","id":10},"Headers":{"source":"svc-core-1"}}`)
	result = Evaluate(partial, fs)
	if result.IsFullMatch() {
		t.Fatalf("IsFullMatch() = true, want false")
	}
	if len(result.Unmatched) != 1 {
		t.Fatalf("len(Unmatched) = %d, want 1", len(result.Unmatched))
	}
	mm := result.Unmatched[0].Mismatch
	if mm == nil || mm.Expected != "OPEN" || mm.Actual != "CLOSED" {
		t.Errorf("Mismatch = %+v, want Expected=OPEN Actual=CLOSED", mm)
	}
	if result.MatchedCount()+len(result.Unmatched) != fs.Len() {
		t.Errorf("matched+unmatched != filter count")
	}
}

func TestEvaluate_MissingFieldDetail(t *testing.T) {
	fs := mustFilterSet(t, "Message.absent", "x")
	result := Evaluate(newDoc(t, 1, `{"Message":{}}`), fs)

	if len(result.Unmatched) != 1 {
		t.Fatalf("len(Unmatched) = %d, want 1", len(result.Unmatched))
	}
	want := "Node 'Message.absent' not found"
	if got := result.Unmatched[0].Mismatch.Actual; got != want {
		t.Errorf("Actual = %q, want %q", got, want)
	}
}

// Containers compare as compact JSON, so wildcards can reach nested values.
func TestEvaluate_ContainerValues(t *testing.T) {
	doc := newDoc(t, 1, `{"Message":{"order":{"k":"v"},"tags":["a","b"]}}`)

	tests := []struct {
		path, pattern string
		want          bool
	}{
		{"Message.order", "%k%", true},
		{"Message.order", `{"k":"v"}`, true},
		{"Message.order", "", false},
		{"Message.tags", `%"b"%`, true},
		{"Message.tags", "a", false},
	}
	for _, tt := range tests {
		t.Run(tt.path+" "+tt.pattern, func(t *testing.T) {
			got := Evaluate(doc, mustFilterSet(t, tt.path, tt.pattern)).IsFullMatch()
			if got != tt.want {
				t.Errorf("Evaluate(%s = %s) full match = %v, want %v", tt.path, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestWithMismatch_DoesNotMutate(t *testing.T) {
	f, err := NewFilter("a", "b")
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	derived := f.WithMismatch("c")
	if f.Mismatch != nil {
		t.Errorf("original filter gained mismatch detail")
	}
	if derived.Mismatch == nil || derived.Mismatch.Expected != "b" || derived.Mismatch.Actual != "c" {
		t.Errorf("derived.Mismatch = %+v", derived.Mismatch)
	}
}

func TestFindFullMatch_RemovesExactlyOnce(t *testing.T) {
	store := &sliceStore{docs: []*types.Document{
		newDoc(t, 1, `{"status":"OPEN","id":10}`),
		newDoc(t, 2, `{"status":"CLOSED","id":11}`),
		newDoc(t, 3, `{"status":"PENDING","id":12}`),
	}}
	fs := mustFilterSet(t, "status", "CLOSED")

	doc, err := FindFullMatch(store.snapshot(), fs, store)
	if err != nil {
		t.Fatalf("FindFullMatch() error = %v", err)
	}
	if doc == nil || doc.Seq != 2 {
		t.Fatalf("FindFullMatch() = %+v, want seq 2", doc)
	}
	if n := len(store.snapshot()); n != 2 {
		t.Errorf("store size = %d, want 2", n)
	}

	doc, err = FindFullMatch(store.snapshot(), fs, store)
	if err != nil || doc != nil {
		t.Errorf("repeat FindFullMatch() = %v, %v, want nil, nil", doc, err)
	}
}

func TestFindFullMatch_RemovesByIdentity(t *testing.T) {
	// Two value-equal documents; only the matched instance may be removed
	a := newDoc(t, 1, `{"status":"CLOSED"}`)
	b := newDoc(t, 2, `{"status":"CLOSED"}`)
	store := &sliceStore{docs: []*types.Document{a, b}}
	fs := mustFilterSet(t, "status", "CLOSED")

	if _, err := FindFullMatch([]*types.Document{b}, fs, store); err != nil {
		t.Fatalf("FindFullMatch() error = %v", err)
	}
	remaining := store.snapshot()
	if len(remaining) != 1 || remaining[0] != a {
		t.Errorf("wrong document removed, remaining = %+v", remaining)
	}
}

func TestFindFullMatch_Ambiguous(t *testing.T) {
	store := &sliceStore{docs: []*types.Document{
		newDoc(t, 1, `{"status":"CLOSED"}`),
		newDoc(t, 2, `{"status":"CLOSED"}`),
	}}
	fs := mustFilterSet(t, "status", "CLOSED")

	_, err := FindFullMatch(store.snapshot(), fs, store)
	if !errors.Is(err, types.ErrAmbiguousMatch) {
		t.Fatalf("FindFullMatch() error = %v, want ErrAmbiguousMatch", err)
	}
	var amb *AmbiguousMatchError
	if !errors.As(err, &amb) || amb.Count != 2 {
		t.Fatalf("error = %#v, want AmbiguousMatchError with Count 2", err)
	}
	if !strings.Contains(err.Error(), "(2 found)") {
		t.Errorf("Error() = %q, want count in message", err.Error())
	}
	if len(store.snapshot()) != 2 {
		t.Errorf("ambiguous match must not remove documents")
	}
}

func TestFindFullMatch_LostClaimIsNoMatch(t *testing.T) {
	doc := newDoc(t, 1, `{"status":"CLOSED"}`)
	store := &sliceStore{}
	fs := mustFilterSet(t, "status", "CLOSED")

	// The snapshot still holds doc but another await already removed it
	got, err := FindFullMatch([]*types.Document{doc}, fs, store)
	if err != nil || got != nil {
		t.Errorf("FindFullMatch() = %v, %v, want nil, nil", got, err)
	}
}

func TestFindFullMatch_ConcurrentClaim(t *testing.T) {
	doc := newDoc(t, 1, `{"status":"CLOSED"}`)
	store := &sliceStore{docs: []*types.Document{doc}}
	snapshot := store.snapshot()

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan *types.Document, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fs := NewFilterSet()
			_ = fs.Add("status", "CLOSED")
			got, err := FindFullMatch(snapshot, fs, store)
			if err != nil {
				t.Errorf("FindFullMatch() error = %v", err)
			}
			if got != nil {
				wins <- got
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("claims = %d, want exactly 1", count)
	}
}

func TestFindFullMatch_PartialHistory(t *testing.T) {
	a := newDoc(t, 1, `{"status":"OPEN","id":1,"kind":"x"}`)
	b := newDoc(t, 2, `{"status":"CLOSED","id":1,"kind":"y"}`)
	c := newDoc(t, 3, `{"status":"NONE","id":9,"kind":"z"}`)
	fs := mustFilterSet(t, "status", "CLOSED", "id", "1", "kind", "x")

	for i := 0; i < 3; i++ {
		if _, err := FindFullMatch([]*types.Document{a, b, c}, fs, nil); err != nil {
			t.Fatalf("FindFullMatch() error = %v", err)
		}
	}

	partials := fs.PartialMatches()
	if len(partials) != 2 {
		t.Fatalf("len(PartialMatches) = %d, want 2 (deduplicated, zero-match excluded)", len(partials))
	}

	best := fs.BestPartialMatches()
	if best[0].Document != b && best[0].Document != a {
		t.Fatalf("unexpected best match %+v", best[0].Document)
	}
	for i := 1; i < len(best); i++ {
		if len(best[i-1].Unmatched) > len(best[i].Unmatched) {
			t.Errorf("BestPartialMatches not sorted ascending by unmatched count")
		}
	}
}

func TestBestPartialMatches_Ranking(t *testing.T) {
	fs := mustFilterSet(t, "a", "1", "b", "2", "c", "3")
	far := newDoc(t, 1, `{"a":"1","b":"x","c":"x"}`)
	near := newDoc(t, 2, `{"a":"1","b":"2","c":"x"}`)

	fs.RecordPartial(Evaluate(far, fs))
	fs.RecordPartial(Evaluate(near, fs))

	best := fs.BestPartialMatches()
	if len(best) != 2 || best[0].Document != near || best[1].Document != far {
		t.Errorf("BestPartialMatches order wrong: %v", best)
	}
}

func TestAssertNoFullMatch(t *testing.T) {
	docs := []*types.Document{newDoc(t, 1, `{"status":"OPEN"}`)}

	if err := AssertNoFullMatch(docs, mustFilterSet(t, "status", "CLOSED")); err != nil {
		t.Errorf("AssertNoFullMatch() error = %v, want nil", err)
	}

	err := AssertNoFullMatch(docs, mustFilterSet(t, "status", "OP%"))
	if !errors.Is(err, types.ErrUnexpectedMatch) {
		t.Fatalf("AssertNoFullMatch() error = %v, want ErrUnexpectedMatch", err)
	}
	var unexpected *UnexpectedMatchError
	if !errors.As(err, &unexpected) || unexpected.Document != docs[0] {
		t.Errorf("UnexpectedMatchError does not carry the matched document")
	}
}

func TestFilterSet_String(t *testing.T) {
	fs := mustFilterSet(t, "topic", "orders", "Message.status", "OPEN")
	want := "  topic : orders\n  Message.status : OPEN\n"
	if got := fs.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

type upperResolver struct{}

func (upperResolver) Resolve(raw string, _ *scenario.Context) (string, error) {
	if raw == "$FAIL" {
		return "", types.ErrUnknownFunction
	}
	return strings.ToUpper(raw), nil
}

func TestBuildFilterSet(t *testing.T) {
	fields := []Field{{Path: "b", Value: "x"}, {Path: "a", Value: "y"}}

	fs, err := BuildFilterSet(fields, upperResolver{}, scenario.New())
	if err != nil {
		t.Fatalf("BuildFilterSet() error = %v", err)
	}
	filters := fs.Filters()
	if len(filters) != 2 || filters[0].Path != "b" || filters[0].Pattern != "X" || filters[1].Pattern != "Y" {
		t.Errorf("Filters() = %+v, want declaration order with resolved values", filters)
	}

	_, err = BuildFilterSet([]Field{{Path: "a", Value: "$FAIL"}}, upperResolver{}, scenario.New())
	if !errors.Is(err, types.ErrUnknownFunction) {
		t.Errorf("BuildFilterSet() error = %v, want ErrUnknownFunction", err)
	}

	_, err = BuildFilterSet([]Field{{Path: "a[x]", Value: "v"}}, nil, nil)
	if !errors.Is(err, types.ErrMalformedPath) {
		t.Errorf("BuildFilterSet() error = %v, want ErrMalformedPath", err)
	}
}
