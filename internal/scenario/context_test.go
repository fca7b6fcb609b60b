package scenario

import (
	"errors"
	"testing"

	"github.com/solatis/busprobe/internal/types"
)

func TestGet(t *testing.T) {
	sc := New()
	sc.Put(KeyLastPayload, `{"a":1}`)

	got, err := Get[string](sc, KeyLastPayload)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("Get() = %q, want %q", got, `{"a":1}`)
	}

	t.Run("missing key", func(t *testing.T) {
		_, err := Get[string](sc, KeyTestCaseID)
		if !errors.Is(err, types.ErrContextKeyNotFound) {
			t.Errorf("Get() error = %v, want ErrContextKeyNotFound", err)
		}
	})

	t.Run("nil value treated as missing", func(t *testing.T) {
		sc.Put(KeyTestCaseID, nil)
		_, err := Get[string](sc, KeyTestCaseID)
		if !errors.Is(err, types.ErrContextKeyNotFound) {
			t.Errorf("Get() error = %v, want ErrContextKeyNotFound", err)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := Get[int](sc, KeyLastPayload)
		if !errors.Is(err, types.ErrContextTypeMismatch) {
			t.Errorf("Get() error = %v, want ErrContextTypeMismatch", err)
		}
	})
}

func TestPayloadValues(t *testing.T) {
	sc := New()
	if len(sc.PayloadValues()) != 0 {
		t.Fatalf("PayloadValues() on empty context should be empty")
	}

	sc.SetPayloadValue("accountId", "ACC-1")
	sc.SetPayloadValue("amount", "10.50")

	v, err := sc.PayloadValue("accountId")
	if err != nil || v != "ACC-1" {
		t.Errorf("PayloadValue(accountId) = %q, %v", v, err)
	}

	_, err = sc.PayloadValue("missing")
	if !errors.Is(err, types.ErrPayloadValueNotFound) {
		t.Errorf("PayloadValue(missing) error = %v, want ErrPayloadValueNotFound", err)
	}

	// Returned map is a copy
	values := sc.PayloadValues()
	values["accountId"] = "changed"
	if v, _ := sc.PayloadValue("accountId"); v != "ACC-1" {
		t.Errorf("PayloadValues() leaked internal map, got %q", v)
	}
}

func TestLastMatched(t *testing.T) {
	sc := New()
	if _, err := sc.LastMatched(); !errors.Is(err, types.ErrContextKeyNotFound) {
		t.Fatalf("LastMatched() before set error = %v", err)
	}

	doc := &types.Document{Seq: 7}
	sc.SetLastMatched(doc)
	got, err := sc.LastMatched()
	if err != nil {
		t.Fatalf("LastMatched() error = %v", err)
	}
	if got != doc {
		t.Errorf("LastMatched() returned a different document")
	}
}
