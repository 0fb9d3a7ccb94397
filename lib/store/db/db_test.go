package db

import (
	"errors"
	"testing"

	"github.com/tarancss/rentguard/lib/store/memory"
)

func TestNew(t *testing.T) {
	for _, opt := range []string{"", MEMORY} {
		dh, err := New(opt, "")
		if err != nil {
			t.Fatalf("%q: err:%v", opt, err)
		}

		if _, ok := dh.(*memory.Memory); !ok {
			t.Errorf("%q: expected a memory store, got %T", opt, dh)
		}

		if err = Close(opt, dh); err != nil {
			t.Errorf("%q: err:%v", opt, err)
		}
	}

	if _, err := New("redis", ""); !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}
