package items_test

import (
	"slices"
	"testing"

	"labeldesk/internal/items"
)

func ptr(v string) *string { return &v }

func TestResultMergeNormalizesAndClears(t *testing.T) {
	base := items.Result{"result": ptr("cat"), "btn_1": ptr("yes")}
	merged := base.Merge(map[string]*string{
		" BTN_2 ": ptr("no"),
		"btn_1":   nil,
		"":        ptr("ignored"),
	})

	if got := merged["btn_2"]; got == nil || *got != "no" {
		t.Fatalf("expected normalized btn_2, got %#v", merged)
	}
	if v, ok := merged["btn_1"]; !ok || v != nil {
		t.Fatalf("expected btn_1 cleared, got %#v", merged["btn_1"])
	}
	if _, ok := merged[""]; ok {
		t.Fatal("empty field name should be dropped")
	}
	if base["btn_1"] == nil {
		t.Fatal("merge must not mutate the receiver")
	}
}

func TestResultMissingAndComplete(t *testing.T) {
	required := []string{"result", "btn_1", "btn_2"}
	r := items.Result{"result": ptr("x"), "btn_2": nil}

	missing := r.Missing(required)
	if !slices.Equal(missing, []string{"btn_1", "btn_2"}) {
		t.Fatalf("unexpected missing: %v", missing)
	}
	if r.Complete(required) {
		t.Fatal("expected incomplete")
	}
	r = r.Merge(map[string]*string{"btn_1": ptr("a"), "btn_2": ptr("b")})
	if !r.Complete(required) {
		t.Fatal("expected complete")
	}
	if !slices.Equal(r.Fields(), []string{"btn_1", "btn_2", "result"}) {
		t.Fatalf("unexpected fields: %v", r.Fields())
	}
}

func TestBlobDataURLDefaultsContentType(t *testing.T) {
	blob := &items.Blob{Data: []byte("hi")}
	if got := blob.DataURL(); got != "data:application/octet-stream;base64,aGk=" {
		t.Fatalf("unexpected data url: %q", got)
	}
	var nilBlob *items.Blob
	if nilBlob.DataURL() != "" {
		t.Fatal("nil blob should render empty")
	}
}
