package dedup

import (
	"context"
	"testing"

	"github.com/newspulse/newspulse/internal/store"
)

type fakeStore struct {
	store.Store
	known map[string]bool
}

func (f *fakeStore) HasArticle(ctx context.Context, id string) (bool, error) {
	return f.known[id], nil
}

func TestURLHashStable(t *testing.T) {
	a := URLHash("https://example.com/story")
	b := URLHash("https://example.com/story")
	if a != b {
		t.Fatalf("same URL hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if c := URLHash("https://example.com/other"); c == a {
		t.Error("different URLs produced the same hash")
	}
}

func TestResolve(t *testing.T) {
	url := "https://example.com/story"
	fs := &fakeStore{known: map[string]bool{URLHash(url): true}}
	r := NewResolver(fs)

	id, status, err := r.Resolve(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusDuplicate {
		t.Errorf("status = %v, want duplicate", status)
	}
	if id != URLHash(url) {
		t.Errorf("id = %s, want %s", id, URLHash(url))
	}

	_, status, err = r.Resolve(context.Background(), "https://example.com/fresh")
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusNew {
		t.Errorf("status = %v, want new", status)
	}
}

// Same URL fetched twice with different body text is still one article.
func TestSameURLDifferentBodyIsDuplicate(t *testing.T) {
	url := "https://example.com/updated-story"
	fs := &fakeStore{known: map[string]bool{}}
	r := NewResolver(fs)

	id, status, _ := r.Resolve(context.Background(), url)
	if status != StatusNew {
		t.Fatalf("first pass status = %v, want new", status)
	}
	fs.known[id] = true

	_, status, _ = r.Resolve(context.Background(), url)
	if status != StatusDuplicate {
		t.Errorf("second pass status = %v, want duplicate", status)
	}
}
