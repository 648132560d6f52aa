package collector

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"stockbars/internal/checkpoint"
	"stockbars/internal/model"
)

type fakeSource struct {
	items []string
	err   error
}

func (s *fakeSource) List(ctx context.Context) ([]string, error) {
	return s.items, s.err
}

type fakeBarSource struct {
	bars  map[string]model.Bars
	errs  map[string]error
	calls []string
}

func (b *fakeBarSource) Collect(ctx context.Context, code string) (model.Bars, error) {
	b.calls = append(b.calls, code)
	if err := b.errs[code]; err != nil {
		return nil, err
	}
	return b.bars[code], nil
}

type fakeStore struct {
	saved     map[string]model.Bars
	existsErr error
	saveErr   map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]model.Bars)}
}

func (s *fakeStore) Exists(ctx context.Context, code string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	bars, ok := s.saved[code]
	return ok && len(bars) > 0, nil
}

func (s *fakeStore) Save(ctx context.Context, code string, bars model.Bars) error {
	if err := s.saveErr[code]; err != nil {
		return err
	}
	s.saved[code] = bars
	return nil
}

// fakeCursor records every saved checkpoint.
type fakeCursor struct {
	cp      checkpoint.Checkpoint
	history []checkpoint.Checkpoint
	saveErr error
}

func (c *fakeCursor) Load() (checkpoint.Checkpoint, error) { return c.cp, nil }
func (c *fakeCursor) Save(cp checkpoint.Checkpoint) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.cp = cp
	c.history = append(c.history, cp)
	return nil
}
func (c *fakeCursor) Close() error { return nil }

func someBars(n int) model.Bars {
	bars := make(model.Bars, n)
	for i := range bars {
		bars[i] = model.Bar{Date: 20240102, Time: 900 + i, Close: 1}
	}
	return bars
}

func TestRunCollectsAllItems(t *testing.T) {
	source := &fakeSource{items: []string{"A000001", "A000002"}}
	bars := &fakeBarSource{bars: map[string]model.Bars{
		"A000001": someBars(3),
		"A000002": someBars(5),
	}}
	store := newFakeStore()
	cursor := &fakeCursor{}
	var out bytes.Buffer

	c := New(source, bars, store, cursor, nil, nil, &out, Config{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if len(store.saved["A000001"]) != 3 || len(store.saved["A000002"]) != 5 {
		t.Errorf("saved artifacts = %v", store.saved)
	}

	// Checkpoint advanced once per item, items snapshot unchanged.
	if len(cursor.history) != 2 {
		t.Fatalf("checkpoint saves = %d, want 2", len(cursor.history))
	}
	want := checkpoint.Checkpoint{NextIndex: 1, Items: source.items}
	if !reflect.DeepEqual(cursor.history[0], want) {
		t.Errorf("first checkpoint = %+v, want %+v", cursor.history[0], want)
	}
	if cursor.cp.NextIndex != 2 {
		t.Errorf("final index = %d, want 2", cursor.cp.NextIndex)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	wantLines := []string{
		"[1/2] A000001 -> collecting...",
		"saved 3 rows",
		"[2/2] A000002 -> collecting...",
		"saved 5 rows",
	}
	if !reflect.DeepEqual(lines, wantLines) {
		t.Errorf("output = %q, want %q", lines, wantLines)
	}
}

func TestRunSkipsExistingArtifacts(t *testing.T) {
	source := &fakeSource{items: []string{"A000001", "A000002"}}
	bars := &fakeBarSource{bars: map[string]model.Bars{"A000002": someBars(2)}}
	store := newFakeStore()
	store.saved["A000001"] = someBars(1) // artifact already present
	cursor := &fakeCursor{}
	var out bytes.Buffer

	c := New(source, bars, store, cursor, nil, nil, &out, Config{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if !reflect.DeepEqual(bars.calls, []string{"A000002"}) {
		t.Errorf("collected %v, want only the missing item", bars.calls)
	}
	if !strings.Contains(out.String(), "[1/2] A000001 -> exists, skip") {
		t.Errorf("output missing skip line: %q", out.String())
	}
	// Skips advance the checkpoint like any other outcome.
	if cursor.cp.NextIndex != 2 {
		t.Errorf("final index = %d, want 2", cursor.cp.NextIndex)
	}
}

func TestRunIdempotentSecondPass(t *testing.T) {
	source := &fakeSource{items: []string{"A000001", "A000002"}}
	store := newFakeStore()
	cursor := &fakeCursor{}

	first := &fakeBarSource{bars: map[string]model.Bars{
		"A000001": someBars(1),
		"A000002": someBars(1),
	}}
	c := New(source, first, store, cursor, nil, nil, &bytes.Buffer{}, Config{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Completed batch plus fresh identical list: a rerun starts at the end
	// of the cursor and touches nothing.
	second := &fakeBarSource{}
	c = New(source, second, store, cursor, nil, nil, &bytes.Buffer{}, Config{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(second.calls) != 0 {
		t.Errorf("second pass collected %v, want nothing", second.calls)
	}
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	items := []string{"A000001", "A000002", "A000003"}
	source := &fakeSource{items: items}
	bars := &fakeBarSource{bars: map[string]model.Bars{
		"A000002": someBars(1),
		"A000003": someBars(1),
	}}
	store := newFakeStore()
	cursor := &fakeCursor{cp: checkpoint.Checkpoint{NextIndex: 1, Items: items}}

	c := New(source, bars, store, cursor, nil, nil, &bytes.Buffer{}, Config{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if !reflect.DeepEqual(bars.calls, []string{"A000002", "A000003"}) {
		t.Errorf("collected %v, want resumption after index 1", bars.calls)
	}
}

func TestRunWorkListChangeResetsCursor(t *testing.T) {
	source := &fakeSource{items: []string{"A000001", "A000009"}}
	bars := &fakeBarSource{bars: map[string]model.Bars{
		"A000001": someBars(1),
		"A000009": someBars(1),
	}}
	store := newFakeStore()
	// Persisted cursor points past the end of a stale list.
	cursor := &fakeCursor{cp: checkpoint.Checkpoint{
		NextIndex: 2,
		Items:     []string{"A000001", "A000002"},
	}}

	c := New(source, bars, store, cursor, nil, nil, &bytes.Buffer{}, Config{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if !reflect.DeepEqual(bars.calls, []string{"A000001", "A000009"}) {
		t.Errorf("collected %v, want a full restart over the fresh list", bars.calls)
	}
}

func TestRunFailureIsolation(t *testing.T) {
	source := &fakeSource{items: []string{"A000001", "A000002", "A000003"}}
	bars := &fakeBarSource{
		bars: map[string]model.Bars{
			"A000001": someBars(1),
			"A000003": someBars(1),
		},
		errs: map[string]error{"A000002": errors.New("provider exploded")},
	}
	store := newFakeStore()
	cursor := &fakeCursor{}
	var out bytes.Buffer

	c := New(source, bars, store, cursor, nil, nil, &out, Config{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v, per-item failures must not abort", err)
	}

	if _, ok := store.saved["A000003"]; !ok {
		t.Error("item after the failure was not processed")
	}
	if !strings.Contains(out.String(), " FAILED (provider exploded)") {
		t.Errorf("output missing failure marker: %q", out.String())
	}
	// The failed item advances the cursor and is not retried this run.
	if cursor.cp.NextIndex != 3 {
		t.Errorf("final index = %d, want 3", cursor.cp.NextIndex)
	}
}

func TestRunEmptyResultAdvances(t *testing.T) {
	source := &fakeSource{items: []string{"A000001"}}
	bars := &fakeBarSource{} // collects nothing
	store := newFakeStore()
	cursor := &fakeCursor{}
	var out bytes.Buffer

	c := New(source, bars, store, cursor, nil, nil, &out, Config{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if len(store.saved) != 0 {
		t.Errorf("empty result must not create an artifact: %v", store.saved)
	}
	if !strings.Contains(out.String(), " empty") {
		t.Errorf("output missing empty marker: %q", out.String())
	}
	if cursor.cp.NextIndex != 1 {
		t.Errorf("final index = %d, want 1", cursor.cp.NextIndex)
	}
}

func TestRunExistsErrorCollectsAnyway(t *testing.T) {
	source := &fakeSource{items: []string{"A000001"}}
	bars := &fakeBarSource{bars: map[string]model.Bars{"A000001": someBars(1)}}
	store := newFakeStore()
	store.existsErr = errors.New("stat failed")
	cursor := &fakeCursor{}

	c := New(source, bars, store, cursor, nil, nil, &bytes.Buffer{}, Config{})
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if !reflect.DeepEqual(bars.calls, []string{"A000001"}) {
		t.Errorf("collected %v, want collection despite the existence error", bars.calls)
	}
}

func TestRunCheckpointSaveFailureIsFatal(t *testing.T) {
	source := &fakeSource{items: []string{"A000001", "A000002"}}
	bars := &fakeBarSource{bars: map[string]model.Bars{"A000001": someBars(1)}}
	store := newFakeStore()
	cursor := &fakeCursor{saveErr: errors.New("disk full")}

	c := New(source, bars, store, cursor, nil, nil, &bytes.Buffer{}, Config{})
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("Run() = nil, want fatal error on checkpoint persistence failure")
	}
	if len(bars.calls) != 1 {
		t.Errorf("collected %v, want the batch to stop after the failed save", bars.calls)
	}
}

func TestRunCancelledBetweenItems(t *testing.T) {
	source := &fakeSource{items: []string{"A000001", "A000002"}}
	store := newFakeStore()
	cursor := &fakeCursor{}

	ctx, cancel := context.WithCancel(context.Background())
	bars := &fakeBarSource{bars: map[string]model.Bars{"A000001": someBars(1)}}
	// Cancel during the first item's collection.
	cancelling := &cancellingBarSource{inner: bars, cancel: cancel}

	c := New(source, cancelling, store, cursor, nil, nil, &bytes.Buffer{}, Config{})
	err := c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if len(bars.calls) != 1 {
		t.Errorf("collected %v, want the loop to stop immediately", bars.calls)
	}
}

type cancellingBarSource struct {
	inner  *fakeBarSource
	cancel context.CancelFunc
}

func (s *cancellingBarSource) Collect(ctx context.Context, code string) (model.Bars, error) {
	bars, err := s.inner.Collect(ctx, code)
	s.cancel()
	return bars, err
}
