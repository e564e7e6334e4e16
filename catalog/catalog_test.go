package catalog

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func open(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewRunID(t *testing.T) {
	ts := time.Date(2022, 10, 20, 20, 32, 52, 0, time.UTC)
	id := NewRunID(ts)
	prefix, rest, ok := strings.Cut(id, "_")
	if !ok {
		t.Fatalf("%s has no separator", id)
	}
	if want := "20221020T203252Z"; prefix != want {
		t.Fatalf("prefix = %s, want %s", prefix, want)
	}
	if len(rest) != 36 {
		t.Fatalf("uuid part %q has length %d, want 36", rest, len(rest))
	}
	if NewRunID(ts) == id {
		t.Fatal("NewRunID repeated an id")
	}
}

func TestBeginFinish(t *testing.T) {
	c := open(t)
	started := time.Date(2022, 12, 2, 11, 34, 0, 0, time.UTC)
	r := Run{
		ID:      NewRunID(started),
		Machine: "m0",
		Addr:    "127.0.0.1:17685",
		Output:  "mesures.txt",
		Started: started,
	}
	if err := c.Begin(r); err != nil {
		t.Fatal(err)
	}

	got, err := c.Get(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Outcome != OutcomeRunning {
		t.Fatalf("outcome = %s, want %s", got.Outcome, OutcomeRunning)
	}
	if !got.Finished.IsZero() {
		t.Fatalf("finished = %v, want zero", got.Finished)
	}
	if !got.Started.Equal(started) {
		t.Fatalf("started = %v, want %v", got.Started, started)
	}

	finished := started.Add(90 * time.Second)
	if err := c.Finish(r.ID, finished, 3, 42, OutcomeInterrupted, ""); err != nil {
		t.Fatal(err)
	}
	got, err = c.Get(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Outcome != OutcomeInterrupted || got.Chunks != 3 || got.Bytes != 42 {
		t.Fatalf("got %+v", got)
	}
	if !got.Finished.Equal(finished) {
		t.Fatalf("finished = %v, want %v", got.Finished, finished)
	}
}

func TestDuplicateBegin(t *testing.T) {
	c := open(t)
	r := Run{ID: "dup", Machine: "m", Addr: "a", Output: "o", Started: time.Now()}
	if err := c.Begin(r); err != nil {
		t.Fatal(err)
	}
	if err := c.Begin(r); err == nil {
		t.Fatal("second Begin with the same id succeeded")
	}
}

func TestNotFound(t *testing.T) {
	c := open(t)
	if _, err := c.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
	if err := c.Finish("nope", time.Now(), 0, 0, OutcomeEOF, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Finish = %v, want ErrNotFound", err)
	}
}

func TestRunsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t0 := time.Date(2022, 12, 2, 11, 34, 0, 0, time.UTC)
	for i, id := range []string{"b", "a", "c"} {
		r := Run{ID: id, Machine: "m", Addr: "a", Output: "o", Started: t0.Add(time.Duration(2-i) * time.Minute)}
		if err := c.Begin(r); err != nil {
			t.Fatal(err)
		}
	}
	c.Close()

	// Reopening must keep the rows and tolerate the existing schema.
	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	runs, err := c.Runs()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if got, want := strings.Join(ids, ","), "c,a,b"; got != want {
		t.Fatalf("order = %s, want %s", got, want)
	}
}

func TestMachineID(t *testing.T) {
	if MachineID("lidarrec") == "" {
		t.Fatal("MachineID returned empty string")
	}
}
