package checkpoint

import (
	"os"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	f, err := os.CreateTemp("", "checkpoint-*.db")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	name := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(name) })

	db, err := bolt.Open(name, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		t.Fatalf("bolt.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveThenGetDataRoundTrips(t *testing.T) {
	db := openTestDB(t)
	io := NewCheckpointIO(db, MAIN, 60)

	data := &CheckpointData{
		Newick:        "((a:0.1,b:0.1):0.1,c:0.2);",
		PlacedTaxa:    3,
		Pass:          1,
		LogLikelihood: -123.45,
		Trajectory:    []float64{-200, -150, -123.45},
	}
	if err := io.Save(data); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := io.GetData()
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if got == nil {
		t.Fatalf("GetData returned nil after Save")
	}
	if got.Newick != data.Newick || got.PlacedTaxa != data.PlacedTaxa || got.LogLikelihood != data.LogLikelihood {
		t.Fatalf("GetData = %+v, want %+v", got, data)
	}
	if len(got.Trajectory) != len(data.Trajectory) {
		t.Fatalf("Trajectory length = %d, want %d", len(got.Trajectory), len(data.Trajectory))
	}
}

func TestGetDataOnEmptyDatabaseReturnsNil(t *testing.T) {
	db := openTestDB(t)
	io := NewCheckpointIO(db, MAIN, 60)

	got, err := io.GetData()
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if got != nil {
		t.Fatalf("GetData on an empty database should return nil, got %+v", got)
	}
}

func TestOldReportsTrueBeforeFirstSave(t *testing.T) {
	db := openTestDB(t)
	io := NewCheckpointIO(db, MAIN, 60)

	if !io.Old() {
		t.Fatalf("Old() should be true before SetNow/Save has ever run")
	}
	io.SetNow()
	if io.Old() {
		t.Fatalf("Old() should be false immediately after SetNow")
	}
}
