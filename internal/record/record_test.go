package record

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	merrors "github.com/iskng/metagent/internal/errors"
)

type counter struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rec.json")

	if err := Save(path, counter{Name: "a", Count: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load[counter](path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != "a" || got.Count != 1 {
		t.Errorf("Load = %+v", got)
	}
	if _, err := os.Stat(path + TmpSuffix); !os.IsNotExist(err) {
		t.Error("staging file should not survive a successful save")
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load[counter](filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load missing = %v, want os.ErrNotExist", err)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load[counter](path)
	if merrors.KindOf(err) != merrors.KindCorruption {
		t.Errorf("Load corrupt kind = %v, want corruption", merrors.KindOf(err))
	}
	if data, _ := os.ReadFile(path); string(data) != "{not json" {
		t.Error("Load must not modify a corrupt record")
	}
}

func TestUpdate_MutatorErrorWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.json")
	if err := Save(path, counter{Name: "a", Count: 1}); err != nil {
		t.Fatal(err)
	}

	sentinel := errors.New("refuse")
	_, err := Update(path, func(c *counter) error {
		c.Count = 99
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Update error = %v, want sentinel", err)
	}
	got, _ := Load[counter](path)
	if got.Count != 1 {
		t.Errorf("Count = %d, want 1 after failed update", got.Count)
	}
}

func TestUpdate_ConcurrentIncrements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.json")
	if err := Save(path, counter{Name: "a"}); err != nil {
		t.Fatal(err)
	}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Update(path, func(c *counter) error {
				c.Count++
				return nil
			}); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := Load[counter](path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Count != workers {
		t.Errorf("Count = %d, want %d (lost update)", got.Count, workers)
	}
}

func TestCreateExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claims", "a.lock")
	if err := CreateExclusive(path, counter{Name: "first"}); err != nil {
		t.Fatalf("first CreateExclusive: %v", err)
	}
	err := CreateExclusive(path, counter{Name: "second"})
	if !os.IsExist(err) {
		t.Fatalf("second CreateExclusive = %v, want exists", err)
	}
	got, _ := Load[counter](path)
	if got.Name != "first" {
		t.Errorf("Name = %q, want first", got.Name)
	}
}

func TestWriteJSON_EncodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.json")
	err := WriteJSON(path, map[string]any{"bad": make(chan int)})
	if err == nil {
		t.Fatal("WriteJSON() should fail for a value that cannot be encoded")
	}
	if Exists(path) || Exists(path+TmpSuffix) {
		t.Error("nothing should be written when encoding fails")
	}
}
