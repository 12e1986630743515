package imaging

import (
	"context"
	"errors"
	"testing"

	"github.com/oncoscan/oncoscan/internal/platform/apperr"
)

func newImage(patientID int64, path string) *Image {
	return &Image{Filename: path, StoragePath: path, PatientID: patientID, ContentType: "image/png"}
}

func TestImageRepoMem_SaveAssignsIDs(t *testing.T) {
	repo := NewImageRepoMem()
	ctx := context.Background()

	a := newImage(1, "patients/1/a.png")
	b := newImage(1, "patients/1/b.png")
	if replaced, err := repo.Save(ctx, a); err != nil || replaced {
		t.Fatalf("save a: replaced=%v err=%v", replaced, err)
	}
	repo.Save(ctx, b)
	if a.ID != 1 || b.ID != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", a.ID, b.ID)
	}
}

func TestImageRepoMem_SaveReplacesByPath(t *testing.T) {
	repo := NewImageRepoMem()
	ctx := context.Background()

	first := newImage(1, "patients/1/a.png")
	repo.Save(ctx, first)
	if err := repo.SetLabel(ctx, first.ID, first.ContentHash, 1); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}

	again := newImage(1, "patients/1/a.png")
	replaced, err := repo.Save(ctx, again)
	if err != nil || !replaced {
		t.Fatalf("expected replacement, got replaced=%v err=%v", replaced, err)
	}
	if again.ID != first.ID {
		t.Errorf("expected id %d to be kept, got %d", first.ID, again.ID)
	}
	got, _ := repo.GetByID(ctx, first.ID)
	if got.PredictedLabel != nil {
		t.Error("expected label to be cleared")
	}
}

func TestImageRepoMem_ReturnsCopies(t *testing.T) {
	repo := NewImageRepoMem()
	ctx := context.Background()
	img := newImage(1, "patients/1/a.png")
	repo.Save(ctx, img)

	got, _ := repo.GetByID(ctx, img.ID)
	got.Filename = "changed"
	again, _ := repo.GetByID(ctx, img.ID)
	if again.Filename != "patients/1/a.png" {
		t.Error("stored record was mutated through a returned value")
	}
}

func TestImageRepoMem_ListAndLatest(t *testing.T) {
	repo := NewImageRepoMem()
	ctx := context.Background()
	repo.Save(ctx, newImage(1, "patients/1/a.png"))
	repo.Save(ctx, newImage(2, "patients/2/a.png"))
	repo.Save(ctx, newImage(1, "patients/1/b.png"))

	list, err := repo.ListByPatient(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].StoragePath != "patients/1/a.png" || list[1].StoragePath != "patients/1/b.png" {
		t.Errorf("unexpected list %+v", list)
	}

	latest, err := repo.LatestForPatient(ctx, 1)
	if err != nil || latest.StoragePath != "patients/1/b.png" {
		t.Errorf("expected b.png latest, got %+v (%v)", latest, err)
	}

	// Re-saving a.png makes it the newest.
	repo.Save(ctx, newImage(1, "patients/1/a.png"))
	latest, _ = repo.LatestForPatient(ctx, 1)
	if latest.StoragePath != "patients/1/a.png" {
		t.Errorf("expected a.png latest after replacement, got %s", latest.StoragePath)
	}

	empty, _ := repo.ListByPatient(ctx, 9)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil list, got %v", empty)
	}
	if _, err := repo.LatestForPatient(ctx, 9); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestImageRepoMem_Delete(t *testing.T) {
	repo := NewImageRepoMem()
	ctx := context.Background()
	img := newImage(1, "patients/1/a.png")
	repo.Save(ctx, img)

	if err := repo.Delete(ctx, img.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetByPath(ctx, img.StoragePath); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected path index cleared, got %v", err)
	}
	if err := repo.Delete(ctx, img.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	// A new upload at the same path gets a fresh id.
	again := newImage(1, "patients/1/a.png")
	repo.Save(ctx, again)
	if again.ID == img.ID {
		t.Error("expected a fresh id after delete")
	}
}

func TestImageRepoMem_SetLabelUnknown(t *testing.T) {
	repo := NewImageRepoMem()
	if err := repo.SetLabel(context.Background(), 5, "abc", 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestImageRepoMem_SetLabelChecksHash(t *testing.T) {
	repo := NewImageRepoMem()
	ctx := context.Background()

	img := newImage(1, "patients/1/a.png")
	img.ContentHash = "old"
	repo.Save(ctx, img)

	newer := newImage(1, "patients/1/a.png")
	newer.ContentHash = "new"
	repo.Save(ctx, newer)

	if err := repo.SetLabel(ctx, img.ID, "old", 1); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	got, _ := repo.GetByID(ctx, img.ID)
	if got.PredictedLabel != nil || got.ContentHash != "new" {
		t.Errorf("stale label must not touch the newer record, got %+v", got)
	}

	if err := repo.SetLabel(ctx, img.ID, "new", 0); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}
	got, _ = repo.GetByID(ctx, img.ID)
	if got.PredictedLabel == nil || *got.PredictedLabel != 0 {
		t.Errorf("expected label 0, got %v", got.PredictedLabel)
	}
}
