package mirror_test

import (
	"testing"

	"fswatcher/internal/fs"
	"fswatcher/internal/mirror"
)

func TestClassifier_Classify(t *testing.T) {
	c := mirror.NewClassifier("/watch", fs.NewIgnoreMatcher([]string{"scratch.tmp", "private/skip.fits", "*.part~", "cache/*", "build"}))

	tests := []struct {
		name     string
		ev       mirror.RawEvent
		wantOK   bool
		wantKind mirror.Kind
		wantDest string
	}{
		{name: "create", ev: mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/a.fits"}, wantOK: true, wantKind: mirror.KindCreate},
		{name: "modify", ev: mirror.RawEvent{Op: mirror.OpModified, Path: "/watch/a.fits"}, wantOK: true, wantKind: mirror.KindUpdate},
		{name: "move", ev: mirror.RawEvent{Op: mirror.OpMoved, Path: "/watch/a.part", DestPath: "/watch/a.fits"}, wantOK: true, wantKind: mirror.KindMove, wantDest: "/watch/a.fits"},
		{name: "delete", ev: mirror.RawEvent{Op: mirror.OpDeleted, Path: "/watch/a.fits"}, wantOK: true, wantKind: mirror.KindDelete},
		{name: "move without destination", ev: mirror.RawEvent{Op: mirror.OpMoved, Path: "/watch/a.fits"}},
		{name: "directory", ev: mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/night1", IsDir: true}},
		{name: "opened", ev: mirror.RawEvent{Op: mirror.OpOpened, Path: "/watch/a.fits"}},
		{name: "closed", ev: mirror.RawEvent{Op: mirror.OpClosed, Path: "/watch/a.fits"}},
		{name: "attrib", ev: mirror.RawEvent{Op: mirror.OpAttrib, Path: "/watch/a.fits"}},
		{name: "log file", ev: mirror.RawEvent{Op: mirror.OpModified, Path: "/watch/fswatcher.log"}},
		{name: "ignored basename", ev: mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/sub/scratch.tmp"}},
		{name: "ignored full path", ev: mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/private/skip.fits"}},
		{name: "ignored glob", ev: mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/sub/a.part~"}},
		{name: "ignored relative path glob", ev: mirror.RawEvent{Op: mirror.OpModified, Path: "/watch/cache/index.db"}},
		{name: "ignored directory", ev: mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/build/out/a.fits"}},
		{name: "ignore file", ev: mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/.fswatcherignore"}},
		{name: "atomic writer temp file", ev: mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/sub/.tmp-upload"}},
		{name: "name only matches below root", ev: mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/rebuild/a.fits"}, wantOK: true, wantKind: mirror.KindCreate},
		{name: "move from ignored temp file", ev: mirror.RawEvent{Op: mirror.OpMoved, Path: "/watch/a.part~", DestPath: "/watch/a.fits"}, wantOK: true, wantKind: mirror.KindMove, wantDest: "/watch/a.fits"},
		{name: "move onto ignored path", ev: mirror.RawEvent{Op: mirror.OpMoved, Path: "/watch/a.fits", DestPath: "/watch/scratch.tmp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := c.Classify(tt.ev, nil)
			if ok != tt.wantOK {
				t.Fatalf("Classify() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if rec.Kind != tt.wantKind || rec.DestPath != tt.wantDest || rec.SourcePath != tt.ev.Path {
				t.Errorf("Classify() = %+v", rec)
			}
			if rec.WatchRoot != "/watch" {
				t.Errorf("WatchRoot = %q, want /watch", rec.WatchRoot)
			}
			if err := rec.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestClassifier_DedupAgainstInFlight(t *testing.T) {
	c := mirror.NewClassifier("/watch", nil)
	inFlight := mirror.NewInFlightSet()
	ev := mirror.RawEvent{Op: mirror.OpCreated, Path: "/watch/a.fits"}

	first, ok := c.Classify(ev, inFlight)
	if !ok {
		t.Fatal("first Classify() rejected")
	}
	if inFlight.Len() != 0 {
		t.Fatal("Classify() must not insert into the in-flight set")
	}
	if !inFlight.Add(first.Key()) {
		t.Fatal("Add() reported duplicate on empty set")
	}

	if _, ok := c.Classify(ev, inFlight); ok {
		t.Error("equivalent event classified while first is in flight")
	}

	// Same path, different kind is a different identity.
	if _, ok := c.Classify(mirror.RawEvent{Op: mirror.OpModified, Path: "/watch/a.fits"}, inFlight); !ok {
		t.Error("UPDATE rejected while CREATE in flight")
	}

	inFlight.Remove(first.Key())
	if _, ok := c.Classify(ev, inFlight); !ok {
		t.Error("event rejected after in-flight record completed")
	}
}

func TestKind_Action(t *testing.T) {
	tests := map[mirror.Kind]string{
		mirror.KindCreate: "CREATE",
		mirror.KindUpdate: "UPDATE",
		mirror.KindMove:   "PUT",
		mirror.KindDelete: "DELETE",
	}
	for kind, want := range tests {
		if got := kind.Action(); got != want {
			t.Errorf("%v.Action() = %q, want %q", kind, got, want)
		}
	}
}

func TestChangeRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     mirror.ChangeRecord
		wantErr bool
	}{
		{"move needs dest", mirror.ChangeRecord{Kind: mirror.KindMove, SourcePath: "/w/a"}, true},
		{"delete has no dest", mirror.ChangeRecord{Kind: mirror.KindDelete, SourcePath: "/w/a", DestPath: "/w/b"}, true},
		{"unknown kind", mirror.ChangeRecord{SourcePath: "/w/a"}, true},
		{"valid move", mirror.ChangeRecord{Kind: mirror.KindMove, SourcePath: "/w/a", DestPath: "/w/b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.rec.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
