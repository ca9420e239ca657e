package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/conneroisu/templens/internal/types"
)

// FuzzMutationSequence drives the manager through arbitrary operation
// sequences on one project and one document and checks the structural
// invariants that must hold after any history: snapshots stay readable, the
// version counter never decreases, and repeated reads without an intervening
// mutation return the identical snapshot.
func FuzzMutationSequence(f *testing.F) {
	f.Add([]byte{0, 2, 4, 5, 5, 6, 3, 1})
	f.Add([]byte{0, 2, 4, 4, 4})
	f.Add([]byte{2, 4, 0, 2, 5, 1, 0})
	f.Add([]byte{0, 2, 6, 2, 4, 3})

	texts := []string{"X", "Y", "Z"}

	f.Fuzz(func(t *testing.T, ops []byte) {
		if len(ops) > 64 {
			ops = ops[:64]
		}
		fx := newFixture(t)

		descriptor := fx.descriptor()
		doc := fx.docDescriptor()
		lastVersion := int32(-1)

		// Failures are collected and raised after the foreground closure
		// returns; failing inside it would stall the scheduler.
		var violation string

		for _, op := range ops {
			fx.run(func(ctx context.Context) {
				switch op % 7 {
				case 0:
					fx.manager.ProjectAdded(ctx, descriptor)
				case 1:
					fx.manager.ProjectRemoved(ctx, descriptor)
					lastVersion = -1
				case 2:
					fx.manager.DocumentAdded(ctx, doc, types.StaticLoader(types.TextAndVersion{Text: "X"}))
				case 3:
					fx.manager.DocumentRemoved(ctx, doc)
					lastVersion = -1
				case 4:
					fx.manager.DocumentOpened(ctx, projectPath, docPath, texts[int(op)%len(texts)])
				case 5:
					fx.manager.DocumentChanged(ctx, projectPath, docPath, texts[int(op)%len(texts)])
				case 6:
					fx.manager.DocumentClosed(ctx, projectPath, docPath,
						types.StaticLoader(types.TextAndVersion{Text: texts[int(op)%len(texts)]}))
				}

				snap, ok := fx.manager.GetLoadedProject(ctx, projectPath)
				if !ok {
					return
				}
				again, _ := fx.manager.GetLoadedProject(ctx, projectPath)
				if snap != again {
					violation = "snapshot not stable between reads without mutation"
					return
				}
				d, ok := snap.Document(docPath)
				if !ok {
					return
				}
				if tv, ok := d.TryContent(); ok {
					if tv.Version < lastVersion {
						violation = fmt.Sprintf("version went backwards: %d -> %d", lastVersion, tv.Version)
						return
					}
					lastVersion = tv.Version
				}
			})
			if violation != "" {
				t.Fatal(violation)
			}
		}

		// The open set only ever refers to the tracked document.
		fx.run(func(ctx context.Context) {
			for _, path := range fx.manager.OpenDocuments(ctx) {
				if path != docPath {
					violation = fmt.Sprintf("unexpected open document %s", path)
				}
			}
		})
		if violation != "" {
			t.Fatal(violation)
		}

		for _, ev := range fx.recorder.events {
			if ev.Type == types.EventTypeProjectRemoved {
				if ev.New != nil {
					t.Fatal("project_removed must carry a nil new snapshot")
				}
				continue
			}
			if ev.New == nil {
				t.Fatalf("%s event missing new snapshot", ev.Type)
			}
		}
	})
}
