package vfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/model"
	"ecorpus-go/internal/pointers"
)

// ModelMime is the mime type of models written by ImportScene.
const ModelMime = "model/gltf-binary"

type docKey struct {
	sceneID    int64
	generation int64
}

// Vfs is the storage engine: scene metadata lives in the Database, file
// content in the ObjectStore.
//
// Document generations are immutable, so reads of a known generation are
// served from an LRU cache. Scoped engines from Transaction and Isolate
// bypass the cache because their writes may still roll back.
type Vfs struct {
	db      Database
	objects ObjectStore
	logger  Logger
	docs    *lru.Cache[docKey, *model.DocProps]
	scoped  bool
}

// New creates an engine. A docCacheSize of 0 disables the document cache.
func New(db Database, objects ObjectStore, logger Logger, docCacheSize int) (*Vfs, error) {
	if logger == nil {
		logger = NewNopLogger()
	}
	v := &Vfs{db: db, objects: objects, logger: logger}
	if docCacheSize > 0 {
		cache, err := lru.New[docKey, *model.DocProps](docCacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating document cache: %w", err)
		}
		v.docs = cache
	}
	return v, nil
}

// DB returns the engine's database session.
func (v *Vfs) DB() Database { return v.db }

// Objects returns the engine's object store.
func (v *Vfs) Objects() ObjectStore { return v.objects }

func (v *Vfs) scope(tx Database) *Vfs {
	return &Vfs{db: tx, objects: v.objects, logger: v.logger, docs: v.docs, scoped: true}
}

// Transaction runs work with an engine bound to a database transaction.
func (v *Vfs) Transaction(ctx context.Context, work func(tx *Vfs) error) error {
	return v.db.Transaction(ctx, func(tx Database) error {
		return work(v.scope(tx))
	})
}

// Isolate runs work with an engine bound to a new, independent transaction.
// Objects written within the scope stay in the object store when it rolls back.
func (v *Vfs) Isolate(ctx context.Context, work func(tx *Vfs) error) error {
	return v.db.Isolate(ctx, func(tx Database) error {
		return work(v.scope(tx))
	})
}

// CreateScene registers a scene and logs its creation.
func (v *Vfs) CreateScene(ctx context.Context, name string, authorID int64) (int64, error) {
	id, err := v.db.CreateScene(ctx, name, authorID)
	if err != nil {
		return 0, err
	}
	v.logger.Info("scene created", "scene", name, "id", id, "author", authorID)
	return id, nil
}

// RemoveScene deletes a scene and forgets its cached documents.
func (v *Vfs) RemoveScene(ctx context.Context, scene model.SceneRef) error {
	id := scene.ID
	if id == 0 {
		s, err := v.db.GetScene(ctx, scene, 0)
		if err != nil {
			return err
		}
		id = s.ID
	}
	if err := v.db.RemoveScene(ctx, model.ByID(id)); err != nil {
		return err
	}
	v.purgeDocs(id)
	v.logger.Info("scene removed", "scene", scene.String(), "id", id)
	return nil
}

// WriteFile stores the content of r and records it as the next generation of p.
func (v *Vfs) WriteFile(ctx context.Context, r io.Reader, p model.FileParams) (*model.FileProps, error) {
	obj, err := v.objects.Put(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("storing content of %s: %w", p.Name, err)
	}
	props, err := v.db.CreateFile(ctx, p, obj.Hash, obj.Size)
	if err != nil {
		return nil, err
	}
	v.logger.Info("file written", "scene", p.Scene.String(), "name", props.Name,
		"generation", props.Generation, "size", props.Size)
	return props, nil
}

// RemoveFile records a delete marker for p.
func (v *Vfs) RemoveFile(ctx context.Context, p model.FileParams) (*model.FileProps, error) {
	props, err := v.db.RemoveFile(ctx, p)
	if err != nil {
		return nil, err
	}
	v.logger.Info("file removed", "scene", p.Scene.String(), "name", props.Name, "generation", props.Generation)
	return props, nil
}

// RenameFile moves p to next.
func (v *Vfs) RenameFile(ctx context.Context, p model.FileParams, next string) (*model.FileProps, error) {
	props, err := v.db.RenameFile(ctx, p, next)
	if err != nil {
		return nil, err
	}
	v.logger.Info("file renamed", "scene", p.Scene.String(), "from", p.Name, "to", props.Name)
	return props, nil
}

// GetFile returns the current generation of p with a reader over its
// content. The caller must close the reader. A delete marker, only returned
// when p.Archive is set, has empty content.
func (v *Vfs) GetFile(ctx context.Context, p model.FileParams) (*model.FileProps, io.ReadCloser, error) {
	props, err := v.db.GetFileProps(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	body, err := v.Open(ctx, props)
	if err != nil {
		return nil, nil, err
	}
	return props, body, nil
}

// Open returns a reader over the content of a file generation.
func (v *Vfs) Open(ctx context.Context, props *model.FileProps) (io.ReadCloser, error) {
	if props.IsFolder() {
		return nil, errs.BadRequest("%s is a directory", props.Name)
	}
	if props.Deleted() {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return v.objects.Open(ctx, props.Hash)
}

// WriteDoc records the next document generation of a scene.
func (v *Vfs) WriteDoc(ctx context.Context, data string, scene model.SceneRef, authorID int64) (*model.DocRef, error) {
	ref, err := v.db.WriteDoc(ctx, data, scene, authorID)
	if err != nil {
		return nil, err
	}
	v.logger.Debug("document written", "scene", scene.String(), "generation", ref.Generation)
	return ref, nil
}

// GetDoc returns a document generation of a scene; 0 means the latest.
func (v *Vfs) GetDoc(ctx context.Context, sceneID, generation int64) (*model.DocProps, error) {
	useCache := v.docs != nil && !v.scoped
	if useCache && generation > 0 {
		if doc, ok := v.docs.Get(docKey{sceneID, generation}); ok {
			DocumentCacheHits.Inc()
			return doc, nil
		}
		DocumentCacheMisses.Inc()
	}

	doc, err := v.db.GetDoc(ctx, sceneID, generation)
	if err != nil {
		return nil, err
	}
	if useCache {
		v.docs.Add(docKey{doc.SceneID, doc.Generation}, doc)
	}
	return doc, nil
}

func (v *Vfs) purgeDocs(sceneID int64) {
	if v.docs == nil {
		return
	}
	for _, k := range v.docs.Keys() {
		if k.sceneID == sceneID {
			v.docs.Remove(k)
		}
	}
}

// GetDerefDoc returns a document generation in its nested form.
func (v *Vfs) GetDerefDoc(ctx context.Context, sceneID, generation int64) (*pointers.DerefDocument, *model.DocProps, error) {
	props, err := v.GetDoc(ctx, sceneID, generation)
	if err != nil {
		return nil, nil, err
	}
	var doc pointers.Document
	if err := json.Unmarshal([]byte(props.Data), &doc); err != nil {
		return nil, nil, fmt.Errorf("parsing document %d of scene %d: %w", props.Generation, sceneID, err)
	}
	deref, err := pointers.ToPointers(&doc)
	if err != nil {
		return nil, nil, fmt.Errorf("document %d of scene %d: %w", props.Generation, sceneID, err)
	}
	return deref, props, nil
}

// WriteDerefDoc flattens deref and records it as the next document generation.
func (v *Vfs) WriteDerefDoc(ctx context.Context, deref *pointers.DerefDocument, scene model.SceneRef, authorID int64) (*model.DocRef, error) {
	data, err := json.Marshal(pointers.FromPointers(deref))
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return v.WriteDoc(ctx, string(data), scene, authorID)
}

// ImportScene creates a scene around a glTF binary model: the model is
// written to models/<name>.glb and a default document shows it. When a
// step fails the scene is removed again; the original error is returned.
func (v *Vfs) ImportScene(ctx context.Context, name string, authorID int64, glb io.Reader) (int64, error) {
	id, err := v.CreateScene(ctx, name, authorID)
	if err != nil {
		return 0, err
	}

	if err := v.populateScene(ctx, id, name, authorID, glb); err != nil {
		if rmErr := v.db.RemoveScene(context.WithoutCancel(ctx), model.ByID(id)); rmErr != nil {
			v.logger.Warn("failed to remove incomplete scene", "scene", name, "id", id, "error", rmErr)
		}
		v.purgeDocs(id)
		return 0, err
	}
	return id, nil
}

func (v *Vfs) populateScene(ctx context.Context, id int64, name string, authorID int64, glb io.Reader) error {
	modelName := "models/" + name + ".glb"
	props, err := v.WriteFile(ctx, glb, model.FileParams{
		Scene:  model.ByID(id),
		Name:   modelName,
		UserID: authorID,
		Mime:   ModelMime,
	})
	if err != nil {
		return err
	}

	data, err := json.Marshal(pointers.NewDocument(name, modelName, props.Size))
	if err != nil {
		return fmt.Errorf("encoding default document: %w", err)
	}
	_, err = v.WriteDoc(ctx, string(data), model.ByID(id), authorID)
	return err
}
