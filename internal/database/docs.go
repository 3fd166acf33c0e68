package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ecorpus-go/internal/errs"
	"ecorpus-go/internal/model"
)

func (s *SQLiteDatabase) WriteDoc(ctx context.Context, data string, scene model.SceneRef, authorID int64) (*model.DocRef, error) {
	if !json.Valid([]byte(data)) {
		return nil, errs.BadRequest("document is not valid JSON")
	}

	filter, arg := sceneFilter("s", scene)
	var ref model.DocRef
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO documents (fk_scene_id, generation, data, fk_author_id, ctime)
		SELECT s.scene_id,
			COALESCE((SELECT MAX(generation) FROM documents WHERE fk_scene_id = s.scene_id), 0) + 1,
			@data, @author, @ctime
		FROM scenes AS s
		WHERE `+filter+`
		RETURNING doc_id, generation`,
		arg,
		sql.Named("data", data),
		sql.Named("author", authorID),
		sql.Named("ctime", s.now()),
	).Scan(&ref.ID, &ref.Generation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("can't find a scene matching %s", scene)
	}
	if err != nil {
		return nil, fmt.Errorf("writing document: %w", translateError(err))
	}
	return &ref, nil
}

func (s *SQLiteDatabase) GetDoc(ctx context.Context, sceneID int64, generation int64) (*model.DocProps, error) {
	query := docSelect + ` WHERE d.fk_scene_id = @scene`
	args := []any{sql.Named("scene", sceneID)}
	if generation > 0 {
		query += ` AND d.generation = @generation`
		args = append(args, sql.Named("generation", generation))
	}
	query += ` ORDER BY d.generation DESC LIMIT 1`

	doc, err := scanDoc(s.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		if generation > 0 {
			return nil, errs.NotFound("no document generation %d for scene_id %d", generation, sceneID)
		}
		return nil, errs.NotFound("no document for scene_id %d", sceneID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteDatabase) GetDocByID(ctx context.Context, id int64) (*model.DocProps, error) {
	doc, err := scanDoc(s.q.QueryRowContext(ctx, docSelect+` WHERE d.doc_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("no document with id %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

func (s *SQLiteDatabase) GetDocHistory(ctx context.Context, sceneID int64) ([]*model.DocProps, error) {
	rows, err := s.q.QueryContext(ctx, docSelect+`
		WHERE d.fk_scene_id = ?
		ORDER BY d.generation DESC`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("getting document history: %w", err)
	}
	defer rows.Close()

	var docs []*model.DocProps
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("getting document history: %w", err)
	}
	if len(docs) == 0 {
		return nil, errs.NotFound("no document for scene_id %d", sceneID)
	}
	return docs, nil
}
