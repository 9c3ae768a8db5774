package api

import (
	"context"
	"errors"
	"fmt"

	"labeldesk/internal/dispatch"
	"labeldesk/internal/items"
)

// ItemStore abstracts the persistence calls the API needs.
type ItemStore interface {
	Get(ctx context.Context, id string) (*items.Record, error)
	List(ctx context.Context, filter items.Filter) ([]*items.Record, error)
	Put(ctx context.Context, record *items.Record) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher is the slice of the dispatch engine the item service drives.
// dispatch.Engine satisfies it.
type Dispatcher interface {
	Forget(ctx context.Context, id string) error
	Result(ctx context.Context, id string) (items.Result, error)
	SetResult(ctx context.Context, id string, fields map[string]*string) (items.Result, error)
	EnqueueNew(ctx context.Context, id string, result items.Result) (bool, error)
}

// ItemService exposes operator item operations returning API DTOs.
type ItemService struct {
	store    ItemStore
	engine   Dispatcher
	required []string
}

// NewItemService constructs an ItemService. required lists the result fields
// that make an item complete.
func NewItemService(store ItemStore, engine Dispatcher, required []string) *ItemService {
	if store == nil {
		return nil
	}
	return &ItemService{store: store, engine: engine, required: append([]string(nil), required...)}
}

// List returns stored items matching filter.
func (s *ItemService) List(ctx context.Context, filter items.Filter, detailed bool) (ItemListResponse, error) {
	if s == nil {
		return ItemListResponse{IDs: []string{}}, nil
	}
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return ItemListResponse{}, err
	}
	return FromRecords(records, s.required, detailed), nil
}

// Describe fetches a single item. Missing ids return items.ErrNotFound.
func (s *ItemService) Describe(ctx context.Context, id string) (*Item, error) {
	if s == nil {
		return nil, items.ErrNotFound
	}
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromRecord(record, s.required)
	return &dto, nil
}

// Collect returns the result for id. A complete result is handed over once:
// the item is dropped from the dispatcher and its record and file are
// deleted. Incomplete results are returned without side effects. The
// dispatcher's copy of the result wins over the stored one, which may lag.
func (s *ItemService) Collect(ctx context.Context, id string) (*ResultResponse, error) {
	if s == nil {
		return nil, items.ErrNotFound
	}
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	result := record.Result
	if s.engine != nil {
		live, err := s.engine.Result(ctx, id)
		switch {
		case err == nil:
			result = live
		case !errors.Is(err, dispatch.ErrUnknownItem):
			return nil, err
		}
	}
	resp := s.resultResponse(id, result)
	if !resp.Complete {
		return resp, nil
	}
	if s.engine != nil {
		if err := s.engine.Forget(ctx, id); err != nil {
			if errors.Is(err, dispatch.ErrItemBusy) {
				// Reopened by a worker; leave it in place until they finish.
				return resp, nil
			}
			if !errors.Is(err, dispatch.ErrUnknownItem) {
				return nil, err
			}
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("remove collected item: %w", err)
	}
	resp.Removed = true
	return resp, nil
}

// SetResult merges operator-supplied fields into an item's result. Items the
// dispatcher tracks are updated through it so workers see the change; others
// are written to the store and, when still incomplete, handed to the
// dispatcher as new work.
func (s *ItemService) SetResult(ctx context.Context, id string, fields map[string]*string) (*ResultResponse, error) {
	if s == nil {
		return nil, items.ErrNotFound
	}
	if s.engine == nil {
		return nil, dispatch.ErrEngineStopped
	}
	result, err := s.engine.SetResult(ctx, id, fields)
	if err == nil {
		return s.resultResponse(id, result), nil
	}
	if !errors.Is(err, dispatch.ErrUnknownItem) {
		return nil, err
	}

	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Result = record.Result.Merge(fields)
	if err := s.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}
	resp := s.resultResponse(id, record.Result)
	if !resp.Complete {
		if _, err := s.engine.EnqueueNew(ctx, id, record.Result); err != nil {
			return nil, fmt.Errorf("enqueue %s: %w", id, err)
		}
	}
	return resp, nil
}

func (s *ItemService) resultResponse(id string, result items.Result) *ResultResponse {
	return &ResultResponse{
		ID:       id,
		Complete: result.Complete(s.required),
		Missing:  result.Missing(s.required),
		Result:   result.Clone(),
	}
}
