package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"carsucart/models"
)

// Shape is the envelope a list response arrived in.
type Shape int

const (
	// ShapeBare is a top-level JSON array.
	ShapeBare Shape = iota
	// ShapeFlat is {success, data:[...]}.
	ShapeFlat
	// ShapePaginated is {success, data:{data:[...], current_page, ...}}.
	ShapePaginated
)

func (s Shape) String() string {
	switch s {
	case ShapeBare:
		return "bare"
	case ShapeFlat:
		return "flat"
	case ShapePaginated:
		return "paginated"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// List is a decoded list response. Page is only set for ShapePaginated;
// for the other shapes it describes a single page holding every item.
type List[T any] struct {
	Items []T
	Shape Shape
	Page  models.Page
}

var errShape = errors.New("unrecognized response shape")

type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) failure() error {
	if e.Success == nil || *e.Success {
		return nil
	}
	msg := e.Message
	if msg == "" {
		msg = e.Error
	}
	if msg == "" {
		msg = "request failed"
	}
	return &APIError{Message: msg}
}

func isNull(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// DecodeList normalizes any of the three list envelopes into a List.
// Missing or null data yields an empty list; success:false yields an
// *APIError.
func DecodeList[T any](raw []byte) (List[T], error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return single[T](nil, ShapeBare), nil
	}

	switch raw[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return List[T]{}, fmt.Errorf("decode list: %w", err)
		}
		return single(items, ShapeBare), nil
	case '{':
	default:
		return List[T]{}, errShape
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return List[T]{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.failure(); err != nil {
		return List[T]{}, err
	}

	data := bytes.TrimSpace(env.Data)
	if isNull(data) {
		return single[T](nil, ShapeFlat), nil
	}
	switch data[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return List[T]{}, fmt.Errorf("decode list: %w", err)
		}
		return single(items, ShapeFlat), nil
	case '{':
		var page struct {
			Data []T `json:"data"`
			models.Page
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return List[T]{}, fmt.Errorf("decode page: %w", err)
		}
		if page.Data == nil {
			page.Data = []T{}
		}
		return List[T]{Items: page.Data, Shape: ShapePaginated, Page: page.Page}, nil
	}
	return List[T]{}, errShape
}

func single[T any](items []T, shape Shape) List[T] {
	if items == nil {
		items = []T{}
	}
	return List[T]{
		Items: items,
		Shape: shape,
		Page:  models.NewPage(1, len(items), int64(len(items))),
	}
}

// DecodeItem unwraps {success, data} around a single object. A body
// without a success member is decoded as the object itself.
func DecodeItem[T any](raw []byte) (T, error) {
	var out T
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Success == nil {
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, fmt.Errorf("decode item: %w", err)
		}
		return out, nil
	}
	if err := env.failure(); err != nil {
		return out, err
	}
	if isNull(env.Data) {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode item: %w", err)
	}
	return out, nil
}
