// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/testsync/services/testsync/ident"
	"github.com/AleutianAI/testsync/services/testsync/model"
)

// Wire is the serialized envelope of one operation.
//
// Description:
//
//	Op selects which of the remaining fields are meaningful:
//
//	  OpAdd                   Item
//	  OpUpdate                Update
//	  OpRemove, OpRetire      ItemID
//	  OpIncrementPendingRoots Amount
//	  OpAddTag                Tag
//	  OpRemoveTag             TagID
//	  OpDocumentSynced        URI, Version
//
//	Unused fields are omitted from the JSON encoding.
type Wire struct {
	Op      OpType                        `json:"op"`
	Item    *model.SerializedInternalItem `json:"item,omitempty"`
	Update  *model.SerializedItemUpdate   `json:"update,omitempty"`
	ItemID  string                        `json:"itemId,omitempty"`
	Amount  *int                          `json:"amount,omitempty"`
	Tag     *model.Tag                    `json:"tag,omitempty"`
	TagID   string                        `json:"tagId,omitempty"`
	URI     *model.URIComponents          `json:"uri,omitempty"`
	Version *int                          `json:"docv,omitempty"`
}

// Serialize converts an operation to its wire envelope.
//
// Outputs:
//
//	Wire - The envelope.
//	error - ErrNilOp for a nil op.
func Serialize(op Op) (Wire, error) {
	switch o := op.(type) {
	case nil:
		return Wire{}, ErrNilOp
	case Add:
		item := model.SerializeInternalItem(o.Item)
		return Wire{Op: OpAdd, Item: &item}, nil
	case Update:
		u := model.SerializeItemUpdate(o.Patch)
		return Wire{Op: OpUpdate, Update: &u}, nil
	case Remove:
		return Wire{Op: OpRemove, ItemID: string(o.ID)}, nil
	case Retire:
		return Wire{Op: OpRetire, ItemID: string(o.ID)}, nil
	case IncrementPendingRoots:
		delta := o.Delta
		return Wire{Op: OpIncrementPendingRoots, Amount: &delta}, nil
	case AddTag:
		tag := o.Tag
		return Wire{Op: OpAddTag, Tag: &tag}, nil
	case RemoveTag:
		return Wire{Op: OpRemoveTag, TagID: o.ID}, nil
	case DocumentSynced:
		w := Wire{Op: OpDocumentSynced, URI: model.SerializeURI(o.URI)}
		if o.Version != nil {
			v := *o.Version
			w.Version = &v
		}
		return w, nil
	default:
		return Wire{}, fmt.Errorf("%w: %T", ErrUnknownOp, op)
	}
}

// Deserialize revives an operation from its wire envelope.
//
// Outputs:
//
//	Op - The revived operation.
//	error - ErrUnknownOp for an unrecognised op code, ErrMalformedOp when
//	        a required field is missing, or a model validation error.
func Deserialize(w Wire) (Op, error) {
	switch w.Op {
	case OpAdd:
		if w.Item == nil {
			return nil, fmt.Errorf("%w: add without item", ErrMalformedOp)
		}
		item, err := model.DeserializeInternalItem(*w.Item)
		if err != nil {
			return nil, fmt.Errorf("add: %w", err)
		}
		return Add{Item: item}, nil

	case OpUpdate:
		if w.Update == nil {
			return nil, fmt.Errorf("%w: update without payload", ErrMalformedOp)
		}
		u, err := model.DeserializeItemUpdate(*w.Update)
		if err != nil {
			return nil, fmt.Errorf("update: %w", err)
		}
		return Update{Patch: u}, nil

	case OpRemove, OpRetire:
		if w.ItemID == "" {
			return nil, fmt.Errorf("%w: %s without itemId", ErrMalformedOp, w.Op)
		}
		if w.Op == OpRemove {
			return Remove{ID: ident.ID(w.ItemID)}, nil
		}
		return Retire{ID: ident.ID(w.ItemID)}, nil

	case OpIncrementPendingRoots:
		if w.Amount == nil {
			return nil, fmt.Errorf("%w: pending roots without amount", ErrMalformedOp)
		}
		return IncrementPendingRoots{Delta: *w.Amount}, nil

	case OpAddTag:
		if w.Tag == nil || w.Tag.ID == "" {
			return nil, fmt.Errorf("%w: add tag without id", ErrMalformedOp)
		}
		return AddTag{Tag: *w.Tag}, nil

	case OpRemoveTag:
		if w.TagID == "" {
			return nil, fmt.Errorf("%w: remove tag without id", ErrMalformedOp)
		}
		return RemoveTag{ID: w.TagID}, nil

	case OpDocumentSynced:
		if w.URI == nil {
			return nil, fmt.Errorf("%w: document synced without uri", ErrMalformedOp)
		}
		return DocumentSynced{URI: model.DeserializeURI(w.URI), Version: w.Version}, nil

	default:
		return nil, fmt.Errorf("%w: code %d", ErrUnknownOp, int(w.Op))
	}
}

// Marshal encodes an operation as JSON.
func Marshal(op Op) ([]byte, error) {
	w, err := Serialize(op)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Unmarshal decodes a JSON-encoded operation.
func Unmarshal(data []byte) (Op, error) {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOp, err)
	}
	return Deserialize(w)
}

// SerializeBatch converts a batch of operations to wire envelopes.
func SerializeBatch(ops []Op) ([]Wire, error) {
	out := make([]Wire, 0, len(ops))
	for i, op := range ops {
		w, err := Serialize(op)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		out = append(out, w)
	}
	return out, nil
}

// DeserializeBatch revives a batch of wire envelopes.
func DeserializeBatch(ws []Wire) ([]Op, error) {
	out := make([]Op, 0, len(ws))
	for i, w := range ws {
		op, err := Deserialize(w)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		out = append(out, op)
	}
	return out, nil
}
