// Package remote is the document database the engines synchronize with.
//
// Documents live at slash-separated paths alternating collection and id
// segments ("users/{uid}/personal_tasks/{id}"). Store is implemented by an
// in-process Memory store and by an HTTP Client talking to duetask-server.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrInvalidPath      = errors.New("invalid document path")
	ErrPermissionDenied = errors.New("permission denied")
)

// ServerTimestamp is replaced by the store's clock when written as a
// top-level field value
const ServerTimestamp = "$serverTimestamp"

// Collection names
const (
	Users          = "users"
	FriendRequests = "friend_requests"

	PersonalTasks = "personal_tasks"
	Tags          = "tags"
	IncomingTasks = "incoming_tasks"
	OutgoingTasks = "outgoing_tasks"
	Friends       = "friends"
)

// Data is the field map of a document
type Data map[string]any

// Document is a stored document with its id and full path
type Document struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Data Data   `json:"data"`
}

// Filter is an equality match on a top-level field
type Filter struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Where builds an equality Filter
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Store is the remote document service
type Store interface {
	// Get returns the document at path or ErrNotFound
	Get(ctx context.Context, path string) (Document, error)
	// List returns the documents of a collection matching every filter
	List(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Create stores data under a new server-assigned id and returns the id
	Create(ctx context.Context, collection string, data Data) (string, error)
	// Set creates or overwrites the document at path
	Set(ctx context.Context, path string, data Data) error
	// Update merges data into an existing document or returns ErrNotFound
	Update(ctx context.Context, path string, data Data) error
	// Delete removes the document at path. Missing documents are not an error.
	Delete(ctx context.Context, path string) error
	// Commit applies every operation of the batch or none of them
	Commit(ctx context.Context, b *Batch) error
}

// NewID returns a fresh document id
func NewID() string {
	return uuid.NewString()
}

// UserCollection returns the path of a per-user collection
func UserCollection(uid, name string) string {
	return Users + "/" + uid + "/" + name
}

// Doc joins a collection path and a document id
func Doc(collection, id string) string {
	return collection + "/" + id
}

// UserDoc returns the profile document path of uid
func UserDoc(uid string) string {
	return Doc(Users, uid)
}

// SplitDoc splits a document path into its collection path and id
func SplitDoc(path string) (collection, id string, err error) {
	if err := ValidateDocPath(path); err != nil {
		return "", "", err
	}
	i := strings.LastIndex(path, "/")
	return path[:i], path[i+1:], nil
}

// ValidateDocPath checks that path names a document
func ValidateDocPath(path string) error {
	n, err := segments(path)
	if err != nil {
		return err
	}
	if n%2 != 0 {
		return fmt.Errorf("%w: %q is a collection", ErrInvalidPath, path)
	}
	return nil
}

// ValidateCollectionPath checks that path names a collection
func ValidateCollectionPath(path string) error {
	n, err := segments(path)
	if err != nil {
		return err
	}
	if n%2 != 1 {
		return fmt.Errorf("%w: %q is a document", ErrInvalidPath, path)
	}
	return nil
}

func segments(path string) (int, error) {
	if path == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return 0, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return len(parts), nil
}

// OpKind is the kind of a batched write
type OpKind string

const (
	OpSet    OpKind = "set"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one write of a Batch
type Op struct {
	Kind OpKind `json:"kind"`
	Path string `json:"path"`
	Data Data   `json:"data,omitempty"`
}

// Batch collects writes that Commit applies atomically
type Batch struct {
	Ops []Op `json:"ops"`
}

// NewBatch returns an empty batch
func NewBatch() *Batch {
	return &Batch{}
}

// Set queues an overwrite of path
func (b *Batch) Set(path string, data Data) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpSet, Path: path, Data: data})
	return b
}

// Update queues a merge into the existing document at path
func (b *Batch) Update(path string, data Data) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpUpdate, Path: path, Data: data})
	return b
}

// Delete queues a delete of path
func (b *Batch) Delete(path string) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpDelete, Path: path})
	return b
}

// Validate checks every path and op kind of the batch
func (b *Batch) Validate() error {
	for i, op := range b.Ops {
		if err := ValidateDocPath(op.Path); err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
		switch op.Kind {
		case OpSet, OpUpdate, OpDelete:
		default:
			return fmt.Errorf("op %d: unknown kind %q", i, op.Kind)
		}
	}
	return nil
}

// Normalize returns a deep copy of d in its JSON form: numbers become
// float64 and times become RFC3339 strings. Stores keep data normalized so
// every implementation returns the same shapes. Top-level ServerTimestamp
// sentinels are replaced with now.
func Normalize(d Data, now time.Time) (Data, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := Data{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	for k, v := range out {
		if s, ok := v.(string); ok && s == ServerTimestamp {
			out[k] = now.UTC().Format(time.RFC3339Nano)
		}
	}
	return out, nil
}

// Matches reports whether normalized data satisfies every filter
func Matches(d Data, filters []Filter) bool {
	for _, f := range filters {
		want, err := normalizeValue(f.Value)
		if err != nil {
			return false
		}
		got, ok := d[f.Field]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func normalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(raw, &out)
	return out, err
}

// Merge returns base with every top-level field of patch applied
func Merge(base, patch Data) Data {
	out := make(Data, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
