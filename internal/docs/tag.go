package docs

import (
	"strings"
	"time"

	"github.com/existflow/duetask/internal/model"
	"github.com/existflow/duetask/internal/remote"
)

// Tag document fields
const (
	TagName  = "name"
	TagColor = "col"
	TagIcon  = "symImage"
	TagOwner = "owner_id"
)

// EncodeTag returns the document form of t
func EncodeTag(t model.Tag) remote.Data {
	c := t.Color.Clamp()
	d := remote.Data{
		FieldVersion: Version,
		TagName:      t.Name,
		TagColor: map[string]any{
			"r": c.R,
			"g": c.G,
			"b": c.B,
			"a": c.A,
		},
		TagIcon:  t.Icon,
		TagOwner: t.OwnerID,
	}
	if !t.CreatedAt.IsZero() {
		d[FieldCreatedAt] = formatTime(t.CreatedAt)
	}
	return d
}

// DecodeTag builds a synced tag from a document
func DecodeTag(doc remote.Document) (model.Tag, error) {
	d := doc.Data

	name, ok := getString(d, TagName)
	if !ok || strings.TrimSpace(name) == "" {
		return model.Tag{}, missing(TagName)
	}
	col, ok := d[TagColor].(map[string]any)
	if !ok {
		return model.Tag{}, missing(TagColor)
	}
	var c model.RGBA
	for key, dst := range map[string]*float64{"r": &c.R, "g": &c.G, "b": &c.B, "a": &c.A} {
		v, ok := getFloat(col, key)
		if !ok {
			return model.Tag{}, missing(TagColor + "." + key)
		}
		*dst = v
	}

	t := model.Tag{
		RemoteID:     doc.ID,
		Name:         strings.TrimSpace(name),
		Color:        c.Clamp(),
		Synced:       true,
		RemoteDigest: Digest(d),
	}
	t.Icon, _ = getString(d, TagIcon)
	t.OwnerID, _ = getString(d, TagOwner)

	if created, ok, _ := getTime(d, FieldCreatedAt); ok {
		t.CreatedAt = created
	} else {
		t.CreatedAt = time.Now()
	}
	t.UpdatedAt = t.CreatedAt
	if modified, ok, _ := getTime(d, FieldLastModified); ok {
		t.UpdatedAt = modified
	}
	return t, nil
}
