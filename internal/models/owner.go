package models

import (
	"fmt"
	"strconv"
	"strings"
)

// OwnerKind tells which kind of entity an embedding belongs to.
type OwnerKind string

const (
	OwnerFace OwnerKind = "face"
	OwnerFile OwnerKind = "file"
)

// Owner references the entity that owns a set of embeddings: an uploaded
// probe face or an uploaded event photo.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   int64     `json:"id"`
}

func FaceOwner(id int64) Owner { return Owner{Kind: OwnerFace, ID: id} }
func FileOwner(id int64) Owner { return Owner{Kind: OwnerFile, ID: id} }

func (o Owner) IsFace() bool { return o.Kind == OwnerFace }
func (o Owner) IsFile() bool { return o.Kind == OwnerFile }

// Valid reports whether the owner has a known kind and a positive id.
func (o Owner) Valid() bool {
	switch o.Kind {
	case OwnerFace, OwnerFile:
		return o.ID > 0
	default:
		return false
	}
}

func (o Owner) String() string {
	return string(o.Kind) + ":" + strconv.FormatInt(o.ID, 10)
}

// ParseOwner parses the "kind:id" form produced by Owner.String.
func ParseOwner(s string) (Owner, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return Owner{}, fmt.Errorf("parse owner %q: missing separator", s)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return Owner{}, fmt.Errorf("parse owner %q: %w", s, err)
	}
	o := Owner{Kind: OwnerKind(kind), ID: n}
	if !o.Valid() {
		return Owner{}, fmt.Errorf("parse owner %q: invalid owner", s)
	}
	return o, nil
}
