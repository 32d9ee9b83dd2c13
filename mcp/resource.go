package mcp

import (
	"net/url"
	"strings"

	"github.com/teranos/storyline/entity"
	"github.com/teranos/storyline/errors"
)

// ResourceScheme is the URI scheme of every storyline resource.
const ResourceScheme = "storyline"

// ResourceType is the first segment of a resource URI.
type ResourceType string

const (
	ResourceCharacter     ResourceType = "character"
	ResourceSetting       ResourceType = "setting"
	ResourceForeshadowing ResourceType = "foreshadowing"
	ResourceTimeline      ResourceType = "timeline"
	// ResourceEntities lists every entity of the project
	ResourceEntities ResourceType = "entities"
	// ResourceProject summarises the project
	ResourceProject ResourceType = "project"
)

// ResourceTypes in the order resources are advertised.
var ResourceTypes = []ResourceType{
	ResourceCharacter,
	ResourceSetting,
	ResourceForeshadowing,
	ResourceTimeline,
	ResourceEntities,
	ResourceProject,
}

// Kind returns the entity kind a type addresses, if any.
func (t ResourceType) Kind() (entity.Kind, bool) {
	return entity.ParseKind(string(t))
}

// ResourceRef is a parsed resource URI. ID is empty when the URI names a
// whole collection.
type ResourceRef struct {
	Type ResourceType
	ID   string
}

// String renders the ref back into its URI form.
func (r ResourceRef) String() string {
	s := ResourceScheme + "://" + string(r.Type)
	if r.ID != "" {
		s += "/" + url.PathEscape(r.ID)
	}
	return s
}

// ParseResourceURI parses storyline://type[/id]. Both failure sentinels,
// ErrUnsupportedScheme and ErrUnknownResourceType, are also marked as
// ErrInvalidRequest.
func ParseResourceURI(uri string) (ResourceRef, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme != ResourceScheme {
		return ResourceRef{}, invalid(errors.Wrapf(errors.ErrUnsupportedScheme, "resource %q", uri))
	}

	rest = strings.TrimSuffix(rest, "/")
	typ, id, _ := strings.Cut(rest, "/")

	ref := ResourceRef{Type: ResourceType(typ)}
	if !knownType(ref.Type) {
		return ResourceRef{}, invalid(errors.Wrapf(errors.ErrUnknownResourceType, "resource %q has type %q", uri, typ))
	}

	if id != "" {
		if _, isKind := ref.Type.Kind(); !isKind {
			return ResourceRef{}, errors.NewInvalidRequestError("resource type %q does not take an id", typ)
		}
		unescaped, err := url.PathUnescape(id)
		if err != nil || strings.Contains(unescaped, "/") {
			return ResourceRef{}, errors.NewInvalidRequestError("malformed resource id %q", id)
		}
		ref.ID = unescaped
	}
	return ref, nil
}

func knownType(t ResourceType) bool {
	for _, known := range ResourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

func invalid(err error) error {
	return errors.Mark(err, errors.ErrInvalidRequest)
}
