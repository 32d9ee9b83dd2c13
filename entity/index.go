package entity

import (
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Term is one vocabulary string and the entity it names.
type Term struct {
	Text   string
	Entity *DetectableEntity
}

// Index is the normalized, queryable set of entities of one project.
// It is immutable after construction and safe for concurrent use.
type Index struct {
	entities []*DetectableEntity
	byID     map[string]*DetectableEntity
	byKind   map[Kind][]*DetectableEntity

	// vocabulary is ordered by descending rune length, then text, so the
	// longest candidate wins in an alternation
	vocabulary []Term
	// idVocabulary is vocabulary plus every entity id, for frontmatter
	idVocabulary []Term
}

// NewIndex builds an index over entities. Entities with an empty id are
// dropped; a duplicate id keeps the first occurrence. When two entities share
// a vocabulary term the earlier entity owns it.
func NewIndex(entities []DetectableEntity, log *zap.SugaredLogger) *Index {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	idx := &Index{
		entities: make([]*DetectableEntity, 0, len(entities)),
		byID:     make(map[string]*DetectableEntity, len(entities)),
		byKind:   make(map[Kind][]*DetectableEntity),
	}

	for i := range entities {
		e := entities[i]
		if e.ID == "" {
			log.Warnw("Skipping entity without id", "name", e.CanonicalName, "source", e.SourcePath)
			continue
		}
		if prev, dup := idx.byID[e.ID]; dup {
			log.Warnw("Duplicate entity id, keeping first",
				"entity_id", e.ID,
				"kept", prev.SourcePath,
				"dropped", e.SourcePath,
			)
			continue
		}
		ent := &e
		idx.entities = append(idx.entities, ent)
		idx.byID[ent.ID] = ent
		idx.byKind[ent.Kind] = append(idx.byKind[ent.Kind], ent)
	}

	idx.vocabulary = buildVocabulary(idx.entities, false)
	idx.idVocabulary = buildVocabulary(idx.entities, true)
	return idx
}

func buildVocabulary(entities []*DetectableEntity, withIDs bool) []Term {
	owner := make(map[string]*DetectableEntity)
	var terms []Term
	add := func(text string, e *DetectableEntity) {
		if text == "" {
			return
		}
		if _, taken := owner[text]; taken {
			return
		}
		owner[text] = e
		terms = append(terms, Term{Text: text, Entity: e})
	}

	for _, e := range entities {
		for _, t := range e.Terms() {
			add(t, e)
		}
	}
	if withIDs {
		for _, e := range entities {
			add(e.ID, e)
		}
	}

	sort.SliceStable(terms, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(terms[i].Text), utf8.RuneCountInString(terms[j].Text)
		if li != lj {
			return li > lj
		}
		return terms[i].Text < terms[j].Text
	})
	return terms
}

// Len returns the number of indexed entities.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entities)
}

// Entities returns the indexed entities in load order.
func (idx *Index) Entities() []*DetectableEntity {
	if idx == nil {
		return nil
	}
	return idx.entities
}

// Get returns the entity with the given id.
func (idx *Index) Get(id string) (*DetectableEntity, bool) {
	if idx == nil {
		return nil, false
	}
	e, ok := idx.byID[id]
	return e, ok
}

// ByKind returns the entities of one kind in load order.
func (idx *Index) ByKind(kind Kind) []*DetectableEntity {
	if idx == nil {
		return nil
	}
	return idx.byKind[kind]
}

// Vocabulary returns the name/alias terms, longest first.
func (idx *Index) Vocabulary() []Term {
	if idx == nil {
		return nil
	}
	return idx.vocabulary
}

// IDVocabulary returns Vocabulary plus entity ids, longest first.
func (idx *Index) IDVocabulary() []Term {
	if idx == nil {
		return nil
	}
	return idx.idVocabulary
}
