package workqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gcasillas/clinical-imaging/internal/domain/admission"
	"github.com/gcasillas/clinical-imaging/internal/domain/annotation"
	"github.com/gcasillas/clinical-imaging/internal/domain/source"
	"github.com/gcasillas/clinical-imaging/internal/platform/dicomweb"
)

var (
	ErrSessionNotFound = errors.New("workqueue: session not found")
	ErrUnknownItem     = errors.New("workqueue: unknown item")
)

// Item kinds.
const (
	KindStudy     = "study"
	KindAdmission = "admission"
)

// Item is one row of the workqueue list.
type Item struct {
	Key         string     `json:"key"`
	Kind        string     `json:"kind"`
	Label       string     `json:"label"`
	Status      string     `json:"status,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
}

// ItemKey builds the list key for a record of the given kind.
func ItemKey(kind, id string) string {
	return kind + ":" + id
}

type session struct {
	mu      sync.Mutex
	state   State
	itemKey string
}

// Coordinator holds one State per viewer session. Sessions are isolated from
// each other; transitions within a session are serialised.
type Coordinator struct {
	annotator  annotation.Annotator
	mapper     StudyMapper
	catalog    *StudyCatalog
	admissions admission.Store
	logger     zerolog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

func NewCoordinator(annotator annotation.Annotator, mapper StudyMapper, catalog *StudyCatalog, admissions admission.Store, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		annotator:  annotator,
		mapper:     mapper,
		catalog:    catalog,
		admissions: admissions,
		logger:     logger.With().Str("component", "workqueue").Logger(),
		sessions:   make(map[uuid.UUID]*session),
	}
}

// Catalog returns the study catalog backing the list.
func (c *Coordinator) Catalog() *StudyCatalog { return c.catalog }

// Items lists catalog studies in arrival order, then admissions newest first.
func (c *Coordinator) Items(ctx context.Context) ([]Item, error) {
	keys := c.catalog.Keys()
	items := make([]Item, 0, len(keys))
	for _, key := range keys {
		md, ok := c.catalog.Get(key)
		if !ok {
			continue
		}
		src := source.FromStudy(md)
		items = append(items, Item{
			Key:   ItemKey(KindStudy, key),
			Kind:  KindStudy,
			Label: src.SubjectName(),
		})
	}

	recs, _, err := c.admissions.List(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list admissions: %w", err)
	}
	for _, rec := range recs {
		updated := rec.LastUpdated
		items = append(items, Item{
			Key:         ItemKey(KindAdmission, rec.ID),
			Kind:        KindAdmission,
			Label:       rec.FullName,
			Status:      string(rec.Status),
			LastUpdated: &updated,
		})
	}
	return items, nil
}

// Resolve looks up the source record behind an item key.
func (c *Coordinator) Resolve(ctx context.Context, key string) (source.Record, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return source.Record{}, fmt.Errorf("%w: %q", ErrUnknownItem, key)
	}
	switch kind {
	case KindStudy:
		md, ok := c.catalog.Get(id)
		if !ok {
			return source.Record{}, fmt.Errorf("%w: %q", ErrUnknownItem, key)
		}
		return source.FromStudy(md), nil
	case KindAdmission:
		rec, err := c.admissions.Get(ctx, id)
		if errors.Is(err, admission.ErrNotFound) {
			return source.Record{}, fmt.Errorf("%w: %q", ErrUnknownItem, key)
		}
		if err != nil {
			return source.Record{}, fmt.Errorf("get admission: %w", err)
		}
		return source.FromAdmission(rec), nil
	default:
		return source.Record{}, fmt.Errorf("%w: %q", ErrUnknownItem, key)
	}
}

// Open starts an idle session.
func (c *Coordinator) Open() uuid.UUID {
	id := uuid.New()
	c.mu.Lock()
	c.sessions[id] = &session{}
	c.mu.Unlock()
	c.logger.Debug().Str("session", id.String()).Msg("session opened")
	return id
}

// Close discards a session.
func (c *Coordinator) Close(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(c.sessions, id)
	c.logger.Debug().Str("session", id.String()).Msg("session closed")
	return nil
}

// Sessions returns the number of open sessions.
func (c *Coordinator) Sessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Coordinator) session(id uuid.UUID) (*session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Snapshot is a session's state together with the key of the selected item.
type Snapshot struct {
	Session uuid.UUID
	ItemKey string
	State   State
}

// Get returns the current state of a session.
func (c *Coordinator) Get(id uuid.UUID) (Snapshot, error) {
	s, err := c.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Session: id, ItemKey: s.itemKey, State: s.state}, nil
}

// SelectItem resolves key and selects it in the session.
func (c *Coordinator) SelectItem(ctx context.Context, id uuid.UUID, key string) (Snapshot, error) {
	s, err := c.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	src, err := c.Resolve(ctx, key)
	if err != nil {
		return Snapshot{}, err
	}
	return c.selectIn(s, id, key, src), nil
}

// SelectRecord selects a record that did not come from the list, such as
// DICOMweb JSON posted directly by a viewer.
func (c *Coordinator) SelectRecord(id uuid.UUID, src source.Record) (Snapshot, error) {
	s, err := c.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	return c.selectIn(s, id, "", src), nil
}

func (c *Coordinator) selectIn(s *session, id uuid.UUID, key string, src source.Record) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = s.state.Select(src, c.annotator, c.mapper)
	s.itemKey = key

	sel, _ := s.state.Selected()
	c.logger.Info().
		Str("session", id.String()).
		Str("item", key).
		Str("study", sel.Study.ID).
		Str("finding", string(sel.Finding.Status)).
		Msg("item selected")
	return Snapshot{Session: id, ItemKey: key, State: s.state}
}

// ToggleOverlay flips the session's overlay. The boolean is false when the
// selection offers no overlay, in which case the state is unchanged.
func (c *Coordinator) ToggleOverlay(id uuid.UUID) (Snapshot, bool, error) {
	s, err := c.session(id)
	if err != nil {
		return Snapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next, toggled := s.state.ToggleOverlay()
	s.state = next
	return Snapshot{Session: id, ItemKey: s.itemKey, State: s.state}, toggled, nil
}

// AddStudy registers study metadata in the catalog and returns its item.
func (c *Coordinator) AddStudy(md dicomweb.Metadata) Item {
	key := c.catalog.Add(md)
	item := Item{
		Key:   ItemKey(KindStudy, key),
		Kind:  KindStudy,
		Label: source.FromStudy(md).SubjectName(),
	}
	c.logger.Info().Str("item", item.Key).Msg("study registered")
	return item
}
