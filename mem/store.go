package mem

import (
	"context"
	"sort"
	"sync"

	"bsid.es/despertador"
	"github.com/google/uuid"
)

// Store is an in-memory AlarmStore.
type Store struct {
	mu     sync.RWMutex
	alarms map[string]despertador.Alarm
}

func NewStore(alarms ...despertador.Alarm) *Store {
	s := &Store{alarms: make(map[string]despertador.Alarm, len(alarms))}
	for _, a := range alarms {
		s.alarms[a.ID] = a
	}
	return s
}

var _ despertador.AlarmStore = (*Store)(nil)

func (s *Store) Get(ctx context.Context, id string) (despertador.Alarm, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alarms[id]
	if !ok {
		return despertador.Alarm{}, despertador.Errorf(despertador.ErrNotFound, "alarm %q not found", id)
	}
	return a, nil
}

// List returns the alarms ordered by wall time, then id.
func (s *Store) List(ctx context.Context) ([]despertador.Alarm, error) {
	s.mu.RLock()
	alarms := make([]despertador.Alarm, 0, len(s.alarms))
	for _, a := range s.alarms {
		alarms = append(alarms, a)
	}
	s.mu.RUnlock()

	sort.Slice(alarms, func(i, j int) bool {
		ti, tj := alarms[i].Time, alarms[j].Time
		if ti != tj {
			return ti.Hour*60+ti.Minute < tj.Hour*60+tj.Minute
		}
		return alarms[i].ID < alarms[j].ID
	})
	return alarms, nil
}

func (s *Store) Put(ctx context.Context, alarm despertador.Alarm) (despertador.Alarm, error) {
	if alarm.ID == "" {
		alarm.ID = uuid.NewString()
	}
	if err := alarm.Validate(); err != nil {
		return despertador.Alarm{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms[alarm.ID] = alarm
	return alarm, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alarms, id)
	return nil
}

func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alarms[id]
	if !ok {
		return despertador.Errorf(despertador.ErrNotFound, "alarm %q not found", id)
	}
	a.Enabled = enabled
	s.alarms[id] = a
	return nil
}
