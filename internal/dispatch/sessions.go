package dispatch

import "slices"

type session struct {
	id         SessionID
	current    string
	history    []string
	redelivery []string
}

func (s *session) idle() bool {
	return s.current == ""
}

func (s *session) popRedelivery() (string, bool) {
	if len(s.redelivery) == 0 {
		return "", false
	}
	id := s.redelivery[0]
	s.redelivery = s.redelivery[1:]
	return id, true
}

func (s *session) dropRedelivery(id string) {
	s.redelivery = slices.DeleteFunc(s.redelivery, func(v string) bool { return v == id })
}

// registry holds connected sessions in connection order.
type registry struct {
	byID  map[SessionID]*session
	order []SessionID
}

func newRegistry() *registry {
	return &registry{byID: make(map[SessionID]*session)}
}

func (r *registry) register(id SessionID) (*session, bool) {
	if s, ok := r.byID[id]; ok {
		return s, false
	}
	s := &session{id: id}
	r.byID[id] = s
	r.order = append(r.order, id)
	return s, true
}

func (r *registry) unregister(id SessionID) *session {
	s, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	r.order = slices.DeleteFunc(r.order, func(v SessionID) bool { return v == id })
	return s
}

func (r *registry) get(id SessionID) *session {
	return r.byID[id]
}

func (r *registry) len() int {
	return len(r.order)
}

func (r *registry) ordered() []*session {
	out := make([]*session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// others returns every session except id, in connection order.
func (r *registry) others(id SessionID) []*session {
	out := make([]*session, 0, len(r.order))
	for _, sid := range r.order {
		if sid != id {
			out = append(out, r.byID[sid])
		}
	}
	return out
}

func (r *registry) dropFromQueues(itemID string) {
	for _, s := range r.byID {
		s.dropRedelivery(itemID)
	}
}

func (r *registry) historyOf(id SessionID) []string {
	if s := r.byID[id]; s != nil {
		return slices.Clone(s.history)
	}
	return nil
}

func (r *registry) queueOf(id SessionID) []string {
	if s := r.byID[id]; s != nil {
		return slices.Clone(s.redelivery)
	}
	return nil
}
