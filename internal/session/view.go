package session

import (
	"gallery/internal/medialist"
)

// View is a session's state as reported to clients.
type View struct {
	ID          string             `json:"id"`
	Filter      medialist.Filter   `json:"filter"`
	Strategy    string             `json:"strategy"`
	Window      medialist.Snapshot `json:"window"`
	FullyLoaded bool               `json:"fullyLoaded"`
	Loader      string             `json:"loader,omitempty"`
	LoaderError string             `json:"loaderError,omitempty"`
	Pending     int                `json:"pending"`
	Rejected    []string           `json:"rejected,omitempty"`
	NeedsUpdate bool               `json:"needsUpdate"`
	Entries     []medialist.Entry  `json:"entries,omitempty"`
}

// ViewOf describes e. It must run on the session's loop.
func (s *Session) ViewOf(e *medialist.Engine, withEntries bool) View {
	list := e.List()
	v := View{
		ID:          s.ID,
		Filter:      list.Filter(),
		Window:      list.Snapshot(),
		FullyLoaded: list.FullyLoaded(),
		Pending:     e.Pending(),
		NeedsUpdate: e.NeedsUpdate(),
	}
	v.Strategy = v.Filter.Strategy()
	if l := e.Loader(); l != nil {
		v.Loader = l.State().String()
		if err := l.Err(); err != nil {
			v.LoaderError = err.Error()
		}
	}
	for _, err := range e.Rejected() {
		v.Rejected = append(v.Rejected, err.Error())
	}
	if withEntries {
		v.Entries = list.Entries()
	}
	return v
}
