package access

import (
	"sync"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/log"
)

// AuthFailureHandler returns the client hook run on every 401/403: it
// clears the session and sends the user to login. Only the first failure
// for a session navigates; later ones find the store already empty.
func AuthFailureHandler(store SessionStore, nav Navigator, logger *log.Logger) func(*api.Error) {
	var mu sync.Mutex
	return func(e *api.Error) {
		mu.Lock()
		sess := store.Read()
		if sess.Token == "" {
			mu.Unlock()
			return
		}
		clearErr := store.Clear()
		mu.Unlock()

		if logger != nil {
			ev := log.LogEvent{
				Event:     log.EventSessionCleared,
				SessionID: sess.ID,
				RequestID: e.RequestID,
				Status:    e.StatusCode,
				Reason:    e.Message,
			}
			if sess.User != nil {
				ev.UserID = sess.User.ID
			}
			if clearErr != nil {
				ev.Error = clearErr.Error()
			}
			_ = logger.Append(ev)
		}
		nav.ToLogin("session expired")
	}
}
