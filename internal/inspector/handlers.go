package inspector

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vango-dev/turboresource/internal/errors"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

type healthResponse struct {
	Status string `json:"status"`
}

type stateResponse struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Bound   bool   `json:"bound"`
	State   string `json:"state"`
	Value   any    `json:"value"`
	Loading bool   `json:"loading"`

	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`

	IsRefetching     bool       `json:"isRefetching"`
	LastFocus        *time.Time `json:"lastFocus,omitempty"`
	Stale            bool       `json:"stale"`
	StaleInMS        int64      `json:"staleInMs"`
	FocusAvailable   bool       `json:"focusAvailable"`
	FocusAvailableMS int64      `json:"focusAvailableInMs"`
	Expiration       *time.Time `json:"expiration,omitempty"`

	Clients int `json:"clients"`
}

type valueResponse struct {
	Value any `json:"value"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type abortRequest struct {
	Reason string `json:"reason"`
}

func (i *Inspector) handleHealthz(w http.ResponseWriter, r *http.Request) {
	i.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (i *Inspector) handleState(w http.ResponseWriter, r *http.Request) {
	s, err := onLoopValue(r.Context(), i.loop, i.snapshot)
	if err != nil {
		i.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.Clients = i.bridge.ClientCount()
	i.writeJSON(w, http.StatusOK, s)
}

// snapshot reads the binding. It runs on the loop.
func (i *Inspector) snapshot() stateResponse {
	s := stateResponse{
		ID:             i.id,
		Key:            i.actions.Key(),
		Bound:          i.actions.Bound(),
		State:          i.res.State().String(),
		Value:          i.res.PeekValue(),
		Loading:        i.res.PeekLoading(),
		IsRefetching:   i.actions.IsRefetching(),
		Stale:          i.isStale(),
		StaleInMS:      i.staleIn().Milliseconds(),
		FocusAvailable: i.focusAvailable(),
	}
	s.FocusAvailableMS = i.focusIn().Milliseconds()

	if err := i.res.PeekError(); err != nil {
		s.Error = err.Error()
		s.ErrorCode = errors.Code(err)
	}
	if last := i.actions.LastFocus(); !last.IsZero() {
		s.LastFocus = &last
	}
	if exp, ok := i.actions.Expiration(); ok {
		s.Expiration = &exp
	}
	return s
}

func (i *Inspector) handleSetKey(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		i.writeError(w, http.StatusBadRequest, errors.New("T203").Wrap(err))
		return
	}
	key := strings.TrimSpace(string(body))

	if err := i.onLoop(r.Context(), func() { i.key.Set(key) }); err != nil {
		i.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	i.logger.Info("key changed", "id", i.id, "key", key)
	w.WriteHeader(http.StatusNoContent)
}

func (i *Inspector) handleMutate(w http.ResponseWriter, r *http.Request) {
	if i.actions.Key() == "" {
		i.writeError(w, http.StatusConflict, errors.New("T103"))
		return
	}
	var v any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&v); err != nil {
		i.writeError(w, http.StatusBadRequest, errors.New("T203").Wrap(err))
		return
	}
	i.actions.Set(v)
	w.WriteHeader(http.StatusNoContent)
}

func (i *Inspector) handleRefetch(w http.ResponseWriter, r *http.Request) {
	if i.actions.Key() == "" {
		i.writeError(w, http.StatusConflict, errors.New("T103"))
		return
	}
	v, err := i.actions.Refetch(r.Context())
	if err != nil {
		i.writeError(w, http.StatusBadGateway, errors.FromError(err, "T102"))
		return
	}
	i.writeJSON(w, http.StatusOK, valueResponse{Value: v})
}

func (i *Inspector) handleForget(w http.ResponseWriter, r *http.Request) {
	i.actions.Forget()
	w.WriteHeader(http.StatusNoContent)
}

func (i *Inspector) handleAbort(w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil && err != io.EOF {
		i.writeError(w, http.StatusBadRequest, errors.New("T203").Wrap(err))
		return
	}
	var reason error
	if req.Reason != "" {
		reason = stderrors.New(req.Reason)
	}
	i.actions.Abort(reason)
	w.WriteHeader(http.StatusNoContent)
}

func (i *Inspector) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := i.onLoop(r.Context(), i.actions.Unsubscribe); err != nil {
		i.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (i *Inspector) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		i.logger.Error("encode response", "error", err)
	}
}

func (i *Inspector) writeError(w http.ResponseWriter, status int, err error) {
	i.writeJSON(w, status, errorResponse{Error: err.Error(), Code: errors.Code(err)})
}
