// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package apiserver

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/juju/errors"

	"github.com/herdmode/herdmode/core/mode"
)

// modeHandler turns a two digit operator code into a mode change.
type modeHandler struct {
	dispatcher ModeDispatcher
}

// ServeHTTP is part of the http.Handler interface.
func (h *modeHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	code := mux.Vars(req)["code"]

	machine, selector, err := mode.ParseCode(code)
	if err != nil {
		logger.Debugf("rejecting code %q: %v", code, err)
		sendText(w, http.StatusBadRequest, "Invalid code format")
		return
	}

	m, err := h.dispatcher.SendModeChange(machine, selector)
	switch {
	case errors.Is(err, errors.NotFound), errors.Is(err, errors.NotValid):
		logger.Infof("invalid machine or mode index in code %q: %v", code, err)
		sendText(w, http.StatusBadRequest, "Invalid machine or mode index")
	case err != nil:
		logger.Errorf("mode change for code %q failed: %v", code, err)
		sendText(w, http.StatusInternalServerError, "Mode change failed")
	default:
		sendText(w, http.StatusOK, fmt.Sprintf("Changed machine %d to %s mode", machine, m))
	}
}

func sendText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := fmt.Fprint(w, body); err != nil {
		logger.Debugf("writing response: %v", err)
	}
}
