// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package apiserver

import (
	"encoding/json"
	"net/http"
	"time"
)

// MachineStatus is one entry of the /machines listing.
type MachineStatus struct {
	Machine   int    `json:"machine"`
	Endpoint  string `json:"endpoint"`
	Mode      string `json:"mode,omitempty"`
	Connected bool   `json:"connected"`

	// ConnectedFor is how long the current connection has been open,
	// rounded to the second. Empty when disconnected.
	ConnectedFor string `json:"connectedFor,omitempty"`
}

type machinesHandler struct {
	endpoints   []string
	connections Connections
	states      States
}

// ServeHTTP is part of the http.Handler interface.
func (h *machinesHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	result := make([]MachineStatus, len(h.endpoints))
	for machine, endpoint := range h.endpoints {
		status := MachineStatus{
			Machine:  machine,
			Endpoint: endpoint,
		}
		if state, ok := h.states.State(machine); ok {
			status.Mode = state
		}
		if handle, ok := h.connections.Get(machine); ok {
			status.Connected = true
			status.ConnectedFor = handle.Uptime().Round(time.Second).String()
		}
		result[machine] = status
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.Debugf("writing machines response: %v", err)
	}
}
