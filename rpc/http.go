package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goliatone/go-shipment"
)

const (
	maxBodyBytes = 1 << 20
	// ActorHeader names the operator issuing the call.
	ActorHeader = "X-Actor-ID"
)

// NewHTTPHandler exposes s over HTTP:
//
//	POST /rpc/{method}   invoke method with a JSON request envelope
//	GET  /rpc/endpoints  list registered endpoints
//	GET  /healthz        liveness
func NewHTTPHandler(s *Server, logger shipment.Logger) http.Handler {
	logger = shipment.NormalizeLogger(logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
	r.Get("/rpc/endpoints", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"endpoints": s.Endpoints()})
	})
	r.Post("/rpc/{method}", func(w http.ResponseWriter, req *http.Request) {
		method := chi.URLParam(req, "method")

		payload, err := s.NewRequestForMethod(method)
		if err != nil {
			writeError(w, err)
			return
		}
		dec := json.NewDecoder(io.LimitReader(req.Body, maxBodyBytes))
		if err := dec.Decode(payload); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, shipment.ValidationFailed(method, err))
			return
		}
		if mc, ok := payload.(metaCarrier); ok {
			stampMeta(mc.requestMeta(), req)
		}

		out, err := s.Invoke(req.Context(), method, payload)
		if err != nil {
			logger.Error("rpc %s failed request_id=%s: %v", method, middleware.GetReqID(req.Context()), err)
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
	return r
}

// StatusFor returns the HTTP status for an invoke error.
func StatusFor(err error) int {
	if HasCode(err, ErrCodeMethodNotFound) {
		return http.StatusNotFound
	}
	if HasCode(err, ErrCodeMethodRequired) {
		return http.StatusBadRequest
	}
	return shipment.HTTPStatusForError(err)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), ResponseEnvelope[any]{Error: ErrorFrom(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// stampMeta fills request and actor ids the client left empty.
func stampMeta(meta *RequestMeta, req *http.Request) {
	if meta.RequestID == "" {
		meta.RequestID = middleware.GetReqID(req.Context())
	}
	if meta.ActorID == "" {
		meta.ActorID = req.Header.Get(ActorHeader)
	}
}
