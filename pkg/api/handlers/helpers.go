package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marmos91/dittobroker/pkg/broker"
)

// maxBodyBytes bounds request bodies; every request here is a small JSON object.
const maxBodyBytes = 64 << 10

// decodeJSONBody decodes a JSON request body into v. On failure it writes
// a 400 and returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// sessionIDParam parses the {id} route parameter. On failure it writes a
// 400 and returns false.
func sessionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		BadRequest(w, "Invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// WriteBrokerError maps a broker error kind to an HTTP problem. Capacity
// errors carry a Retry-After header.
func WriteBrokerError(w http.ResponseWriter, err error, retryAfter time.Duration) {
	p := &Problem{Detail: err.Error(), Kind: broker.KindOf(err).String()}

	var be *broker.Error
	if errors.As(err, &be) {
		p.Validator = be.Validator
	}

	switch broker.KindOf(err) {
	case broker.KindValidation:
		if errors.Is(err, broker.ErrInvalidRequest) {
			p.Status, p.Title = http.StatusBadRequest, "Bad Request"
		} else {
			p.Status, p.Title = http.StatusUnauthorized, "Unauthorized"
		}
	case broker.KindCapacity:
		p.Status, p.Title = http.StatusServiceUnavailable, "Service Unavailable"
		if secs := int(retryAfter.Round(time.Second) / time.Second); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	case broker.KindUnavailable:
		p.Status, p.Title = http.StatusServiceUnavailable, "Service Unavailable"
	case broker.KindNotFound:
		p.Status, p.Title = http.StatusNotFound, "Not Found"
	default:
		p.Status, p.Title = http.StatusInternalServerError, "Internal Server Error"
		p.Detail = "internal error"
	}
	writeProblem(w, p)
}
