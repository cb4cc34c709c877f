package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/order"
)

type errorBody struct {
	Error           string       `json:"error"`
	Kind            string       `json:"kind"`
	Message         string       `json:"message"`
	CurrentStatus   order.Status `json:"current_status,omitempty"`
	RequestedStatus order.Status `json:"requested_status,omitempty"`
	Retryable       bool         `json:"retryable"`
	Order           *order.Order `json:"order,omitempty"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:   http.StatusBadRequest,
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindUnauthorized: http.StatusForbidden,
	apperr.KindConflict:     http.StatusConflict,
	apperr.KindExhausted:    http.StatusConflict,
	apperr.KindUpstream:     http.StatusBadGateway,
	apperr.KindInternal:     http.StatusInternalServerError,
}

// writeError maps err onto the rejection body. current, when it carries an
// id, is the authoritative order returned with the rejection.
func writeError(w http.ResponseWriter, err error, current *order.Order) {
	kind := apperr.KindOf(err)
	body := errorBody{
		Error:     kind.String(),
		Kind:      kind.String(),
		Message:   err.Error(),
		Retryable: apperr.IsRetryable(err),
	}
	var te *order.TransitionError
	if errors.As(err, &te) {
		body.Error = te.Guard
		body.CurrentStatus = te.Current
		body.RequestedStatus = te.Requested
	}
	var ge *order.GuardError
	if errors.As(err, &ge) {
		body.Error = ge.Guard
	}
	if current != nil && current.ID != "" {
		body.Order = current
		if body.CurrentStatus == "" {
			body.CurrentStatus = current.Status
		}
	}
	if kind == apperr.KindInternal {
		body.Message = "internal error"
	}
	writeJSON(w, statusByKind[kind], body)
}
