package server

import (
	"encoding/json"
	"net/http"
)

// problemBase prefixes every problem type URI.
const problemBase = "https://storefront.dev/problems/"

// Problem type URIs used by storefront handlers.
const (
	ProblemTypeBadRequest    = problemBase + "bad-request"
	ProblemTypeNotFound      = problemBase + "not-found"
	ProblemTypeUnprocessable = problemBase + "unprocessable"
	ProblemTypeRateLimited   = problemBase + "rate-limited"
	ProblemTypeInternal      = problemBase + "internal-error"
	ProblemTypeUnavailable   = problemBase + "unavailable"
)

// problemTypes maps each status a handler may answer with to its type URI.
var problemTypes = map[int]string{
	http.StatusBadRequest:          ProblemTypeBadRequest,
	http.StatusNotFound:            ProblemTypeNotFound,
	http.StatusUnprocessableEntity: ProblemTypeUnprocessable,
	http.StatusTooManyRequests:     ProblemTypeRateLimited,
	http.StatusInternalServerError: ProblemTypeInternal,
	http.StatusServiceUnavailable:  ProblemTypeUnavailable,
}

// Problem is an RFC 7807 problem details document.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// NewProblem builds the problem for status. Statuses without a registered
// type get "about:blank" as RFC 7807 prescribes.
func NewProblem(status int, detail, instance string) Problem {
	typ, ok := problemTypes[status]
	if !ok {
		typ = "about:blank"
	}
	return Problem{
		Type:     typ,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// WriteProblem encodes p as application/problem+json with p.Status.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeStatus(w http.ResponseWriter, status int, detail, instance string) {
	WriteProblem(w, NewProblem(status, detail, instance))
}

// BadRequest answers 400.
func BadRequest(w http.ResponseWriter, detail, instance string) {
	writeStatus(w, http.StatusBadRequest, detail, instance)
}

// NotFound answers 404.
func NotFound(w http.ResponseWriter, detail, instance string) {
	writeStatus(w, http.StatusNotFound, detail, instance)
}

// Unprocessable answers 422 for input that was read but could not be used.
func Unprocessable(w http.ResponseWriter, detail, instance string) {
	writeStatus(w, http.StatusUnprocessableEntity, detail, instance)
}

// RateLimited answers 429.
func RateLimited(w http.ResponseWriter, detail, instance string) {
	writeStatus(w, http.StatusTooManyRequests, detail, instance)
}

// InternalError answers 500.
func InternalError(w http.ResponseWriter, detail, instance string) {
	writeStatus(w, http.StatusInternalServerError, detail, instance)
}

// Unavailable answers 503, used when no dataset can be served.
func Unavailable(w http.ResponseWriter, detail, instance string) {
	writeStatus(w, http.StatusServiceUnavailable, detail, instance)
}
