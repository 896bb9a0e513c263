package api

import (
	"context"

	"misdash/pkg/commitment"
	"misdash/pkg/extract"
	"misdash/pkg/pipeline"
)

// Committer is the commitment side of the API: the overlay plus its gateway round trips.
type Committer interface {
	Overlay() *commitment.Overlay
	Load(ctx context.Context) error
	Submit(ctx context.Context) (commitment.Result, error)
}

// ImageResolver finds the first loadable avatar candidate. Allows says whether a URL
// is on a host the server will fetch from.
type ImageResolver interface {
	Resolve(ctx context.Context, candidates []string) (string, error)
	Allows(u string) bool
}

// ErrorEnvelope is the body of every non-2xx JSON response.
type ErrorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
}

const (
	CodeNotFound         = "NOT_FOUND"
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotSelected      = "NOT_SELECTED"
	CodeFetchFailed      = "FETCH_FAILED"
	CodeInvalidFormat    = "INVALID_FORMAT"
	CodeSubmissionFailed = "SUBMISSION_FAILED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

type viewSummary struct {
	Name      string          `json:"name"`
	Title     string          `json:"title,omitempty"`
	Status    pipeline.Status `json:"status"`
	Rows      int             `json:"rows"`
	ErrorKind string          `json:"errorKind,omitempty"`
}

func toViewSummary(st pipeline.State) viewSummary {
	return viewSummary{
		Name:      st.View,
		Title:     st.Title,
		Status:    st.Status,
		Rows:      len(st.Rows),
		ErrorKind: st.ErrorKind,
	}
}

// viewResponse is a view's display state. Retry is set while the view is in error.
type viewResponse struct {
	pipeline.State
	Total int    `json:"total"`
	Query string `json:"query,omitempty"`
	Retry string `json:"retry,omitempty"`
}

type aggregateResponse struct {
	View   string              `json:"view"`
	Policy string              `json:"policy"`
	Items  []extract.Aggregate `json:"items"`
}

type selectRequest struct {
	View     string               `json:"view"`
	Subjects []commitment.Subject `json:"subjects"`
}

type selectOneRequest struct {
	Name string `json:"name"`
}

type fieldRequest struct {
	Value *string `json:"value"`
}

type avatarResponse struct {
	Initials string `json:"initials"`
	Name     string `json:"name,omitempty"`
	// Src is an image the server did not fetch; the client may load it itself.
	Src string `json:"src,omitempty"`
}
