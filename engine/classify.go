package engine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pageturn-io/pageturn/types"
)

// classifyTransportError classifies a failure below the HTTP layer.
// Timeouts and connection errors are transient by definition; the retry
// budget exists for exactly these.
func classifyTransportError(err error) *types.CallError {
	return &types.CallError{Kind: types.ErrKindTransient, Err: err}
}

// classifyStatus classifies a non-2xx HTTP status.
//
// Auth rejections are session-level: a credential refused mid-run will be
// refused on every remaining call too. Everything else is treated as
// retryable — the platform fronts reads with shared infrastructure that
// intermittently returns 4xx on valid requests, and the original retry
// policy covered all HTTP errors.
func classifyStatus(status int) *types.CallError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &types.CallError{
			Kind:       types.ErrKindSessionExpired,
			HTTPStatus: status,
			Err:        fmt.Errorf("credential rejected with status %d", status),
		}
	default:
		return &types.CallError{
			Kind:       types.ErrKindTransient,
			HTTPStatus: status,
			Err:        fmt.Errorf("unexpected status %d", status),
		}
	}
}

// readResponse is the decoded shape of a successful read call.
type readResponse struct {
	succ       int
	hasSucc    bool
	hasSynckey bool
}

// classifyBody validates the success-path response shape.
//
//   - not a JSON object, or no succ field: structural fault, aborts the
//     run — the service is answering with something we do not understand,
//     and hammering it further is pointless.
//   - succ != 1: the platform's session-invalid marker.
//   - succ == 1: success; a missing synckey is reported to the caller for
//     best-effort repair but does not fail the call.
func classifyBody(status int, body []byte) (readResponse, *types.CallError) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return readResponse{}, &types.CallError{
			Kind:       types.ErrKindFatal,
			HTTPStatus: status,
			Err:        fmt.Errorf("response body is not a JSON object"),
		}
	}

	rawSucc, ok := fields["succ"]
	if !ok {
		return readResponse{}, &types.CallError{
			Kind:       types.ErrKindFatal,
			HTTPStatus: status,
			Err:        errors.New("response lacks succ field"),
		}
	}

	succ, ok := asInt(rawSucc)
	if !ok {
		return readResponse{}, &types.CallError{
			Kind:       types.ErrKindFatal,
			HTTPStatus: status,
			Err:        fmt.Errorf("succ field has unexpected type %T", rawSucc),
		}
	}

	if succ != 1 {
		return readResponse{}, &types.CallError{
			Kind:       types.ErrKindSessionExpired,
			HTTPStatus: status,
			Err:        fmt.Errorf("read rejected with succ=%d", succ),
		}
	}

	_, hasSynckey := fields["synckey"]
	return readResponse{succ: succ, hasSucc: true, hasSynckey: hasSynckey}, nil
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return int(x), true
	case int:
		return x, true
	case int64:
		return int(x), true
	default:
		return 0, false
	}
}
