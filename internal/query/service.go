package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumenlake/sessionizer/internal/core/session"
	"github.com/lumenlake/sessionizer/internal/core/storage"
)

const (
	defaultLimit = 1000
	maxLimit     = 10000
)

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid session query")

// SessionQueryRequest asks for one (user, product) timeline slice.
type SessionQueryRequest struct {
	UserID      string
	ProductCode string
	Start       time.Time
	End         time.Time
	Limit       int
}

// SessionQueryResponse is the query API payload: the rows plus the distinct
// session count over them.
type SessionQueryResponse struct {
	UserID      string                   `json:"user_id"`
	ProductCode string                   `json:"product_code"`
	Events      []session.SessionedEvent `json:"events"`
	Sessions    int                      `json:"sessions"`
}

// Service serves read queries over the cleaned layer.
type Service struct {
	store storage.SessionStore
}

// NewService creates a query service over the given session store.
func NewService(store storage.SessionStore) *Service {
	if store == nil {
		panic("query: store must not be nil")
	}
	return &Service{store: store}
}

// QuerySessions returns the persisted sessioned events for one key and time
// range, in canonical timeline order.
func (s *Service) QuerySessions(ctx context.Context, req SessionQueryRequest) (*SessionQueryResponse, error) {
	req, err := normalizeAndValidate(req)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.QueryRange(ctx,
		session.Key{UserID: req.UserID, ProductCode: req.ProductCode},
		req.Start, req.End, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	distinct := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		distinct[r.SessionID] = struct{}{}
	}

	return &SessionQueryResponse{
		UserID:      req.UserID,
		ProductCode: req.ProductCode,
		Events:      rows,
		Sessions:    len(distinct),
	}, nil
}

func normalizeAndValidate(req SessionQueryRequest) (SessionQueryRequest, error) {
	if req.UserID == "" {
		return req, invalidQueryf("user_id is required")
	}
	if req.ProductCode == "" {
		return req, invalidQueryf("product_code is required")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return req, invalidQueryf("start and end are required")
	}
	if !req.End.After(req.Start) {
		return req, invalidQueryf("end must be after start")
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	return req, nil
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
