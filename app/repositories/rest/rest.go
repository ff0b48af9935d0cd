// Package rest is the gateway driver for a PostgREST-compatible hosted
// backend. Tables live under /rest/v1/<table>; every request carries the
// anonymous api key both as the apikey header and as the bearer token.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/uvci/resto/app/repositories"
	"github.com/uvci/resto/pkg/apperr"
	"github.com/uvci/resto/pkg/event"
	resthttp "github.com/uvci/resto/pkg/http"
)

const (
	preferRepresentation = "return=representation"
	preferMerge          = "resolution=merge-duplicates,return=representation"

	readAttempts = 3
	retryWait    = 150 * time.Millisecond
)

// store is shared by the three repositories of one gateway.
type store struct {
	api     *resthttp.Client
	key     string
	changes event.Publisher
}

// NewGateway builds the rest driver. The driver has no transactions, so it
// does not implement repositories.OrderTransactor.
func NewGateway(baseURL, anonKey string, changes event.Publisher, opts ...resthttp.Option) repositories.Gateway {
	opts = append([]resthttp.Option{resthttp.WithHeader("apikey", anonKey)}, opts...)
	s := &store{
		api:     resthttp.NewClient(baseURL+"/rest/v1", opts...),
		key:     anonKey,
		changes: repositories.Publisher(changes),
	}
	return repositories.Gateway{
		Name:    "rest",
		Menu:    &MenuRepository{s},
		Orders:  &OrderRepository{s},
		Users:   &UserRepository{s},
		Changes: s.changes,
	}
}

func (s *store) get(table string) *resthttp.Request {
	return s.api.Get("/"+table).Bearer(s.key).Retry(readAttempts, retryWait)
}

func (s *store) post(table string) *resthttp.Request {
	return s.api.Post("/"+table).Bearer(s.key).Header("Prefer", preferRepresentation)
}

func (s *store) patch(table string) *resthttp.Request {
	return s.api.Patch("/"+table).Bearer(s.key).Header("Prefer", preferRepresentation)
}

func (s *store) delete(table string) *resthttp.Request {
	return s.api.Delete("/"+table).Bearer(s.key).Header("Prefer", preferRepresentation)
}

// upsert posts rows and merges on the conflict column.
func (s *store) upsert(table, conflict string) *resthttp.Request {
	return s.api.Post("/"+table).
		Bearer(s.key).
		Query("on_conflict", conflict).
		Header("Prefer", preferMerge)
}

func eq(v string) string { return "eq." + v }

// send executes req and decodes the answer into dest when dest is not nil.
func (s *store) send(ctx context.Context, op string, req *resthttp.Request, dest any) error {
	resp, err := req.Send(ctx)
	if err != nil {
		return fmt.Errorf("rest: %s: %w", op, err)
	}
	if err := resp.Throw(); err != nil {
		switch resp.StatusCode {
		case http.StatusConflict:
			return fmt.Errorf("rest: %s: %w: %w", op, apperr.ErrDuplicate, err)
		case http.StatusNotFound:
			return fmt.Errorf("rest: %s: %w: %w", op, apperr.ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("rest: %s: %w: %w", op, apperr.ErrUnauthorized, err)
		}
		return fmt.Errorf("rest: %s: %w", op, err)
	}
	if dest == nil || len(resp.Raw) == 0 {
		return nil
	}
	if err := resp.JSON(dest); err != nil {
		return fmt.Errorf("rest: %s: %w", op, err)
	}
	return nil
}
