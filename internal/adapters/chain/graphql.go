package chain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	graphql "github.com/hasura/go-graphql-client"

	"github.com/hxuan190/steamm-router/internal/domain"
	"github.com/hxuan190/steamm-router/internal/metrics"
)

// GraphQLEvents reads registry events from an indexer's GraphQL endpoint.
// Cursors are the endpoint's own page cursors.
type GraphQLEvents struct {
	client *graphql.Client
}

func NewGraphQLEvents(url string) *GraphQLEvents {
	return &GraphQLEvents{client: graphql.NewClient(url, nil)}
}

type eventsQuery struct {
	Events struct {
		PageInfo struct {
			HasNextPage bool
			EndCursor   *string
		}
		Nodes []struct {
			Contents struct {
				Type struct {
					Repr string
				}
				JSON json.RawMessage `graphql:"json"`
				Bcs  string
			}
			Timestamp        *string
			TransactionBlock *struct {
				Digest string
			}
		}
	} `graphql:"events(filter: {eventType: $type}, first: $first, after: $after)"`
}

func (g *GraphQLEvents) QueryEvents(ctx context.Context, eventType, cursor string, limit int) (*domain.EventPage, error) {
	var after *graphql.String
	if cursor != "" {
		c := graphql.String(cursor)
		after = &c
	}
	var q eventsQuery
	start := time.Now()
	err := g.client.Query(ctx, &q, map[string]interface{}{
		"type":  graphql.String(eventType),
		"first": graphql.Int(limit),
		"after": after,
	})
	metrics.RPCDuration.WithLabelValues("graphql_events").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCRequests.WithLabelValues("graphql_events", "error").Inc()
		return nil, fmt.Errorf("graphql events: %w", err)
	}
	metrics.RPCRequests.WithLabelValues("graphql_events", "ok").Inc()

	page := &domain.EventPage{Cursor: cursor, HasMore: q.Events.PageInfo.HasNextPage}
	if q.Events.PageInfo.EndCursor != nil {
		page.Cursor = *q.Events.PageInfo.EndCursor
	}
	for i, n := range q.Events.Nodes {
		ev := domain.Event{
			Type:       n.Contents.Type.Repr,
			ParsedJSON: n.Contents.JSON,
			EventSeq:   strconv.Itoa(i),
		}
		if n.TransactionBlock != nil {
			ev.TxDigest = n.TransactionBlock.Digest
		}
		if n.Timestamp != nil {
			if ts, err := time.Parse(time.RFC3339Nano, *n.Timestamp); err == nil {
				ev.Timestamp = ts.UnixMilli()
			}
		}
		if n.Contents.Bcs != "" {
			ev.BCS, _ = base64.StdEncoding.DecodeString(n.Contents.Bcs)
		}
		page.Events = append(page.Events, ev)
	}
	return page, nil
}
