package chain

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// fakeIndexer answers every events query with the canned response and
// records the variables it was asked with.
type fakeIndexer struct {
	response string
	requests []graphqlRequest
}

func (f *fakeIndexer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req graphqlRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.requests = append(f.requests, req)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(f.response))
}

func newFakeIndexer(t *testing.T, response string) (*fakeIndexer, *GraphQLEvents) {
	t.Helper()
	f := &fakeIndexer{response: response}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, NewGraphQLEvents(srv.URL)
}

func TestGraphQLEventsPage(t *testing.T) {
	bcs := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	f, events := newFakeIndexer(t, `{"data":{"events":{
		"pageInfo":{"hasNextPage":true,"endCursor":"c2"},
		"nodes":[
			{"contents":{"type":{"repr":"0x5a::events::NewPoolResult"},"json":{"pool_id":"0x10"},"bcs":"`+bcs+`"},
			 "timestamp":"2024-05-01T10:00:00.5Z","transactionBlock":{"digest":"Dg1"}},
			{"contents":{"type":{"repr":"0x5a::events::NewPoolResult"},"json":{"pool_id":"0x11"},"bcs":""},
			 "timestamp":null,"transactionBlock":null}
		]}}}`)

	page, err := events.QueryEvents(context.Background(), "0x5a::events::NewPoolResult", "", 25)
	require.NoError(t, err)

	assert.True(t, page.HasMore)
	assert.Equal(t, "c2", page.Cursor)
	require.Len(t, page.Events, 2)

	first := page.Events[0]
	assert.Equal(t, "0x5a::events::NewPoolResult", first.Type)
	assert.JSONEq(t, `{"pool_id":"0x10"}`, string(first.ParsedJSON))
	assert.Equal(t, []byte{1, 2, 3}, first.BCS)
	assert.Equal(t, "Dg1", first.TxDigest)
	assert.Equal(t, "0", first.EventSeq)
	assert.Equal(t, int64(1714557600500), first.Timestamp)

	second := page.Events[1]
	assert.Empty(t, second.TxDigest)
	assert.Empty(t, second.BCS)
	assert.Zero(t, second.Timestamp)
	assert.Equal(t, "1", second.EventSeq)

	require.Len(t, f.requests, 1)
	vars := f.requests[0].Variables
	assert.Equal(t, "0x5a::events::NewPoolResult", vars["type"])
	assert.EqualValues(t, 25, vars["first"])
	assert.Nil(t, vars["after"])
	assert.Contains(t, f.requests[0].Query, "events(filter: {eventType: $type}, first: $first, after: $after)")
}

func TestGraphQLEventsKeepsCursorAtHead(t *testing.T) {
	f, events := newFakeIndexer(t, `{"data":{"events":{"pageInfo":{"hasNextPage":false,"endCursor":null},"nodes":[]}}}`)

	page, err := events.QueryEvents(context.Background(), "0x5a::events::NewBankEvent", "c9", 50)
	require.NoError(t, err)
	assert.Equal(t, "c9", page.Cursor)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Events)

	require.Len(t, f.requests, 1)
	assert.Equal(t, "c9", f.requests[0].Variables["after"])
}

func TestGraphQLEventsError(t *testing.T) {
	_, events := newFakeIndexer(t, `{"errors":[{"message":"indexer lagging"}]}`)

	_, err := events.QueryEvents(context.Background(), "0x5a::events::NewBankEvent", "", 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer lagging")
}
