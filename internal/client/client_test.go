package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/The-Sir-Community/ts-bf6-portal/internal/auth"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/playelement"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/protocol/frame"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/schema"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/testutil/testlog"
)

// jsonCatalog stands in for the schema catalog: plain objects travel as
// JSON so the test server can inspect submissions directly.
type jsonCatalog struct{}

func (jsonCatalog) Lookup(string) (schema.MessageType, error) {
	return jsonMessage{}, nil
}

type jsonMessage struct{}

func (jsonMessage) Verify(map[string]any) error {
	return nil
}

func (jsonMessage) Encode(obj map[string]any) ([]byte, error) {
	return json.Marshal(obj)
}

func (jsonMessage) Decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

type jsonCatalogs struct{}

func (jsonCatalogs) Catalog(context.Context) (schema.Catalog, error) {
	return jsonCatalog{}, nil
}

type recordedCall struct {
	Method string
	Body   map[string]any
}

// gatewayStub is a minimal framed-RPC endpoint recording every call.
type gatewayStub struct {
	mu       sync.Mutex
	calls    []recordedCall
	document map[string]any

	deleteStatus int
}

func (g *gatewayStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		var obj map[string]any
		if raw, err := readFramedBody(r); err == nil && len(raw) > 0 {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			_ = dec.Decode(&obj)
		}

		g.mu.Lock()
		g.calls = append(g.calls, recordedCall{Method: method, Body: obj})
		g.mu.Unlock()

		switch method {
		case "GetPlayElement":
			writeFramed(w, g.document)
		case "UpdatePlayElement":
			writeFramed(w, g.document)
		case "DeletePlayElementFiles":
			if g.deleteStatus != 0 {
				w.WriteHeader(g.deleteStatus)
				return
			}
			w.Header().Set("grpc-status", "0")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func readFramedBody(r *http.Request) ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return nil, err
	}
	decoded, err := frame.Decode(buf.Bytes(), nil)
	if err != nil {
		return nil, err
	}
	return decoded.Message, nil
}

func writeFramed(w http.ResponseWriter, obj map[string]any) {
	raw, _ := json.Marshal(obj)
	body := append(frame.Encode(raw), frame.EncodeTrailer(frame.Status{Code: 0})...)
	_, _ = w.Write(body)
}

func (g *gatewayStub) methods() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.Method)
	}
	return out
}

func (g *gatewayStub) call(method string) (recordedCall, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.calls {
		if c.Method == method {
			return c, true
		}
	}
	return recordedCall{}, false
}

func serverDocument() map[string]any {
	return map[string]any{
		"element": map[string]any{
			"id":           "pe-1",
			"name":         "Server Mode",
			"publishState": 2,
		},
		"design": map[string]any{
			"id": "design-1",
			"attachments": []any{
				map[string]any{"id": "A", "attachmentType": 1, "payload": ""},
				map[string]any{"id": "B", "attachmentType": 2, "filename": "main.ts", "payload": ""},
				map[string]any{"id": "C", "attachmentType": 4, "payload": ""},
			},
		},
	}
}

func newTestClient(t *testing.T, stub *gatewayStub) *Client {
	t.Helper()
	testlog.Start(t)
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)
	c, err := New(Config{
		BaseURL:     server.URL,
		Credentials: auth.Credentials{Tenancy: auth.DefaultTenancy, SessionID: "session-1"},
		Catalogs:    jsonCatalogs{},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestFetchPlayElement(t *testing.T) {
	stub := &gatewayStub{document: serverDocument()}
	c := newTestClient(t, stub)

	doc, err := c.FetchPlayElement(context.Background(), "pe-1", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if doc.Element.Name != "Server Mode" || doc.Element.PublishState != playelement.PublishPublished {
		t.Fatalf("element: %+v", doc.Element)
	}
	if len(doc.Design.Attachments) != 3 {
		t.Fatalf("attachments: %d", len(doc.Design.Attachments))
	}
}

func TestFetchSendsProtocolHeaders(t *testing.T) {
	testlog.Start(t)
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeFramed(w, serverDocument())
	}))
	defer server.Close()

	c, err := New(Config{
		BaseURL:     server.URL,
		Credentials: auth.Credentials{Tenancy: "tenancy-x", SessionID: "session-y"},
		Catalogs:    jsonCatalogs{},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.FetchPlayElement(context.Background(), "pe-1", false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Get("Content-Type") != contentType {
		t.Fatalf("content type: %q", got.Get("Content-Type"))
	}
	if got.Get(headerTenancy) != "tenancy-x" || got.Get(headerSession) != "session-y" {
		t.Fatalf("credentials headers: %q %q", got.Get(headerTenancy), got.Get(headerSession))
	}
	if got.Get(headerWebMarker) != "1" {
		t.Fatalf("protocol marker missing")
	}
}

func TestFetchSurfacesRPCStatus(t *testing.T) {
	testlog.Start(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("grpc-status", "13")
		w.Header().Set("grpc-message", "internal failure")
	}))
	defer server.Close()

	c, err := New(Config{
		BaseURL:     server.URL,
		Credentials: auth.Credentials{Tenancy: auth.DefaultTenancy, SessionID: "s"},
		Catalogs:    jsonCatalogs{},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.FetchPlayElement(context.Background(), "pe-1", false)
	var se frame.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != 13 || se.Message != "internal failure" {
		t.Fatalf("status: %+v", se)
	}
}

func TestFetchSurfacesHTTPError(t *testing.T) {
	testlog.Start(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c, err := New(Config{
		BaseURL:     server.URL,
		Credentials: auth.Credentials{Tenancy: auth.DefaultTenancy, SessionID: "s"},
		Catalogs:    jsonCatalogs{},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.FetchPlayElement(context.Background(), "pe-1", false)
	var he HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.StatusCode != http.StatusForbidden {
		t.Fatalf("status code: %d", he.StatusCode)
	}
}

func currentDocument() *playelement.Document {
	return &playelement.Document{
		Element: &playelement.Element{ID: "pe-1", Name: "Current"},
		Design: &playelement.Design{
			ID: "design-1",
			Attachments: []*playelement.Attachment{
				{ID: "A", Type: playelement.AttachmentSpatial},
				{ID: "B", Type: playelement.AttachmentScript, Filename: "main.ts"},
				{ID: "C", Type: playelement.AttachmentStrings},
			},
		},
	}
}

func TestUpdateReconciliationDeletionSet(t *testing.T) {
	stub := &gatewayStub{document: serverDocument()}
	c := newTestClient(t, stub)

	current := currentDocument()
	newDesign := &playelement.Design{
		ID: "design-1",
		Attachments: []*playelement.Attachment{
			{ID: "B", Type: playelement.AttachmentScript, Filename: "main.ts"},
		},
	}

	_, err := c.UpdatePlayElement(context.Background(), UpdateArgs{
		PlayElementID: "pe-1",
		Element:       &playelement.Element{ID: "pe-1", Name: "Edited"},
		Design:        newDesign,
		Current:       current,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	methods := stub.methods()
	if len(methods) != 2 || methods[0] != "DeletePlayElementFiles" || methods[1] != "UpdatePlayElement" {
		t.Fatalf("call order: %v", methods)
	}

	del, _ := stub.call("DeletePlayElementFiles")
	ids, _ := del.Body["attachmentIds"].([]any)
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "C" {
		t.Fatalf("deletion set: %v", ids)
	}
	if del.Body["designId"] != "design-1" {
		t.Fatalf("design id: %v", del.Body["designId"])
	}
}

func TestUpdateSkipsDeletionWhenNothingDropped(t *testing.T) {
	stub := &gatewayStub{document: serverDocument()}
	c := newTestClient(t, stub)

	current := currentDocument()
	_, err := c.UpdatePlayElement(context.Background(), UpdateArgs{
		PlayElementID: "pe-1",
		Element:       current.Element,
		Design:        current.Design,
		Current:       current,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := stub.call("DeletePlayElementFiles"); ok {
		t.Fatalf("deletion issued with nothing dropped")
	}
}

func TestUpdateFailedDeletionAborts(t *testing.T) {
	stub := &gatewayStub{document: serverDocument(), deleteStatus: http.StatusInternalServerError}
	c := newTestClient(t, stub)

	current := currentDocument()
	_, err := c.UpdatePlayElement(context.Background(), UpdateArgs{
		PlayElementID: "pe-1",
		Element:       current.Element,
		Design:        &playelement.Design{ID: "design-1"},
		Current:       current,
	})
	if err == nil {
		t.Fatalf("expected deletion failure to abort update")
	}
	if _, ok := stub.call("UpdatePlayElement"); ok {
		t.Fatalf("main update attempted after failed deletion")
	}
}

func TestUpdateFetchesCurrentWhenUnknown(t *testing.T) {
	stub := &gatewayStub{document: serverDocument()}
	c := newTestClient(t, stub)

	// Server document has attachments A, B, C; submitting only B forces a
	// fetch, then a deletion of A and C, then the update.
	_, err := c.UpdatePlayElement(context.Background(), UpdateArgs{
		PlayElementID: "pe-1",
		Element:       &playelement.Element{ID: "pe-1"},
		Design: &playelement.Design{ID: "design-1", Attachments: []*playelement.Attachment{
			{ID: "B", Type: playelement.AttachmentScript, Filename: "main.ts"},
		}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	methods := stub.methods()
	want := []string{"GetPlayElement", "DeletePlayElementFiles", "UpdatePlayElement"}
	if len(methods) != len(want) {
		t.Fatalf("calls: %v", methods)
	}
	for i := range want {
		if methods[i] != want[i] {
			t.Fatalf("call order: %v", methods)
		}
	}
}

func TestUpdateErrorStateRecovery(t *testing.T) {
	stub := &gatewayStub{document: serverDocument()}
	c := newTestClient(t, stub)

	element := &playelement.Element{ID: "pe-1", PublishState: playelement.PublishError}
	design := &playelement.Design{
		ID: "design-1",
		Attachments: []*playelement.Attachment{
			{ID: "B", Type: playelement.AttachmentScript, Filename: "main.ts", Errors: []string{"compile failed"}},
		},
	}
	current := &playelement.Document{
		Element: element.Clone(),
		Design:  design.Clone(),
	}

	_, err := c.UpdatePlayElement(context.Background(), UpdateArgs{
		PlayElementID: "pe-1",
		Element:       element,
		Design:        design,
		Current:       current,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	upd, ok := stub.call("UpdatePlayElement")
	if !ok {
		t.Fatalf("update never submitted")
	}
	el := upd.Body["element"].(map[string]any)
	if state, _ := el["publishState"].(json.Number); state.String() != "1" {
		t.Fatalf("publish state not reset to DRAFT: %v", el["publishState"])
	}
	de := upd.Body["design"].(map[string]any)
	att := de["attachments"].([]any)[0].(map[string]any)
	if _, ok := att["errors"]; ok {
		t.Fatalf("attachment errors submitted: %v", att["errors"])
	}

	// Caller-held state is untouched.
	if element.PublishState != playelement.PublishError {
		t.Fatalf("caller element mutated")
	}
	if len(design.Attachments[0].Errors) != 1 {
		t.Fatalf("caller design mutated")
	}
}

func TestUpdatePreconditions(t *testing.T) {
	stub := &gatewayStub{document: serverDocument()}
	c := newTestClient(t, stub)

	_, err := c.UpdatePlayElement(context.Background(), UpdateArgs{PlayElementID: "pe-1", Design: &playelement.Design{}})
	if !errors.Is(err, ErrElementRequired) {
		t.Fatalf("expected ErrElementRequired, got %v", err)
	}
	_, err = c.UpdatePlayElement(context.Background(), UpdateArgs{PlayElementID: "pe-1", Element: &playelement.Element{}})
	if !errors.Is(err, ErrDesignRequired) {
		t.Fatalf("expected ErrDesignRequired, got %v", err)
	}
	if len(stub.methods()) != 0 {
		t.Fatalf("network touched before preconditions: %v", stub.methods())
	}
}

func TestUpdateFromModifier(t *testing.T) {
	stub := &gatewayStub{document: serverDocument()}
	c := newTestClient(t, stub)

	doc, err := c.FetchPlayElement(context.Background(), "pe-1", false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	m := playelement.NewModifier(doc).SetName("Via Modifier")
	if _, err := c.UpdatePlayElementFromModifier(context.Background(), "pe-1", m); err != nil {
		t.Fatalf("update from modifier: %v", err)
	}
	upd, ok := stub.call("UpdatePlayElement")
	if !ok {
		t.Fatalf("update never submitted")
	}
	el := upd.Body["element"].(map[string]any)
	if el["name"] != "Via Modifier" {
		t.Fatalf("name: %v", el["name"])
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Credentials: auth.Credentials{Tenancy: "t", SessionID: "s"}})
	if !errors.Is(err, ErrCatalogRequired) {
		t.Fatalf("expected ErrCatalogRequired, got %v", err)
	}
	_, err = New(Config{Catalogs: jsonCatalogs{}})
	if !errors.Is(err, auth.ErrMissingSession) {
		t.Fatalf("expected credential validation, got %v", err)
	}
}
