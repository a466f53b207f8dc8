// Package client owns the play element RPC round trips.
//
// Ownership boundary:
// - fetch/update/delete calls over the framed HTTP transport
// - the update reconciliation algorithm
// - fixed protocol headers
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/The-Sir-Community/ts-bf6-portal/internal/auth"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/playelement"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/protocol/frame"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/protocol/request"
	"github.com/The-Sir-Community/ts-bf6-portal/internal/schema"
)

const (
	DefaultBaseURL = "https://gateway.battlefield.com"
	DefaultOrigin  = "https://portal.battlefield.com"

	servicePath = "/web.play.WebPlay/"

	methodGet    = "GetPlayElement"
	methodUpdate = "UpdatePlayElement"
	methodDelete = "DeletePlayElementFiles"

	msgPlayElementResponse = "web.play.PlayElementResponse"
	msgUpdateRequest       = "web.play.UpdatePlayElementRequest"
	msgDeleteFilesRequest  = "web.play.DeletePlayElementFilesRequest"

	contentType     = "application/grpc-web+proto"
	headerTenancy   = "x-dice-tenancy"
	headerSession   = "x-gateway-session-id"
	headerWebMarker = "x-grpc-web"
	headerStatus    = "grpc-status"
	headerMessage   = "grpc-message"
)

var (
	ErrCatalogRequired = errors.New("client: schema catalog provider required")
	ErrElementRequired = errors.New("client: update requires an element")
	ErrDesignRequired  = errors.New("client: update requires a design")
	ErrIDRequired      = errors.New("client: play element id required")
)

// HTTPError is a non-2xx transport response.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("client: http %s", e.Status)
}

// CatalogProvider hands out the shared schema catalog. *schema.Loader
// satisfies it; tests substitute fixtures.
type CatalogProvider interface {
	Catalog(ctx context.Context) (schema.Catalog, error)
}

type Config struct {
	BaseURL     string
	Origin      string
	Credentials auth.Credentials
	Catalogs    CatalogProvider
	HTTPClient  *http.Client
	Logger      zerolog.Logger
}

// Client performs play element round trips against the gateway.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.Catalogs == nil {
		return nil, ErrCatalogRequired
	}
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient, log: cfg.Logger}, nil
}

// FetchPlayElement retrieves one document and normalizes it.
func (c *Client) FetchPlayElement(ctx context.Context, id string, includeDenied bool) (*playelement.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	payload, err := request.GetPlayElement{PlayElementID: id, IncludeDenied: includeDenied}.Encode()
	if err != nil {
		return nil, err
	}
	msg, err := c.call(ctx, methodGet, payload)
	if err != nil {
		return nil, err
	}
	return c.decodeDocument(ctx, msg)
}

// UpdateArgs carries one update submission. Current, when the caller
// already holds the server's state, skips the reconciliation fetch.
type UpdateArgs struct {
	PlayElementID string
	Element       *playelement.Element
	Design        *playelement.Design
	Current       *playelement.Document
}

// UpdatePlayElement runs the reconciliation protocol: diff the current
// attachment set against the new design, delete dropped attachments first,
// clear stale error state, then submit. The update call itself only ever
// adds or replaces attachments, so dropped ones must be deleted explicitly
// before it runs.
func (c *Client) UpdatePlayElement(ctx context.Context, args UpdateArgs) (*playelement.Document, error) {
	if args.PlayElementID == "" {
		return nil, ErrIDRequired
	}
	if args.Element == nil {
		return nil, ErrElementRequired
	}
	if args.Design == nil {
		return nil, ErrDesignRequired
	}

	current := args.Current
	if current == nil {
		fetched, err := c.FetchPlayElement(ctx, args.PlayElementID, false)
		if err != nil {
			return nil, fmt.Errorf("client: fetch current state: %w", err)
		}
		current = fetched
	}

	if dropped := droppedAttachmentIDs(current.Design, args.Design); len(dropped) > 0 {
		designID := args.Design.ID
		if designID == "" && current.Design != nil {
			designID = current.Design.ID
		}
		if err := c.deleteFiles(ctx, args.PlayElementID, designID, dropped); err != nil {
			return nil, fmt.Errorf("client: delete dropped attachments: %w", err)
		}
	}

	element, design := recoverErrorState(args.Element, args.Design)

	obj := playelement.ToWire(element, design)
	obj["playElementId"] = args.PlayElementID
	raw, err := c.encodeMessage(ctx, msgUpdateRequest, obj)
	if err != nil {
		return nil, err
	}
	msg, err := c.call(ctx, methodUpdate, raw)
	if err != nil {
		return nil, err
	}
	if len(msg) == 0 {
		return nil, nil
	}
	return c.decodeDocument(ctx, msg)
}

// UpdatePlayElementFromModifier builds the modifier and submits the result.
func (c *Client) UpdatePlayElementFromModifier(ctx context.Context, id string, m *playelement.Modifier) (*playelement.Document, error) {
	element, design, err := m.Build()
	if err != nil {
		return nil, err
	}
	return c.UpdatePlayElement(ctx, UpdateArgs{PlayElementID: id, Element: element, Design: design})
}

// droppedAttachmentIDs returns ids present in current but absent from next,
// in current list order.
func droppedAttachmentIDs(current, next *playelement.Design) []string {
	if current == nil {
		return nil
	}
	keep := make(map[string]struct{}, len(next.Attachments))
	for _, a := range next.Attachments {
		keep[a.ID] = struct{}{}
	}
	var dropped []string
	for _, a := range current.Attachments {
		if _, ok := keep[a.ID]; !ok {
			dropped = append(dropped, a.ID)
		}
	}
	return dropped
}

// recoverErrorState clears attachment error lists on a structural copy (the
// user is resubmitting content to fix them) and, when any clearing happened
// while the element is stuck in ERROR, resets it to DRAFT. Caller-held
// state is never mutated.
func recoverErrorState(element *playelement.Element, design *playelement.Design) (*playelement.Element, *playelement.Design) {
	cleared := false
	for _, a := range design.Attachments {
		if len(a.Errors) > 0 {
			cleared = true
			break
		}
	}
	if !cleared {
		return element, design
	}
	design = design.Clone()
	for _, a := range design.Attachments {
		a.Errors = nil
	}
	if element.PublishState == playelement.PublishError {
		element = element.Clone()
		element.PublishState = playelement.PublishDraft
	}
	return element, design
}

func (c *Client) deleteFiles(ctx context.Context, playElementID, designID string, attachmentIDs []string) error {
	ids := make([]any, 0, len(attachmentIDs))
	for _, id := range attachmentIDs {
		ids = append(ids, id)
	}
	obj := map[string]any{
		"playElementId": playElementID,
		"designId":      designID,
		"attachmentIds": ids,
	}
	raw, err := c.encodeMessage(ctx, msgDeleteFilesRequest, obj)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, methodDelete, raw)
	return err
}

func (c *Client) encodeMessage(ctx context.Context, name string, obj map[string]any) ([]byte, error) {
	cat, err := c.cfg.Catalogs.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	mt, err := cat.Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := mt.Verify(obj); err != nil {
		return nil, err
	}
	return mt.Encode(obj)
}

func (c *Client) decodeDocument(ctx context.Context, msg []byte) (*playelement.Document, error) {
	cat, err := c.cfg.Catalogs.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	mt, err := cat.Lookup(msgPlayElementResponse)
	if err != nil {
		return nil, err
	}
	obj, err := mt.Decode(msg)
	if err != nil {
		return nil, err
	}
	return playelement.FromWire(obj)
}

// call posts one framed message and unwraps the framed response.
func (c *Client) call(ctx context.Context, method string, payload []byte) ([]byte, error) {
	url := c.cfg.BaseURL + servicePath + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(frame.Encode(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(headerWebMarker, "1")
	req.Header.Set(headerTenancy, c.cfg.Credentials.Tenancy)
	req.Header.Set(headerSession, c.cfg.Credentials.SessionID)
	req.Header.Set("Origin", c.cfg.Origin)
	req.Header.Set("Referer", c.cfg.Origin+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("method", method).Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("rpc round trip")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	decoded, err := frame.Decode(body, oobStatus(resp))
	if err != nil {
		return nil, err
	}
	return decoded.Message, nil
}

// oobStatus reads the status side channel some responses carry in place of
// a trailer frame.
func oobStatus(resp *http.Response) *frame.Status {
	raw := resp.Header.Get(headerStatus)
	if raw == "" {
		raw = resp.Trailer.Get(headerStatus)
		if raw == "" {
			return nil
		}
	}
	code, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	msg := resp.Header.Get(headerMessage)
	if msg == "" {
		msg = resp.Trailer.Get(headerMessage)
	}
	return &frame.Status{Code: code, Message: msg}
}
