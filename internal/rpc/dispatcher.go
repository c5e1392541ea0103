package rpc

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/rickgao/opengroup/internal/model"
)

// HTTP-style methods accepted in Call.Method. Matching is case-sensitive.
const (
	MethodGet    = "GET"
	MethodPost   = "POST"
	MethodDelete = "DELETE"
)

// tailKind says how a route treats path segments after its first one.
type tailKind int

const (
	tailNone tailKind = iota // path must equal "/<segment>" exactly
	tailOne                  // path must be "/<segment>/<value>"
)

// request is the per-call state built by the gates.
type request struct {
	call     Call
	uri      *url.URL
	segments []string // percent-decoded path segments
	token    string   // empty when no Authorization header
	pool     Pool
}

// tail returns the dynamic segment of a tailOne route.
func (r *request) tail() string {
	return r.segments[1]
}

// routeHandler parses a matched request's arguments and invokes its operation.
type routeHandler func(ctx context.Context, req *request) (any, error)

// route is one row of the route table.
type route struct {
	method  string
	segment string
	tail    tailKind
	pattern string
	handle  routeHandler
}

// matches reports whether the route claims the request. A tailOne route
// claims every path whose first segment is its own; the segment count is
// checked afterwards so that missing and over-long tails are rejected, as
// are tails whose decoded value contains a slash.
func (rt route) matches(req *request) bool {
	if rt.method != req.call.Method {
		return false
	}
	switch rt.tail {
	case tailOne:
		return req.segments[0] == rt.segment
	default:
		return len(req.segments) == 1 && req.segments[0] == rt.segment
	}
}

// RouteInfo describes a route table entry.
type RouteInfo struct {
	Method  string
	Pattern string
}

// Dispatcher validates Calls and routes them to Operations.
//
// A Dispatcher holds no per-request state and is safe for concurrent use.
type Dispatcher struct {
	resolver Resolver
	ops      Operations
	logger   *slog.Logger
	routes   []route
}

// NewDispatcher creates a Dispatcher over the given collaborators.
func NewDispatcher(resolver Resolver, ops Operations, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		resolver: resolver,
		ops:      ops,
		logger:   logger,
	}
	d.routes = d.routeTable()
	return d
}

// Routes returns the route table in match order.
func (d *Dispatcher) Routes() []RouteInfo {
	infos := make([]RouteInfo, 0, len(d.routes))
	for _, rt := range d.routes {
		infos = append(infos, RouteInfo{Method: rt.method, Pattern: rt.pattern})
	}
	return infos
}

// Dispatch routes call to exactly one operation and returns its result.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (any, error) {
	req := &request{call: call}

	// Room gate
	roomID, ok := ExtractRoomID(call.Headers)
	if !ok {
		return nil, d.reject(req, "missing or invalid room header")
	}
	pool, err := d.resolver.PoolByRoomID(ctx, roomID)
	if err != nil {
		d.logger.Warn("room pool unavailable",
			"room_id", roomID,
			"endpoint", call.Endpoint,
			"error", err,
		)
		return nil, err
	}
	defer pool.Release()
	req.pool = pool

	// Endpoint gate
	if err := req.parseEndpoint(); err != nil {
		return nil, d.reject(req, "invalid endpoint uri", "error", err)
	}

	req.token, _ = ExtractAuthToken(call.Headers)

	// Method gate
	switch call.Method {
	case MethodGet, MethodPost, MethodDelete:
	default:
		return nil, d.reject(req, "invalid or unused http method")
	}

	for _, rt := range d.routes {
		if !rt.matches(req) {
			continue
		}
		if rt.tail == tailOne && (len(req.segments) != 2 || req.segments[1] == "" || strings.Contains(req.segments[1], "/")) {
			return nil, d.reject(req, "invalid dynamic path segment", "pattern", rt.pattern)
		}
		return rt.handle(ctx, req)
	}

	return nil, d.reject(req, "invalid or unused endpoint")
}

// parseEndpoint parses the endpoint as a scheme-less absolute path with an
// optional query and splits the path into decoded segments.
func (r *request) parseEndpoint() error {
	uri, err := url.ParseRequestURI(r.call.Endpoint)
	if err != nil {
		return err
	}
	if uri.Scheme != "" || uri.Host != "" || uri.Opaque != "" || !strings.HasPrefix(uri.Path, "/") {
		return errNotPath
	}

	raw := strings.Split(strings.TrimPrefix(uri.EscapedPath(), "/"), "/")
	segments := make([]string, len(raw))
	for i, s := range raw {
		segments[i], err = url.PathUnescape(s)
		if err != nil {
			return err
		}
	}

	r.uri = uri
	r.segments = segments
	return nil
}

// reject logs why a call was refused and returns ErrInvalidRpcCall.
func (d *Dispatcher) reject(req *request, reason string, attrs ...any) error {
	args := append([]any{
		"reason", reason,
		"method", req.call.Method,
		"endpoint", req.call.Endpoint,
	}, attrs...)
	d.logger.Warn("rejected rpc call", args...)
	return ErrInvalidRpcCall
}

// routeTable builds the ordered route table. Dynamic routes come before
// exact routes of the same method, first match wins.
func (d *Dispatcher) routeTable() []route {
	return []route{
		// GET
		{method: MethodGet, segment: "files", tail: tailOne, pattern: "/files/{id}", handle: d.getFile},
		{method: MethodGet, segment: "messages", pattern: "/messages", handle: d.getMessages},
		{method: MethodGet, segment: "deleted_messages", pattern: "/deleted_messages", handle: d.getDeletedMessages},
		{method: MethodGet, segment: "moderators", pattern: "/moderators", handle: d.getModerators},
		{method: MethodGet, segment: "block_list", pattern: "/block_list", handle: d.getBlockList},
		{method: MethodGet, segment: "member_count", pattern: "/member_count", handle: d.getMemberCount},
		{method: MethodGet, segment: "auth_token_challenge", pattern: "/auth_token_challenge", handle: d.getAuthTokenChallenge},

		// POST
		{method: MethodPost, segment: "messages", pattern: "/messages", handle: d.postMessage},
		{method: MethodPost, segment: "block_list", pattern: "/block_list", handle: d.postBan},
		{method: MethodPost, segment: "claim_auth_token", pattern: "/claim_auth_token", handle: d.postClaimAuthToken},
		{method: MethodPost, segment: "files", pattern: "/files", handle: d.postFile},

		// DELETE
		{method: MethodDelete, segment: "messages", tail: tailOne, pattern: "/messages/{server_id}", handle: d.deleteMessage},
		{method: MethodDelete, segment: "block_list", tail: tailOne, pattern: "/block_list/{public_key}", handle: d.deleteBan},
		{method: MethodDelete, segment: "auth_token", pattern: "/auth_token", handle: d.deleteAuthToken},
	}
}

// -----------------------------------------------------------------------------
// GET
// -----------------------------------------------------------------------------

func (d *Dispatcher) getFile(ctx context.Context, req *request) (any, error) {
	return d.ops.GetFile(ctx, req.tail(), req.pool)
}

func (d *Dispatcher) getMessages(ctx context.Context, req *request) (any, error) {
	opts, err := d.queryOptions(req)
	if err != nil {
		return nil, err
	}
	return d.ops.GetMessages(ctx, opts, req.pool)
}

func (d *Dispatcher) getDeletedMessages(ctx context.Context, req *request) (any, error) {
	opts, err := d.queryOptions(req)
	if err != nil {
		return nil, err
	}
	return d.ops.GetDeletedMessages(ctx, opts, req.pool)
}

func (d *Dispatcher) getModerators(ctx context.Context, req *request) (any, error) {
	return d.ops.GetModerators(ctx, req.pool)
}

func (d *Dispatcher) getBlockList(ctx context.Context, req *request) (any, error) {
	return d.ops.GetBannedPublicKeys(ctx, req.pool)
}

func (d *Dispatcher) getMemberCount(ctx context.Context, req *request) (any, error) {
	return d.ops.GetMemberCount(ctx, req.pool)
}

func (d *Dispatcher) getAuthTokenChallenge(ctx context.Context, req *request) (any, error) {
	var q publicKeyQuery
	if err := decodeQuery(req.uri.RawQuery, &q); err != nil {
		return nil, d.reject(req, "invalid query options", "query", req.uri.RawQuery, "error", err)
	}
	publicKey, err := required("public_key", q.PublicKey)
	if err != nil {
		return nil, d.reject(req, "invalid query options", "query", req.uri.RawQuery, "error", err)
	}
	return d.ops.GetAuthTokenChallenge(ctx, publicKey, req.pool)
}

// queryOptions decodes the paging options required by the list endpoints.
func (d *Dispatcher) queryOptions(req *request) (QueryOptions, error) {
	var opts QueryOptions
	if err := decodeQuery(req.uri.RawQuery, &opts); err != nil {
		return QueryOptions{}, d.reject(req, "invalid query options", "query", req.uri.RawQuery, "error", err)
	}
	return opts, nil
}

// -----------------------------------------------------------------------------
// POST
// -----------------------------------------------------------------------------

func (d *Dispatcher) postMessage(ctx context.Context, req *request) (any, error) {
	var msg model.Message
	if err := decodeStrict(req.call.Body, &msg); err != nil {
		return nil, d.reject(req, "invalid message body", "body", req.call.Body, "error", err)
	}
	return d.ops.InsertMessage(ctx, msg, req.token, req.pool)
}

func (d *Dispatcher) postBan(ctx context.Context, req *request) (any, error) {
	publicKey, err := d.publicKeyBody(req)
	if err != nil {
		return nil, err
	}
	return d.ops.Ban(ctx, publicKey, req.token, req.pool)
}

func (d *Dispatcher) postClaimAuthToken(ctx context.Context, req *request) (any, error) {
	publicKey, err := d.publicKeyBody(req)
	if err != nil {
		return nil, err
	}
	return d.ops.ClaimAuthToken(ctx, publicKey, req.token, req.pool)
}

func (d *Dispatcher) postFile(ctx context.Context, req *request) (any, error) {
	var body fileBody
	if err := decodeStrict(req.call.Body, &body); err != nil {
		return nil, d.reject(req, "invalid json body", "body", req.call.Body, "error", err)
	}
	file, err := required("file", body.File)
	if err != nil {
		return nil, d.reject(req, "invalid json body", "body", req.call.Body, "error", err)
	}
	return d.ops.StoreFile(ctx, file, req.pool)
}

// publicKeyBody decodes a {"public_key": ...} body.
func (d *Dispatcher) publicKeyBody(req *request) (string, error) {
	var body publicKeyBody
	if err := decodeStrict(req.call.Body, &body); err != nil {
		return "", d.reject(req, "invalid json body", "body", req.call.Body, "error", err)
	}
	publicKey, err := required("public_key", body.PublicKey)
	if err != nil {
		return "", d.reject(req, "invalid json body", "body", req.call.Body, "error", err)
	}
	return publicKey, nil
}

// -----------------------------------------------------------------------------
// DELETE
// -----------------------------------------------------------------------------

func (d *Dispatcher) deleteMessage(ctx context.Context, req *request) (any, error) {
	serverID, err := strconv.ParseInt(req.tail(), 10, 64)
	if err != nil {
		return nil, d.reject(req, "invalid server id", "server_id", req.tail())
	}
	return d.ops.DeleteMessage(ctx, serverID, req.token, req.pool)
}

func (d *Dispatcher) deleteBan(ctx context.Context, req *request) (any, error) {
	return d.ops.Unban(ctx, req.tail(), req.token, req.pool)
}

func (d *Dispatcher) deleteAuthToken(ctx context.Context, req *request) (any, error) {
	return d.ops.DeleteAuthToken(ctx, req.token, req.pool)
}
