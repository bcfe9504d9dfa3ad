package control

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeSyncNotFound   = -32004
)

const maxRequestBody = 1 << 20

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type syncParams struct {
	SyncType string `json:"sync_type"`
}

// Handler serves start_sync, stop_sync and get_sync over HTTP POST.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeResponse(w, nil, nil, &Error{Code: CodeParseError, Message: "read body: " + err.Error()})
		return
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, nil, nil, &Error{Code: CodeParseError, Message: "parse error"})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeResponse(w, req.ID, nil, &Error{Code: CodeInvalidRequest, Message: "invalid request"})
		return
	}

	result, rpcErr := h.dispatch(r, req)
	writeResponse(w, req.ID, result, rpcErr)
}

func (h *Handler) dispatch(r *http.Request, req Request) (any, *Error) {
	var method types.ControlMethod
	switch req.Method {
	case "start_sync":
		method = types.MethodStart
	case "stop_sync":
		method = types.MethodStop
	case "get_sync":
	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}

	syncType, err := parseSyncType(req.Params)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}

	if method == "" {
		st, err := h.svc.Get(syncType)
		if err != nil {
			return nil, toRPCError(err)
		}
		return st, nil
	}

	text, err := h.svc.Request(r.Context(), syncType, method)
	if err != nil {
		return nil, toRPCError(err)
	}
	logger.Info("Control requested", "sync_type", syncType, "method", method)
	return req.Method + " " + text, nil
}

// parseSyncType accepts {"sync_type": "..."} or ["..."].
func parseSyncType(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("missing params: sync_type")
	}

	var p syncParams
	if raw[0] == '[' {
		var arr []string
		if err := json.Unmarshal(raw, &arr); err != nil || len(arr) != 1 {
			return "", errors.New("invalid params: expected [sync_type]")
		}
		p.SyncType = arr[0]
	} else if err := json.Unmarshal(raw, &p); err != nil {
		return "", errors.New("invalid params: expected {\"sync_type\": string}")
	}

	p.SyncType = strings.TrimSpace(p.SyncType)
	if p.SyncType == "" {
		return "", errors.New("missing params: sync_type")
	}
	return p.SyncType, nil
}

func toRPCError(err error) *Error {
	if errors.Is(err, ErrSyncNotFound) {
		return &Error{Code: CodeSyncNotFound, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func writeResponse(w http.ResponseWriter, id json.RawMessage, result any, rpcErr *Error) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(Response{JSONRPC: "2.0", ID: id, Result: result, Error: rpcErr}); err != nil {
		logger.Error("Failed to write JSON-RPC response", "error", err)
	}
}
