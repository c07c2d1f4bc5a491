package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC request identifier. The protocol allows either a
// string or a number, and responses must echo the identifier exactly as the
// client sent it, so the raw bytes are preserved rather than normalized.
// A zero-length RequestID means the message carried no id (a notification).
type RequestID json.RawMessage

// Message represents a JSON-RPC 2.0 message exchanged with the client.
// It can represent either a request, response, or notification depending on
// which fields are populated:
//   - Request: JSONRPC, ID, Method, and Params are set
//   - Response: JSONRPC, ID, and either Result or Error are set
//   - Notification: JSONRPC and Method are set (no ID)
type Message struct {
	// JSONRPC must always be "2.0" per the JSON-RPC specification
	JSONRPC string `json:"jsonrpc"`
	// ID uniquely identifies request-response pairs, a string or number
	ID RequestID `json:"id,omitempty"`
	// Method contains the RPC method name for requests and notifications
	Method string `json:"method,omitempty"`
	// Params contains the parameters for the method call as a raw JSON message
	Params json.RawMessage `json:"params,omitempty"`
	// Result contains the successful response data as a raw JSON message
	Result json.RawMessage `json:"result,omitempty"`
	// Error contains error details if the request failed
	Error *ProtocolError `json:"error,omitempty"`
}

// ProtocolError represents an error response in the JSON-RPC 2.0 protocol.
// It doubles as a Go error so handlers can return it directly.
type ProtocolError struct {
	// Code indicates the error type that occurred.
	Code int `json:"code"`

	// Message provides a short description of the error.
	Message string `json:"message"`

	// Data contains additional information about the error.
	// The value is unstructured and may be omitted.
	Data map[string]any `json:"data,omitempty"`
}

// InitializeParams contains the client half of the initialization handshake.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Info               `json:"clientInfo"`
}

// InitializeResult is the server half of the initialization handshake.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Info               `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ServerCapabilities advertises which optional feature groups this server
// supports. Nil pointers are omitted from the wire form entirely.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Logging   *LoggingCapability   `json:"logging,omitempty"`
}

// ClientCapabilities carries whatever capability object the client declared
// during initialize. The server records it but does not require any entry.
type ClientCapabilities map[string]json.RawMessage

// ToolsCapability represents tools-specific capabilities.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability represents resources-specific capabilities.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability represents prompts-specific capabilities.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// LoggingCapability represents logging-specific capabilities.
type LoggingCapability struct{}

// Info contains metadata about a server or client instance.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Role represents the role in a conversation (user or assistant).
type Role string

// ContentType represents the type of content in messages.
type ContentType string

// Content represents a message content block with its type.
type Content struct {
	Type ContentType `json:"type"`

	// For ContentTypeText
	Text string `json:"text,omitempty"`

	// For ContentTypeImage
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	// For ContentTypeResource
	Resource *ResourceContents `json:"resource,omitempty"`
}

// ResourceContents represents either text or blob resource contents.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"` // For text resources
	Blob     string `json:"blob,omitempty"` // For binary resources
}

// ListToolsResult is the response payload for tools/list.
type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolInfo is the wire representation of a registered tool.
type ToolInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	InputSchema *InputSchema `json:"inputSchema,omitempty"`
}

// CallToolParams contains parameters for executing a specific tool.
type CallToolParams struct {
	// Name is the unique identifier of the tool to execute
	Name string `json:"name"`

	// Arguments is a JSON object of argument name-value pairs.
	// Must satisfy the tool's InputSchema.
	Arguments map[string]any `json:"arguments"`
}

// CallToolResult represents the outcome of a tool invocation.
// IsError indicates whether the operation failed, with details in Content.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// ListResourcesResult is the response payload for resources/list.
type ListResourcesResult struct {
	Resources []ResourceInfo `json:"resources"`
}

// ResourceInfo is the wire representation of a registered resource.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourceTemplatesResult is the response payload for resources/templates/list.
type ListResourceTemplatesResult struct {
	Templates []ResourceTemplateInfo `json:"resourceTemplates"`
}

// ResourceTemplateInfo is the wire representation of a templated resource.
type ResourceTemplateInfo struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ReadResourceParams contains parameters for retrieving a specific resource.
type ReadResourceParams struct {
	// URI is the unique identifier of the resource to retrieve.
	URI string `json:"uri"`
}

// ReadResourceResult represents the result of a read resource request.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// ListPromptsResult is the response payload for prompts/list.
type ListPromptsResult struct {
	Prompts []PromptInfo `json:"prompts"`
}

// PromptInfo is the wire representation of a registered prompt.
type PromptInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument defines a single argument that can be passed to a prompt.
// Required indicates whether the argument must be provided when rendering.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// GetPromptParams contains parameters for rendering a specific prompt.
type GetPromptParams struct {
	// Name is the unique identifier of the prompt to render
	Name string `json:"name"`

	// Arguments is a map of argument name-value pairs.
	// Must satisfy required arguments defined in the prompt's Arguments field.
	Arguments map[string]string `json:"arguments"`
}

// GetPromptResult represents the result of a prompt request.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptMessage represents one message in a rendered prompt.
type PromptMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// SetLogLevelParams contains parameters for logging/setLevel.
type SetLogLevelParams struct {
	Level string `json:"level"`
}

// Role represents the role in a conversation (user or assistant).
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType represents the type of content in messages.
const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeResource ContentType = "resource"
)

const (
	// JSONRPCVersion specifies the JSON-RPC protocol version used for communication.
	JSONRPCVersion = "2.0"

	// ProtocolVersion is the protocol revision this server implements.
	ProtocolVersion = "2024-11-05"

	// MethodInitialize is the method name for the initialization handshake.
	MethodInitialize = "initialize"
	// MethodPing is the method name for liveness checks.
	MethodPing = "ping"
	// MethodShutdown is the method name for closing the session.
	MethodShutdown = "shutdown"

	// MethodToolsList is the method name for retrieving a list of available tools.
	MethodToolsList = "tools/list"
	// MethodToolsCall is the method name for invoking a specific tool.
	MethodToolsCall = "tools/call"

	// MethodResourcesList is the method name for listing available resources.
	MethodResourcesList = "resources/list"
	// MethodResourcesRead is the method name for reading the content of a specific resource.
	MethodResourcesRead = "resources/read"
	// MethodResourcesTemplatesList is the method name for listing available resource templates.
	MethodResourcesTemplatesList = "resources/templates/list"

	// MethodPromptsList is the method name for retrieving a list of available prompts.
	MethodPromptsList = "prompts/list"
	// MethodPromptsGet is the method name for rendering a specific prompt by name.
	MethodPromptsGet = "prompts/get"

	// MethodLoggingSetLevel is the method name for setting the minimum severity
	// level for emitted log messages.
	MethodLoggingSetLevel = "logging/setLevel"

	methodNotificationsInitialized = "notifications/initialized"

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603

	codeToolNotFound       = -32001
	codeResourceNotFound   = -32002
	codePromptNotFound     = -32003
	codeToolExecutionError = -32004
	codeToolTimeout        = -32006
	codeNotInitialized     = -32008
	codeAlreadyInitialized = -32009
)

var jsonNull = []byte("null")

// MarshalJSON implements json.Marshaler by writing the stored bytes verbatim,
// so a numeric identifier stays numeric on the way back out.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if len(id) == 0 {
		return jsonNull, nil
	}
	return []byte(id), nil
}

// UnmarshalJSON implements json.Unmarshaler by capturing the raw bytes of the
// identifier without interpreting them.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, jsonNull) {
		*id = nil
		return nil
	}
	*id = RequestID(bytes.Clone(data))
	return nil
}

// IsSet reports whether the message carried an id at all. Messages without an
// id are notifications and never receive a response.
func (id RequestID) IsSet() bool {
	return len(id) > 0
}

// Valid reports whether the identifier is a string or a number, the only two
// forms the protocol permits.
func (id RequestID) Valid() bool {
	if len(id) == 0 {
		return false
	}
	switch id[0] {
	case '"':
		var s string
		return json.Unmarshal(id, &s) == nil
	default:
		var n float64
		return json.Unmarshal(id, &n) == nil
	}
}

func (id RequestID) String() string {
	if len(id) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return string(id)
}

func (e ProtocolError) Error() string {
	return fmt.Sprintf("request error, code: %d, message: %s", e.Code, e.Message)
}

// TextContent builds a single-element text content slice, the common shape
// for tool results and prompt messages.
func TextContent(text string) []Content {
	return []Content{{Type: ContentTypeText, Text: text}}
}
