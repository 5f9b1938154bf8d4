// Package docs holds the OpenAPI description served at /swagger/*any.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/threads": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Threads"
                ],
                "summary": "Start or resume a thread",
                "operationId": "startThread",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Caller identity",
                        "name": "X-User-ID",
                        "in": "header"
                    },
                    {
                        "description": "Thread key and identity",
                        "name": "body",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/handlers.StartThreadRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "Resumed",
                        "schema": {
                            "$ref": "#/definitions/domain.ThreadHandle"
                        }
                    },
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/domain.ThreadHandle"
                        }
                    },
                    "400": {
                        "description": "Bad request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            },
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Threads"
                ],
                "summary": "List threads of a user or channel",
                "operationId": "listThreads",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Caller identity, used when user_id is absent",
                        "name": "X-User-ID",
                        "in": "header"
                    },
                    {
                        "type": "string",
                        "description": "Return 304 if ETag matches",
                        "name": "If-None-Match",
                        "in": "header"
                    },
                    {
                        "type": "string",
                        "description": "Owner identity",
                        "name": "user_id",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Channel identity",
                        "name": "channel_id",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Page number",
                        "name": "page",
                        "in": "query",
                        "minimum": 1,
                        "default": 1
                    },
                    {
                        "type": "integer",
                        "description": "Items per page",
                        "name": "page_size",
                        "in": "query",
                        "minimum": 1,
                        "maximum": 100,
                        "default": 20
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.ListThreadsResponse"
                        },
                        "headers": {
                            "ETag": {
                                "type": "string",
                                "description": "Weak validator for this page"
                            }
                        }
                    },
                    "304": {
                        "description": "Not Modified"
                    },
                    "400": {
                        "description": "Bad request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/threads/{key}": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Threads"
                ],
                "summary": "Get a thread",
                "operationId": "getThread",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Thread key",
                        "name": "key",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Conversation"
                        }
                    },
                    "400": {
                        "description": "Bad request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Thread not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            },
            "delete": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Threads"
                ],
                "summary": "Delete a thread and its messages",
                "operationId": "deleteThread",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Thread key",
                        "name": "key",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Thread not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/threads/{key}/metadata": {
            "patch": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Threads"
                ],
                "summary": "Merge a metadata patch; null values remove keys",
                "operationId": "updateThreadMetadata",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Thread key",
                        "name": "key",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Metadata patch",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/domain.Conversation"
                        }
                    },
                    "400": {
                        "description": "Bad request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Thread not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/channels/{channel_id}/threads": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Threads"
                ],
                "summary": "Open a new thread for a channel",
                "operationId": "newChannelThread",
                "parameters": [
                    {
                        "type": "integer",
                        "description": "Channel identity",
                        "name": "channel_id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Optional owner",
                        "name": "body",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/handlers.NewChannelThreadRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/domain.ThreadHandle"
                        }
                    },
                    "400": {
                        "description": "Bad request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/threads/{key}/turns": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Messages"
                ],
                "summary": "Record a user/assistant turn",
                "operationId": "recordTurn",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Owner recorded on first contact",
                        "name": "X-User-ID",
                        "in": "header"
                    },
                    {
                        "type": "string",
                        "description": "Turn key for safe retries",
                        "name": "Idempotency-Key",
                        "in": "header"
                    },
                    {
                        "type": "string",
                        "description": "Thread key",
                        "name": "key",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Turn payload",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.RecordTurnRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.RecordTurnResponse"
                        },
                        "headers": {
                            "Idempotency-Replayed": {
                                "type": "string",
                                "description": "true when the turn was answered from a previous request"
                            }
                        }
                    },
                    "400": {
                        "description": "Bad request; X-Inbound-Message-ID is set when the user message was stored",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        },
                        "headers": {
                            "X-Inbound-Message-ID": {
                                "type": "string",
                                "description": "ID of the stored user message"
                            }
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/threads/{key}/messages": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Messages"
                ],
                "summary": "Append a single message",
                "operationId": "appendMessage",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Thread key",
                        "name": "key",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Message payload",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.AppendMessageRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/domain.Message"
                        }
                    },
                    "400": {
                        "description": "Bad request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Thread not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            },
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Messages"
                ],
                "summary": "Fetch a history window",
                "operationId": "listMessages",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Return 304 if ETag matches",
                        "name": "If-None-Match",
                        "in": "header"
                    },
                    {
                        "type": "string",
                        "description": "Thread key",
                        "name": "key",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "description": "Window size; 0 selects the server default",
                        "name": "limit",
                        "in": "query",
                        "minimum": 0
                    },
                    {
                        "type": "string",
                        "description": "Only messages older than this message ID",
                        "name": "before",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.HistoryResponse"
                        },
                        "headers": {
                            "ETag": {
                                "type": "string",
                                "description": "Weak validator for this window"
                            }
                        }
                    },
                    "304": {
                        "description": "Not Modified"
                    },
                    "400": {
                        "description": "Bad request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "Thread or cursor not found",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/audit": {
            "post": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audit"
                ],
                "summary": "Record an audit entry",
                "operationId": "recordAudit",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Caller identity, used when user_id is absent",
                        "name": "X-User-ID",
                        "in": "header"
                    },
                    {
                        "type": "boolean",
                        "description": "Write synchronously",
                        "name": "wait",
                        "in": "query",
                        "default": false
                    },
                    {
                        "description": "Audit entry",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/handlers.RecordAuditRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/domain.AuditEntry"
                        }
                    },
                    "202": {
                        "description": "Accepted",
                        "schema": {
                            "$ref": "#/definitions/handlers.AcceptedResponse"
                        }
                    },
                    "400": {
                        "description": "Bad request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                },
                "consumes": [
                    "application/json"
                ]
            },
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Audit"
                ],
                "summary": "Query audit entries, newest first",
                "operationId": "queryAudit",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Actor",
                        "name": "user_id",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Action label",
                        "name": "action",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Agent label",
                        "name": "agent",
                        "in": "query"
                    },
                    {
                        "type": "boolean",
                        "description": "Outcome",
                        "name": "success",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Earliest timestamp (inclusive)",
                        "name": "from",
                        "in": "query",
                        "format": "date-time"
                    },
                    {
                        "type": "string",
                        "description": "Latest timestamp (exclusive)",
                        "name": "to",
                        "in": "query",
                        "format": "date-time"
                    },
                    {
                        "type": "integer",
                        "description": "Max entries",
                        "name": "limit",
                        "in": "query",
                        "minimum": 0,
                        "maximum": 1000,
                        "default": 100
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/handlers.AuditEntriesResponse"
                        }
                    },
                    "400": {
                        "description": "Bad request",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    },
                    "503": {
                        "description": "Store unavailable",
                        "schema": {
                            "$ref": "#/definitions/handlers.ErrorResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "domain.Conversation": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "thread_key": {
                    "type": "string",
                    "example": "9f1c2e4b7a6d40c58e3b2a1f0d9c8b7a"
                },
                "user_id": {
                    "type": "string"
                },
                "channel_id": {
                    "type": "integer"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "updated_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "metadata": {
                    "type": "object",
                    "additionalProperties": true
                }
            }
        },
        "domain.Message": {
            "type": "object",
            "properties": {
                "seq": {
                    "type": "integer"
                },
                "id": {
                    "type": "string"
                },
                "conversation_id": {
                    "type": "string"
                },
                "role": {
                    "type": "string",
                    "enum": [
                        "user",
                        "assistant",
                        "system"
                    ]
                },
                "content": {
                    "type": "string"
                },
                "agent": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "metadata": {
                    "type": "object",
                    "additionalProperties": true
                }
            }
        },
        "domain.AuditEntry": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "timestamp": {
                    "type": "string",
                    "format": "date-time"
                },
                "user_id": {
                    "type": "string"
                },
                "action": {
                    "type": "string",
                    "example": "contract.create"
                },
                "agent": {
                    "type": "string"
                },
                "details": {
                    "type": "object",
                    "additionalProperties": true
                },
                "success": {
                    "type": "boolean"
                }
            }
        },
        "domain.ThreadHandle": {
            "type": "object",
            "properties": {
                "conversation_id": {
                    "type": "string"
                },
                "thread_key": {
                    "type": "string"
                },
                "created": {
                    "type": "boolean"
                }
            }
        },
        "handlers.StartThreadRequest": {
            "type": "object",
            "properties": {
                "thread_key": {
                    "type": "string",
                    "example": "9f1c2e4b7a6d40c58e3b2a1f0d9c8b7a"
                },
                "user_id": {
                    "type": "string",
                    "example": "user123"
                },
                "channel_id": {
                    "type": "integer",
                    "example": 123456789
                }
            }
        },
        "handlers.NewChannelThreadRequest": {
            "type": "object",
            "properties": {
                "user_id": {
                    "type": "string",
                    "example": "user123"
                }
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {
                    "type": "integer"
                },
                "page_size": {
                    "type": "integer"
                },
                "total": {
                    "type": "integer"
                },
                "total_pages": {
                    "type": "integer"
                },
                "has_next": {
                    "type": "boolean"
                }
            }
        },
        "handlers.ListThreadsResponse": {
            "type": "object",
            "properties": {
                "threads": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/domain.Conversation"
                    }
                },
                "pagination": {
                    "$ref": "#/definitions/handlers.Pagination"
                }
            }
        },
        "handlers.RecordTurnRequest": {
            "type": "object",
            "required": [
                "user_text"
            ],
            "properties": {
                "user_text": {
                    "type": "string",
                    "example": "Show my open contracts"
                },
                "assistant_text": {
                    "type": "string",
                    "example": "You have 3 open contracts."
                },
                "agent": {
                    "type": "string",
                    "example": "contracts"
                }
            }
        },
        "handlers.RecordTurnResponse": {
            "type": "object",
            "properties": {
                "thread": {
                    "$ref": "#/definitions/domain.ThreadHandle"
                },
                "inbound": {
                    "$ref": "#/definitions/domain.Message"
                },
                "outbound": {
                    "$ref": "#/definitions/domain.Message"
                }
            }
        },
        "handlers.AppendMessageRequest": {
            "type": "object",
            "required": [
                "role",
                "content"
            ],
            "properties": {
                "role": {
                    "type": "string",
                    "example": "system"
                },
                "content": {
                    "type": "string",
                    "example": "Conversation handed over to a human agent."
                },
                "agent": {
                    "type": "string",
                    "example": "supervisor"
                },
                "metadata": {
                    "type": "object",
                    "additionalProperties": true
                }
            }
        },
        "handlers.HistoryResponse": {
            "type": "object",
            "properties": {
                "messages": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/domain.Message"
                    }
                },
                "next_cursor": {
                    "type": "string"
                }
            }
        },
        "handlers.RecordAuditRequest": {
            "type": "object",
            "required": [
                "action"
            ],
            "properties": {
                "user_id": {
                    "type": "string",
                    "example": "user123"
                },
                "action": {
                    "type": "string",
                    "example": "contract.create"
                },
                "agent": {
                    "type": "string",
                    "example": "contracts"
                },
                "details": {
                    "type": "object",
                    "additionalProperties": true
                },
                "success": {
                    "type": "boolean",
                    "example": true
                }
            }
        },
        "handlers.AcceptedResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string",
                    "example": "accepted"
                }
            }
        },
        "handlers.AuditEntriesResponse": {
            "type": "object",
            "properties": {
                "entries": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/domain.AuditEntry"
                    }
                }
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {
                    "type": "string",
                    "example": "123e4567-e89b-12d3-a456-426614174000"
                },
                "code": {
                    "type": "string",
                    "example": "not_found"
                },
                "message": {
                    "type": "string",
                    "example": "resource not found"
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Session Store API",
	Description:      "Conversation threads, message history and audit trail for multi-agent assistants.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
