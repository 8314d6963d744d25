// Package docs holds the OpenAPI description served at /swagger.
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
        "/messages": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Create a message",
                "description": "Durably records the message and publishes a message.created event",
                "parameters": [
                    {
                        "description": "Message content and optional metadata",
                        "name": "message",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/messages.CreateMessageRequest"
                        }
                    }
                ],
                "responses": {
                    "201": {
                        "description": "Created",
                        "schema": {
                            "$ref": "#/definitions/messages.CreateMessageResponse"
                        }
                    },
                    "400": {"description": "Bad Request"},
                    "502": {"description": "Bad Gateway"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/messages/{id}/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["messages"],
                "summary": "Get message status",
                "description": "Returns the current status and the ordered status history; unknown ids answer not_found",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Message idempotency id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/messages.StatusView"
                        }
                    },
                    "503": {"description": "Service Unavailable"}
                }
            }
        }
    },
    "definitions": {
        "messages.CreateMessageRequest": {
            "type": "object",
            "required": ["content"],
            "properties": {
                "content": {"type": "string"},
                "metadata": {"type": "object", "additionalProperties": true}
            }
        },
        "messages.CreateMessageResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "correlation_id": {"type": "string"},
                "idempotency_id": {"type": "string"},
                "status": {"type": "string"}
            }
        },
        "messages.StatusView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "correlation_id": {"type": "string"},
                "status": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "history": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/messages.HistoryView"}
                }
            }
        },
        "messages.HistoryView": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "service": {"type": "string"},
                "event_id": {"type": "string"},
                "error": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Courier Gateway API",
	Description:      "Idempotent message ingestion gateway: records each message durably and publishes a message.created event",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
