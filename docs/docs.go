// Package docs registers the OpenAPI description served under /swagger.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/nodes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["nodes"],
                "summary": "Latest reading of every node",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListResponse"}}
                }
            }
        },
        "/api/nodes/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["nodes"],
                "summary": "Latest reading of one node",
                "parameters": [
                    {"type": "string", "description": "Node id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/history": {
            "get": {
                "description": "Returns the newest ` + "`" + `limit` + "`" + ` readings that match, oldest first. Times compare against the reading's local HH:MM:SS.",
                "produces": ["application/json"],
                "tags": ["history"],
                "summary": "Reading history of one node",
                "parameters": [
                    {"type": "string", "description": "Node id", "name": "nodeId", "in": "query", "required": true},
                    {"type": "integer", "description": "Max readings (default 100)", "name": "limit", "in": "query"},
                    {"type": "string", "example": "2025-03-01", "description": "Calendar date", "name": "date", "in": "query"},
                    {"type": "string", "example": "08:00", "description": "Inclusive lower bound", "name": "startTime", "in": "query"},
                    {"type": "string", "example": "18:00", "description": "Inclusive upper bound", "name": "endTime", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/daily-stats": {
            "get": {
                "description": "Defaults to today when no date is given.",
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Daily statistics of every node",
                "parameters": [
                    {"type": "string", "example": "2025-03-01", "description": "Calendar date", "name": "date", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/daily-stats/{nodeId}": {
            "get": {
                "description": "All days newest first, or one day when date is given.",
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Daily statistics of one node",
                "parameters": [
                    {"type": "string", "description": "Node id", "name": "nodeId", "in": "path", "required": true},
                    {"type": "string", "example": "2025-03-01", "description": "Calendar date", "name": "date", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/control/relay": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["control"],
                "summary": "Send a relay command",
                "parameters": [
                    {"description": "Command", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RelayRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Gateway status",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/auth/sign-up": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register an operator",
                "parameters": [
                    {"description": "Credentials", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.operatorCredentials"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "integer"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/auth/sign-in": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Obtain an operator token",
                "parameters": [
                    {"description": "Credentials", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.operatorCredentials"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "success": {"type": "boolean", "example": false}
            }
        },
        "handlers.ListResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "data": {},
                "success": {"type": "boolean", "example": true}
            }
        },
        "handlers.RelayRequest": {
            "type": "object",
            "required": ["target"],
            "properties": {
                "auto": {"description": "true hands the relay back to the node's own control loop", "type": "boolean"},
                "relay": {"description": "Switch the relay on or off; omit to leave it unchanged", "type": "boolean", "example": true},
                "target": {"description": "Target node id", "type": "string", "example": "NODE1"}
            }
        },
        "handlers.operatorCredentials": {
            "type": "object",
            "required": ["password", "username"],
            "properties": {
                "password": {"type": "string"},
                "username": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Sensor Gateway API",
	Description:      "Telemetry, daily statistics and relay control for LoRa sensor nodes.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
