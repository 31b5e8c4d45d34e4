// Package docs registers the OpenAPI document of the service with swag
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/api/v1/health": {
            "get": {"tags": ["Health"], "summary": "Health check", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "503": {"description": "Degraded", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/integration/send": {
            "post": {"tags": ["Integration"], "summary": "Send user data", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.SendUserDataRequest"}}],
                "responses": {"200": {"description": "Delivered", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "400": {"description": "Invalid payload or missing consent", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "502": {"description": "Partner API failure", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "503": {"description": "Integration not configured", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/auth/login": {
            "post": {"tags": ["Admin Authentication"], "summary": "Admin login", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.AdminLoginRequest"}}],
                "responses": {"200": {"description": "Login successful", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/auth/refresh": {
            "post": {"tags": ["Admin Authentication"], "summary": "Admin token refresh", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.AdminRefreshRequest"}}],
                "responses": {"200": {"description": "Token refreshed", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "401": {"description": "Invalid refresh token", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/auth/logout": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Admin Authentication"], "summary": "Admin logout", "produces": ["application/json"],
                "responses": {"200": {"description": "Logged out", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/queue": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Enqueue delivery retry", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.EnqueueRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "404": {"description": "Delivery log not found", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "409": {"description": "Delivery already settled", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/queue/stats": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Retry queue statistics", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/queue/{id}": {
            "delete": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Remove queued retry", "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "404": {"description": "Job not found", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/queue/process": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Process retry queue now", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/queue/cleanup": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Cleanup retry queue", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "schema": {"$ref": "#/definitions/dto.CleanupQueueRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/stats": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Delivery statistics", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/logs": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "List delivery logs", "produces": ["application/json"],
                "parameters": [
                    {"in": "query", "name": "user_id", "type": "string"},
                    {"in": "query", "name": "status", "type": "string"},
                    {"in": "query", "name": "created_after", "type": "string"},
                    {"in": "query", "name": "created_before", "type": "string"},
                    {"in": "query", "name": "page", "type": "integer"},
                    {"in": "query", "name": "page_size", "type": "integer"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/logs/export": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Export delivery logs",
                "produces": ["application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "responses": {"200": {"description": "XLSX workbook", "schema": {"type": "file"}}}}
        },
        "/api/v1/admin/integration/rate-limit/{userId}": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Rate limit status of a user", "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "userId", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}},
            "delete": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Clear the rate limit of a user", "produces": ["application/json"],
                "parameters": [{"in": "path", "name": "userId", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/config": {
            "get": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Active partner configuration", "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "404": {"description": "No active configuration", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}},
            "put": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Store a partner configuration", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.SaveConfigRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.APIResponse"}},
                              "400": {"description": "Invalid configuration", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        },
        "/api/v1/admin/integration/config/validate": {
            "post": {"security": [{"BearerAuth": []}], "tags": ["Admin Integration"], "summary": "Validate a partner configuration", "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/dto.ValidateConfigRequest"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.APIResponse"}}}}
        }
    },
    "definitions": {
        "dto.APIResponse": {"type": "object", "properties": {
            "success": {"type": "boolean"}, "message": {"type": "string"}, "data": {}, "error": {}}},
        "dto.UserDataRequest": {"type": "object", "required": ["nome", "email", "telefone"], "properties": {
            "nome": {"type": "string"}, "email": {"type": "string"}, "telefone": {"type": "string"}, "cpf": {"type": "string"},
            "origem_cadastro": {"type": "string"}, "consentimento_data_sharing": {"type": "boolean"}, "created_at": {"type": "string"}}},
        "dto.SendUserDataRequest": {"type": "object", "required": ["user_id", "user_data"], "properties": {
            "user_id": {"type": "string"}, "user_data": {"$ref": "#/definitions/dto.UserDataRequest"}}},
        "dto.AdminLoginRequest": {"type": "object", "required": ["username", "password"], "properties": {
            "username": {"type": "string"}, "password": {"type": "string"}}},
        "dto.AdminRefreshRequest": {"type": "object", "required": ["refresh_token"], "properties": {
            "refresh_token": {"type": "string"}}},
        "dto.EnqueueRequest": {"type": "object", "required": ["log_id"], "properties": {
            "log_id": {"type": "string"}, "delay_seconds": {"type": "integer"}, "max_attempts": {"type": "integer"}}},
        "dto.CleanupQueueRequest": {"type": "object", "properties": {
            "older_than_hours": {"type": "integer"}}},
        "dto.ValidateConfigRequest": {"type": "object", "required": ["endpoint", "method", "auth_type"], "properties": {
            "endpoint": {"type": "string"}, "sandbox_endpoint": {"type": "string"}, "method": {"type": "string"},
            "auth_type": {"type": "string"}, "api_key": {"type": "string"}, "bearer_token": {"type": "string"},
            "basic_username": {"type": "string"}, "basic_password": {"type": "string"}, "is_sandbox": {"type": "boolean"},
            "retry_attempts": {"type": "integer"}, "retry_delay": {"type": "integer"}}},
        "dto.SaveConfigRequest": {"allOf": [{"$ref": "#/definitions/dto.ValidateConfigRequest"},
            {"type": "object", "properties": {"is_active": {"type": "boolean"}}}]}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Instituto Integration API",
	Description:      "Delivers consented registrations to the Instituto Coração Valente partner API with rate limiting and a persistent retry queue.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
