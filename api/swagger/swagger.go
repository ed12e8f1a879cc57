package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "QMS Manual API",
        "description": "Lifecycle, diff and export service for regulated quality manuals",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Manuals", "description": "Manual records and sections"},
        {"name": "Revisions", "description": "Revision lifecycle and diffs"},
        {"name": "Exports", "description": "Asynchronous PDF and CSV exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate and obtain an access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "summary": "Get the authenticated user's profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/manuals": {
            "get": {
                "tags": ["Manuals"],
                "summary": "List manuals",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "includeArchived", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Manuals"],
                "summary": "Create manual",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateManualRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/manuals/{id}": {
            "get": {
                "tags": ["Manuals"],
                "summary": "Get manual including sections",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Manuals"],
                "summary": "Update manual metadata",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateManualRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Manual not editable"}
                }
            },
            "delete": {
                "tags": ["Manuals"],
                "summary": "Archive manual",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Archived"}
                }
            }
        },
        "/manuals/{id}/sections": {
            "put": {
                "tags": ["Manuals"],
                "summary": "Replace manual sections",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceSectionsRequest"}}
                ],
                "responses": {
                    "204": {"description": "Replaced"},
                    "409": {"description": "Manual not editable"}
                }
            }
        },
        "/manuals/{id}/submit": {
            "post": {
                "tags": ["Revisions"],
                "summary": "Submit manual for review",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitForReviewRequest"}}
                ],
                "responses": {
                    "201": {"description": "Submitted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Manual not editable or revision in progress"}
                }
            }
        },
        "/manuals/{id}/approve": {
            "post": {
                "tags": ["Revisions"],
                "summary": "Approve the pending revision",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApproveRevisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Approved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No pending revision or revision mismatch"}
                }
            }
        },
        "/manuals/{id}/reject": {
            "post": {
                "tags": ["Revisions"],
                "summary": "Reject the pending revision",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RejectRevisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Rejected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No pending revision"}
                }
            }
        },
        "/manuals/{id}/draft": {
            "post": {
                "tags": ["Revisions"],
                "summary": "Start a new draft from an approved manual",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "201": {"description": "Draft created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Draft already exists"}
                }
            }
        },
        "/manuals/{id}/restore": {
            "post": {
                "tags": ["Revisions"],
                "summary": "Restore manual content from a historical revision",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RestoreRevisionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Restored", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/manuals/{id}/revisions": {
            "get": {
                "tags": ["Revisions"],
                "summary": "List revisions, newest first",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/manuals/{id}/revisions/{revisionId}": {
            "get": {
                "tags": ["Revisions"],
                "summary": "Get revision including its snapshot",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "revisionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/manuals/{id}/diff": {
            "get": {
                "tags": ["Revisions"],
                "summary": "Compare two revisions",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "from", "in": "query", "required": true, "type": "string"},
                    {"name": "to", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/manuals/{id}/revisions/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export revision history as CSV",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv"],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "CSV document"}
                }
            }
        },
        "/manuals/{id}/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Request an export of a manual",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{jobId}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Poll an export job",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "jobId", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/download/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a rendered artifact using a signed token",
                "produces": ["application/pdf"],
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "PDF document"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateManualRequest": {
            "type": "object",
            "required": ["title", "organization", "documentCode"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "organization": {"type": "string"},
                "documentCode": {"type": "string"}
            }
        },
        "UpdateManualRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "organization": {"type": "string"},
                "documentCode": {"type": "string"},
                "reviewDueDate": {"type": "string", "format": "date-time"}
            }
        },
        "ReplaceSectionsRequest": {
            "type": "object",
            "required": ["sections"],
            "properties": {
                "sections": {"type": "array", "items": {"$ref": "#/definitions/SectionInput"}}
            }
        },
        "SectionInput": {
            "type": "object",
            "required": ["chapterNumber", "heading"],
            "properties": {
                "chapterNumber": {"type": "integer"},
                "sectionNumber": {"type": "integer"},
                "subsectionNumber": {"type": "integer"},
                "clauseNumber": {"type": "integer"},
                "heading": {"type": "string"},
                "pageBreak": {"type": "boolean"},
                "blocks": {"type": "array"},
                "remarks": {"type": "array"}
            }
        },
        "SubmitForReviewRequest": {
            "type": "object",
            "properties": {
                "changesSummary": {"type": "string"}
            }
        },
        "ApproveRevisionRequest": {
            "type": "object",
            "required": ["effectiveDate"],
            "properties": {
                "revisionId": {"type": "string"},
                "effectiveDate": {"type": "string", "format": "date-time"},
                "comments": {"type": "string"}
            }
        },
        "RejectRevisionRequest": {
            "type": "object",
            "required": ["reason"],
            "properties": {
                "revisionId": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "RestoreRevisionRequest": {
            "type": "object",
            "required": ["revisionId"],
            "properties": {
                "revisionId": {"type": "string"}
            }
        },
        "CreateExportRequest": {
            "type": "object",
            "required": ["variant"],
            "properties": {
                "variant": {"type": "string", "enum": ["clean", "draft_watermarked", "draft_diff", "clean_approved"]}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
