package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "OpenCourse LMS API",
        "description": "Course progress, completion and certificate service",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login and token lifecycle"},
        {"name": "Courses", "description": "Course catalog"},
        {"name": "Lessons", "description": "Lessons within a course"},
        {"name": "Enrollments", "description": "Enrollment lifecycle"},
        {"name": "Progress", "description": "Lesson watch progress and course completion"},
        {"name": "Certificates", "description": "Certificate issuance and verification"},
        {"name": "Reviews", "description": "Content moderation workflow"},
        {"name": "Transcripts", "description": "Progress report exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "responses": {
                    "200": {"description": "New token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Expired or revoked token"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "responses": {
                    "200": {"description": "Profile", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Courses", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create course",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/courses/{id}/lessons": {
            "get": {
                "tags": ["Lessons"],
                "summary": "List lessons of a course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Lessons", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Lessons"],
                "summary": "Add lesson",
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/enrollments/free": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll in a free course",
                "responses": {
                    "201": {"description": "Enrolled"},
                    "409": {"description": "Already enrolled"},
                    "412": {"description": "Course requires payment"}
                }
            }
        },
        "/enrollments/paid": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Record a paid enrollment",
                "responses": {
                    "201": {"description": "Enrolled"},
                    "409": {"description": "Already enrolled"}
                }
            }
        },
        "/enrollments/{id}/cancel": {
            "put": {
                "tags": ["Enrollments"],
                "summary": "Cancel enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Canceled"},
                    "409": {"description": "Enrollment not active"}
                }
            }
        },
        "/progress": {
            "put": {
                "tags": ["Progress"],
                "summary": "Record lesson watch progress",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordProgressRequest"}}
                ],
                "responses": {
                    "200": {"description": "Stored progress and course evaluation", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Percentage out of bounds"},
                    "403": {"description": "No active enrollment"}
                }
            }
        },
        "/progress/courses/{id}": {
            "get": {
                "tags": ["Progress"],
                "summary": "Course completion state",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Percentage and per-lesson rows", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/enrollments/{id}/certificate": {
            "post": {
                "tags": ["Certificates"],
                "summary": "Request certificate",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Pending certificate (idempotent)"},
                    "412": {"description": "Completion requirements not met"}
                }
            },
            "get": {
                "tags": ["Certificates"],
                "summary": "Get certificate for enrollment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Certificate"}
                }
            }
        },
        "/certificates/{id}/approve": {
            "put": {
                "tags": ["Certificates"],
                "summary": "Approve pending certificate",
                "responses": {
                    "200": {"description": "Approved"},
                    "409": {"description": "Not pending"}
                }
            }
        },
        "/certificates/{id}/revoke": {
            "put": {
                "tags": ["Certificates"],
                "summary": "Revoke approved certificate",
                "responses": {
                    "200": {"description": "Revoked"},
                    "409": {"description": "Not approved"}
                }
            }
        },
        "/certificates/verify/{hash}": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Publicly verify a certificate",
                "parameters": [
                    {"name": "hash", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Uniform found/not-found shape", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reviews": {
            "post": {
                "tags": ["Reviews"],
                "summary": "Submit content for moderation",
                "responses": {
                    "201": {"description": "Pending review"},
                    "409": {"description": "Already pending or approved"}
                }
            },
            "get": {
                "tags": ["Reviews"],
                "summary": "Current review of a subject",
                "responses": {
                    "200": {"description": "Review"}
                }
            }
        },
        "/courses/{id}/transcript": {
            "post": {
                "tags": ["Transcripts"],
                "summary": "Export progress transcript",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Signed download link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RecordProgressRequest": {
            "type": "object",
            "properties": {
                "lesson_id": {"type": "string"},
                "watched_percentage": {"type": "integer", "minimum": 0, "maximum": 100},
                "last_position_seconds": {"type": "integer", "minimum": 0}
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
