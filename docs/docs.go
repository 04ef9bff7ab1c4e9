// Package docs registers the OpenAPI description served at /swagger.
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
        "/webhooks/stripe": {
            "post": {
                "description": "Verifies the Stripe-Signature header, journals and dispatches the event",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Receive a payment processor event",
                "parameters": [
                    {"type": "string", "description": "Signature header", "name": "Stripe-Signature", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "boolean"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/accounts": {
            "post": {
                "tags": ["accounts"],
                "summary": "Provision the tenant's processor sub-account",
                "parameters": [{"$ref": "#/parameters/tenant"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Tenant"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/accounts/onboarding-link": {
            "post": {
                "tags": ["accounts"],
                "summary": "Create an onboarding link",
                "parameters": [{"$ref": "#/parameters/tenant"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.OnboardingLink"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/accounts/status": {
            "get": {
                "tags": ["accounts"],
                "summary": "Sub-account onboarding status",
                "parameters": [{"$ref": "#/parameters/tenant"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.AccountStatus"}}}
            }
        },
        "/api/plans": {
            "get": {
                "tags": ["plans"],
                "summary": "List membership plans",
                "parameters": [{"$ref": "#/parameters/tenant"}],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.MembershipPlan"}}}}
            },
            "post": {
                "tags": ["plans"],
                "summary": "Create a membership plan",
                "parameters": [
                    {"$ref": "#/parameters/tenant"},
                    {"description": "Plan", "name": "plan", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.PlanInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.MembershipPlan"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/subscriptions": {
            "post": {
                "tags": ["subscriptions"],
                "summary": "Subscribe a student to a price",
                "parameters": [
                    {"$ref": "#/parameters/tenant"},
                    {"description": "Subscription", "name": "subscription", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.SubscriptionInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Student"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        },
        "/api/subscriptions/{subscriptionID}": {
            "put": {
                "tags": ["subscriptions"],
                "summary": "Change a subscription's plan",
                "parameters": [
                    {"$ref": "#/parameters/tenant"},
                    {"type": "string", "name": "subscriptionID", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Student"}}}
            }
        },
        "/api/subscriptions/{subscriptionID}/cancel": {
            "post": {
                "tags": ["subscriptions"],
                "summary": "Cancel a subscription at period end",
                "parameters": [
                    {"$ref": "#/parameters/tenant"},
                    {"type": "string", "name": "subscriptionID", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/billing/metrics": {
            "get": {
                "tags": ["billing"],
                "summary": "Recurring revenue metrics",
                "parameters": [
                    {"$ref": "#/parameters/tenant"},
                    {"type": "boolean", "description": "Bypass the cache", "name": "refresh", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Metrics"}}}
            }
        },
        "/api/invoices": {
            "get": {
                "tags": ["ledger"],
                "summary": "List mirrored invoices",
                "parameters": [{"$ref": "#/parameters/tenant"}, {"type": "string", "name": "student_id", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/payments": {
            "get": {
                "tags": ["ledger"],
                "summary": "List payments",
                "parameters": [{"$ref": "#/parameters/tenant"}, {"type": "string", "name": "student_id", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/webhook-events": {
            "get": {
                "tags": ["admin"],
                "summary": "List journaled webhook events",
                "parameters": [{"type": "string", "name": "status", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/webhook-events/{eventID}/replay": {
            "post": {
                "tags": ["admin"],
                "summary": "Replay a journaled webhook event",
                "parameters": [{"type": "string", "name": "eventID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errorResponse"}}
                }
            }
        }
    },
    "parameters": {
        "tenant": {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true}
    },
    "definitions": {
        "errorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "hint": {"type": "string"}}
        },
        "domain.Tenant": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "name": {"type": "string"}, "owner_email": {"type": "string"},
                "sub_account_id": {"type": "string"}, "active": {"type": "boolean"}
            }
        },
        "domain.OnboardingLink": {
            "type": "object",
            "properties": {"url": {"type": "string"}, "expires_at": {"type": "string"}}
        },
        "domain.AccountStatus": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "enum": ["unverified", "incomplete", "active"]},
                "sub_account_id": {"type": "string"}, "details_submitted": {"type": "boolean"},
                "charges_enabled": {"type": "boolean"}, "payouts_enabled": {"type": "boolean"},
                "dashboard_url": {"type": "string"}
            }
        },
        "domain.PlanInput": {
            "type": "object",
            "properties": {
                "name": {"type": "string"}, "description": {"type": "string"}, "monthly_price": {"type": "string"},
                "duration_months": {"type": "integer"}, "price_id": {"type": "string"}
            }
        },
        "domain.MembershipPlan": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "name": {"type": "string"}, "monthly_price": {"type": "string"},
                "duration_months": {"type": "integer"}, "price_id": {"type": "string"}
            }
        },
        "service.SubscriptionInput": {
            "type": "object",
            "properties": {"student_id": {"type": "string"}, "price_id": {"type": "string"}, "payment_method_id": {"type": "string"}}
        },
        "domain.Student": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "customer_id": {"type": "string"}, "subscription_id": {"type": "string"},
                "subscription_status": {"type": "string"}, "membership_plan_name": {"type": "string"},
                "membership_renewal_date": {"type": "string"}
            }
        },
        "domain.Metrics": {
            "type": "object",
            "properties": {
                "mrr": {"type": "number"}, "active_subscribers": {"type": "integer"}, "arpu": {"type": "number"},
                "churn_rate": {"type": "number"}, "ltv": {"type": "number"}, "payment_failure_rate": {"type": "number"},
                "plan_mix": {"type": "array", "items": {"type": "object", "properties": {"plan": {"type": "string"}, "subscribers": {"type": "integer"}}}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Studio Billing API",
	Description:      "Multi-tenant studio billing and subscription reconciliation on Stripe Connect.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
