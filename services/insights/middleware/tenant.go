// Copyright (C) 2025 Lumina Labs (engineering@luminahr.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the insights service.
//
// # Tenant Resolution
//
// Every v1 route is tenant-scoped. The tenant middleware extracts the tenant
// identifier from the X-Lumina-Tenant header (set by the platform gateway
// after authentication), validates its shape, and stores it in the Gin
// context for downstream handlers:
//
//	Request
//	   │
//	   ▼
//	TenantMiddleware
//	   │
//	   ├─► Read "X-Lumina-Tenant" header
//	   │
//	   ├─► validation.ValidateTenantID
//	   │
//	   └─► Store tenant ID in context
//	           │
//	           ▼
//	       Handler (retrieves via GetTenantID)
//
// A missing header is a 401; a malformed identifier is a 400. The service
// itself performs no credential checks: the gateway owns authentication, and
// this middleware only guarantees that a well-formed tenant scope reaches
// the handlers.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luminahr/lumina/pkg/validation"
)

// TenantHeader carries the tenant identifier, set by the platform gateway.
const TenantHeader = "X-Lumina-Tenant"

// tenantKey is the context key for the resolved tenant ID. Typed key
// prevents collisions with other context values.
const tenantKey = "lumina_tenant_id"

// SetTenantID stores the resolved tenant in the Gin context. Called by
// TenantMiddleware; exported for handler tests.
func SetTenantID(c *gin.Context, tenantID string) {
	c.Set(tenantKey, tenantID)
}

// GetTenantID retrieves the tenant resolved by TenantMiddleware. Returns
// empty string when the middleware did not run.
func GetTenantID(c *gin.Context) string {
	if v, exists := c.Get(tenantKey); exists {
		if tenantID, ok := v.(string); ok {
			return tenantID
		}
	}
	return ""
}

// TenantResolver extracts a tenant identifier from a request. The default
// reads the gateway header; deployments embedding the service behind a
// different edge can swap in their own.
type TenantResolver func(c *gin.Context) string

// HeaderTenantResolver reads the tenant from the X-Lumina-Tenant header.
func HeaderTenantResolver(c *gin.Context) string {
	return c.GetHeader(TenantHeader)
}

// TenantMiddleware resolves and validates the tenant scope of a request
// using the default header resolver.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware ready for use on the v1 route group.
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithResolver(HeaderTenantResolver)
}

// TenantMiddlewareWithResolver is TenantMiddleware with a custom resolver.
func TenantMiddlewareWithResolver(resolve TenantResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := resolve(c)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing tenant header",
			})
			return
		}
		if err := validation.ValidateTenantID(tenantID); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "invalid tenant identifier",
			})
			return
		}

		SetTenantID(c, tenantID)
		c.Next()
	}
}
