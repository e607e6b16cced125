package middleware

import (
	"net/http"
	"sort"
	"strings"

	"cafe-pos/models"

	"github.com/gin-gonic/gin"
)

// Capability is one thing a caller may do. Routes ask for capabilities,
// never for roles.
type Capability string

const (
	CapViewOrders     Capability = "orders:view"
	CapManageOrders   Capability = "orders:manage"
	CapTakePayments   Capability = "payments:take"
	CapManageSessions Capability = "sessions:manage"
	CapKitchen        Capability = "kitchen:prepare"
	CapAdminister     Capability = "admin"
)

var roleCapabilities = map[models.UserRole][]Capability{
	models.RoleAdmin: {
		CapViewOrders, CapManageOrders, CapTakePayments, CapManageSessions, CapKitchen, CapAdminister,
	},
	models.RoleCashier: {
		CapViewOrders, CapManageOrders, CapTakePayments, CapManageSessions, CapKitchen,
	},
	models.RoleKitchen: {
		CapViewOrders, CapKitchen,
	},
}

// Can reports whether role grants capability.
func Can(role models.UserRole, capability Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}

// Require enforces that the caller's role grants capability
func Require(capability Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Role not found in context", "code": "FORBIDDEN"})
			return
		}
		if !Can(role, capability) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Access denied. Required role(s): " + rolesWith(capability),
				"code":  "FORBIDDEN",
			})
			return
		}
		c.Next()
	}
}

func rolesWith(capability Capability) string {
	var roles []string
	for role := range roleCapabilities {
		if Can(role, capability) {
			roles = append(roles, string(role))
		}
	}
	sort.Strings(roles)
	return strings.Join(roles, ", ")
}
