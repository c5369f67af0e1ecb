// Package apiresponses provides standardized HTTP response helpers used by
// all API endpoints, keeping the response envelope and error formatting
// consistent across controllers.
package apiresponses
