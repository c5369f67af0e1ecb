// Package api serves the toolkit's REST surface with gin: operational
// endpoints under /api/v1 behind a per-IP rate limit, plus /metrics.
package api
