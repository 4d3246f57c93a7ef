// Package clientip extracts the client IP address from HTTP requests behind
// proxies and CDNs.
//
// Headers are checked in this order, and the first valid address wins:
//  1. CF-Connecting-IP (Cloudflare)
//  2. DO-Connecting-IP (DigitalOcean)
//  3. X-Forwarded-For (leftmost entry)
//  4. X-Real-IP
//  5. RemoteAddr
//
// Addresses are normalized with net/netip; 0.0.0.0 and malformed values are
// skipped. When nothing valid is found the raw RemoteAddr is returned.
//
//	ip := clientip.GetIP(r)
package clientip
