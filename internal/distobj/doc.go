// Package distobj defines the distributed object record shared by the client
// and authority roles, the per-role lifecycle policies, and the capability
// tables that bind field tags to host handlers and getters.
package distobj
