// Package transport describes the operations a tenantkv server
// exposes. Frontends adapt a Server to a wire protocol so that
// new protocols can be added without touching the storage layers.
package transport
