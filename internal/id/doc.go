// Package id provides identifier generation for calls and protocol operations.
//
// Call identifiers key the call registry; operation identifiers are placed on
// the wire (for example the graphql-transport-ws subscription id). Both are
// random UUIDs so that concurrently dispatched calls never collide.
package id
