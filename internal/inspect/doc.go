// Package inspect exposes a running node over gRPC for operators and the
// experiment driver. It serves a single Inspector/Snapshot method, standard
// gRPC health checking and server reflection.
//
// The Inspector service is described by hand rather than generated: its
// request and response are the well-known Empty and Struct messages.
package inspect
