// Package models defines the socialsync domain types and their boundary
// codecs.
//
// Remote rows arrive as untyped Row maps. Every entity has a Decode function
// that validates required columns and coerces types, so the rest of the core
// never touches untyped fields. Identifiers are modelled as the ID sum type
// (Temporary or Permanent) and remapping a temporary id to the server id is
// the only legal transition.
package models
