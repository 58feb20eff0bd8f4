// Package migrations embeds the event store's schema migrations directly
// into the binary, the modern replacement for the teacher's go-bindata
// generated asset table: golang-migrate's source/iofs driver reads straight
// from an embed.FS, so there's no codegen step to keep in sync by hand.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
