// Package kernels embeds the kernel sources, one file per stable key.
package kernels

import "embed"

// FS holds <key>.cl for every kernel the simulation compiles.
//
//go:embed *.cl
var FS embed.FS
